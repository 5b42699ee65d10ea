package flags

import (
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/tcbot-dev/tchelper/pkg/apis/cache"
	"github.com/tcbot-dev/tchelper/pkg/cache/compressed"
	"github.com/tcbot-dev/tchelper/pkg/cache/redis"
)

// CacheFlags holds caching configuration for finished build results.
type CacheFlags struct {
	RedisURL        string
	BuildTTL        time.Duration
	DisableCompress bool
}

func NewCacheFlags() *CacheFlags {
	return &CacheFlags{
		BuildTTL: 24 * time.Hour,
	}
}

func (f *CacheFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.RedisURL,
		"redis-url",
		os.Getenv("REDIS_URL"),
		"Redis URL for caching")
	fs.DurationVar(&f.BuildTTL, "build-cache-ttl", f.BuildTTL, "How long finished build results are cached")
	fs.BoolVar(&f.DisableCompress, "disable-cache-compression", f.DisableCompress, "Store cached builds uncompressed")
}

// GetCacheClient returns nil when no cache is configured.
func (f *CacheFlags) GetCacheClient() (cache.Cache, error) {
	if f.RedisURL == "" {
		return nil, nil
	}

	c, err := redis.NewRedisCache(f.RedisURL)
	if err != nil {
		return nil, err
	}
	if f.DisableCompress {
		return c, nil
	}
	return compressed.NewCompressedCache(c)
}
