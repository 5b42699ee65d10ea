package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	r "gopkg.in/redis.v5"

	"github.com/tcbot-dev/tchelper/pkg/apis/cache"
)

const prefix = "_TCHELPER_"

type Cache struct {
	client *r.Client
}

func NewRedisCache(url string) (*Cache, error) {
	var opts *r.Options
	var err error

	if opts, err = r.ParseURL(url); err != nil {
		return nil, err
	}

	return &Cache{
		client: r.NewClient(opts),
	}, nil
}

func (c Cache) Get(_ context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(prefix + key).Bytes()
	if err == r.Nil {
		return nil, errors.Wrap(cache.ErrMiss, key)
	}
	return b, err
}

func (c Cache) Set(_ context.Context, key string, content []byte, duration time.Duration) error {
	return c.client.Set(prefix+key, content, duration).Err()
}
