package compressed

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcbot-dev/tchelper/pkg/apis/cache"
)

type PseudoCache struct {
	cache map[string][]byte
}

func (c *PseudoCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, ok := c.cache[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return b, nil
}

func (c *PseudoCache) Set(ctx context.Context, key string, content []byte, duration time.Duration) error {
	c.cache[key] = content
	return nil
}

const buildJSON = `{"id":926672,"buildTypeId":"IgniteTests24Java8_Cache1","number":"12345","status":"FAILURE",` +
	`"state":"finished","branchName":"refs/heads/master","href":"/app/rest/latest/builds/id:926672",` +
	`"buildType":{"id":"IgniteTests24Java8_Cache1","name":"Cache 1","projectId":"IgniteTests24Java8"},` +
	`"finishDate":"20180213T101500+0300","problemOccurrences":{"href":"/app/rest/latest/problemOccurrences?locator=build:(id:926672)","count":2}}`

func TestPseudoCache(t *testing.T) {
	pseudo := &PseudoCache{cache: make(map[string][]byte)}
	c, err := NewCompressedCache(pseudo)
	require.NoError(t, err)

	require.NoError(t, c.Set(context.TODO(), "testKey", []byte(buildJSON), time.Hour))
	assert.Contains(t, pseudo.cache, cachePrefix+"testKey")
	assert.NotEqual(t, []byte(buildJSON), pseudo.cache[cachePrefix+"testKey"])

	cacheData, err := c.Get(context.TODO(), "testKey")
	require.NoError(t, err)
	assert.Equal(t, buildJSON, string(cacheData))

	_, err = c.Get(context.TODO(), "missing")
	assert.True(t, errors.Is(err, cache.ErrMiss))
}

func TestCompression(t *testing.T) {
	compressed, checksum, err := compress([]byte(buildJSON))
	require.NoError(t, err)
	require.NotNil(t, compressed)

	uncompressed, err := uncompress(compressed, checksum)
	require.NoError(t, err)
	assert.Equal(t, buildJSON, string(uncompressed))

	checksum[0]++
	_, err = uncompress(compressed, checksum)
	assert.Error(t, err)
}

func TestCorruptItem(t *testing.T) {
	pseudo := &PseudoCache{cache: map[string][]byte{cachePrefix + "short": []byte("abc")}}
	c, err := NewCompressedCache(pseudo)
	require.NoError(t, err)

	_, err = c.Get(context.TODO(), "short")
	assert.Error(t, err)
}
