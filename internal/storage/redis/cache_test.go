package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/questionmatch/pkg/types"
)

// newTestCache connects to REDIS_TEST_ADDR under a unique key prefix,
// skipping when the variable is unset.
func newTestCache(t *testing.T) *Cache {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set; skipping Redis integration test")
	}
	cache, err := NewCache(context.Background(), addr, "qmtest:"+uuid.NewString()+":")
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = cache.ClearExpired(context.Background(), time.Now().Add(24*time.Hour))
		_ = cache.Close()
	})
	return cache
}

func TestNewCache_RequiresAddr(t *testing.T) {
	_, err := NewCache(context.Background(), " ", "")
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestCache_IndexKeySeparatesCandidates(t *testing.T) {
	c := NewCacheWithClient(nil, "p:")
	assert.NotEqual(t,
		c.indexKey("a|x", "y"),
		c.indexKey("a", "x|y"))
	assert.Equal(t, "p:idx:2:c1|category=technical", c.indexKey("c1", "category=technical"))
}

func TestCache_FreshnessAndOrdering(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	now := time.Now().UTC()

	miss, err := cache.GetFresh(ctx, "c1", "", now)
	require.NoError(t, err)
	assert.Nil(t, miss)

	_, err = cache.PutCache(ctx, "c1", "", []types.RankedID{{QuestionID: "q1", SimilarityScore: 0.9}}, time.Minute, now)
	require.NoError(t, err)
	second, err := cache.PutCache(ctx, "c1", "", []types.RankedID{{QuestionID: "q2", SimilarityScore: 0.8}}, time.Minute, now.Add(time.Second))
	require.NoError(t, err)

	got, err := cache.GetFresh(ctx, "c1", "", now.Add(2*time.Second))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.CacheID, got.CacheID)

	expired, err := cache.GetFresh(ctx, "c1", "", second.ExpiresAt)
	require.NoError(t, err)
	assert.Nil(t, expired)

	other, err := cache.GetFresh(ctx, "c1", "category=technical;difficulty=;min=0.2", now)
	require.NoError(t, err)
	assert.Nil(t, other)

	n, err := cache.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	removed, err := cache.ClearExpired(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	n, err = cache.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
