// Package redis implements storage.RetrievalCache on Redis, for deployments
// that share cached retrievals across several server processes.
//
// Layout: every entry is a JSON string under "<prefix>entry:<cache_id>" with a
// PEXPIRE matching its expiry, and a sorted set
// "<prefix>idx:<len(candidate)>:<candidate>|<signature>" indexes the entry ids
// by created_at (unix nanoseconds). The length prefix keeps a "|" inside a
// candidate id from colliding with another candidate's signature.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/scrypster/questionmatch/internal/storage"
	"github.com/scrypster/questionmatch/pkg/types"
)

const (
	backend       = "redis"
	defaultPrefix = "qm:cache:"
)

// Cache implements storage.RetrievalCache.
type Cache struct {
	rdb    *goredis.Client
	prefix string
}

var _ storage.RetrievalCache = (*Cache)(nil)

// NewCache connects to addr and verifies the connection with PING.
func NewCache(ctx context.Context, addr, prefix string) (*Cache, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("%w: redis address is required", types.ErrInvalidInput)
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewCacheWithClient(rdb, prefix), nil
}

// NewCacheWithClient wraps an existing client. An empty prefix uses "qm:cache:".
func NewCacheWithClient(rdb *goredis.Client, prefix string) *Cache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Cache{rdb: rdb, prefix: prefix}
}

func (c *Cache) indexKey(candidateID, signature string) string {
	return c.prefix + "idx:" + strconv.Itoa(len(candidateID)) + ":" + candidateID + "|" + signature
}

func (c *Cache) entryKey(cacheID string) string {
	return c.prefix + "entry:" + cacheID
}

// GetFresh walks the index newest first and returns the first entry that
// still exists and has expires_at after now.
func (c *Cache) GetFresh(ctx context.Context, candidateID, signature string, now time.Time) (*types.CacheEntry, error) {
	ids, err := c.rdb.ZRevRange(ctx, c.indexKey(candidateID, signature), 0, -1).Result()
	if err != nil {
		return nil, storage.Fault(backend, "get cache index", err)
	}
	for _, id := range ids {
		raw, err := c.rdb.Get(ctx, c.entryKey(id)).Bytes()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return nil, storage.Fault(backend, "get cache entry", err)
		}
		var e types.CacheEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("cache %s: failed to unmarshal entry: %w", id, err)
		}
		if e.FreshAt(now) {
			return &e, nil
		}
	}
	return nil, nil
}

// PutCache writes the entry and its index member in one pipeline.
func (c *Cache) PutCache(ctx context.Context, candidateID, signature string, results []types.RankedID,
	ttl time.Duration, now time.Time) (*types.CacheEntry, error) {
	if results == nil {
		results = []types.RankedID{}
	}
	e := &types.CacheEntry{
		CacheID:     uuid.New().String(),
		CandidateID: candidateID,
		Signature:   signature,
		Results:     results,
		CreatedAt:   now.UTC(),
		ExpiresAt:   now.Add(ttl).UTC(),
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	// Redis expiry is wall-clock; the entry's own expires_at stays authoritative.
	redisTTL := time.Until(e.ExpiresAt)
	if redisTTL < ttl {
		redisTTL = ttl
	}
	if redisTTL <= 0 {
		redisTTL = time.Millisecond
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, c.entryKey(e.CacheID), raw, redisTTL)
		pipe.ZAdd(ctx, c.indexKey(candidateID, signature), goredis.Z{
			Score:  float64(e.CreatedAt.UnixNano()),
			Member: e.CacheID,
		})
		return nil
	})
	if err != nil {
		return nil, storage.Fault(backend, "put cache", err)
	}
	return e, nil
}

// ClearExpired removes index members whose entries are gone or expired at
// now, deleting the entries as it goes.
func (c *Cache) ClearExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	err := c.eachIndex(ctx, func(key string) error {
		ids, err := c.rdb.ZRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		for _, id := range ids {
			raw, err := c.rdb.Get(ctx, c.entryKey(id)).Bytes()
			if err != nil && !errors.Is(err, goredis.Nil) {
				return err
			}
			if err == nil {
				var e types.CacheEntry
				if json.Unmarshal(raw, &e) == nil && e.FreshAt(now) {
					continue
				}
			}
			if _, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Del(ctx, c.entryKey(id))
				pipe.ZRem(ctx, key, id)
				return nil
			}); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, storage.Fault(backend, "clear expired cache", err)
	}
	return removed, nil
}

// CountEntries sums the cardinality of every index.
func (c *Cache) CountEntries(ctx context.Context) (int, error) {
	total := 0
	err := c.eachIndex(ctx, func(key string) error {
		n, err := c.rdb.ZCard(ctx, key).Result()
		if err != nil {
			return err
		}
		total += int(n)
		return nil
	})
	if err != nil {
		return 0, storage.Fault(backend, "count cache", err)
	}
	return total, nil
}

func (c *Cache) eachIndex(ctx context.Context, fn func(key string) error) error {
	iter := c.rdb.Scan(ctx, 0, c.prefix+"idx:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close releases the client.
func (c *Cache) Close() error {
	return c.rdb.Close()
}
