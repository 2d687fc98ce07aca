// Package fusecache caches fused responses in a key-value store.
// Fusion is deterministic for a fixed input, so a cached response is
// indistinguishable from a recomputed one.
package fusecache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/hybridrank/internal/db"
	"github.com/kailas-cloud/hybridrank/internal/usecase/fusion"
)

var cacheKeyPrefix = "hybridrank:fuse_cache:"

// store is the consumer interface for the response cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Fuser is the fusion entry point this decorator wraps.
type Fuser interface {
	Fuse(ctx context.Context, req fusion.Request) (fusion.Response, error)
}

// CachedFuser caches fused responses keyed by a digest of the request.
type CachedFuser struct {
	inner      Fuser
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner Fuser,
	s store,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedFuser {
	return &CachedFuser{
		inner:      inner,
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Fuse returns a cached response or calls the inner fuser. Errors from
// the store never fail the request; the cache degrades to a miss.
func (c *CachedFuser) Fuse(ctx context.Context, req fusion.Request) (fusion.Response, error) {
	key := c.cacheKey(req)

	if resp, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return resp, nil
	}

	c.incCache("miss")

	resp, err := c.inner.Fuse(ctx, req)
	if err != nil {
		return fusion.Response{}, fmt.Errorf("fuse: %w", err)
	}

	c.putToCache(ctx, key, resp)
	return resp, nil
}

func (c *CachedFuser) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// cacheKey digests the full request: fusion parameters, every shard's
// per-sub-query candidate lists, and collapse values when collapse is
// on. Traversal order is fixed, so equal requests share a key.
func (c *CachedFuser) cacheKey(req fusion.Request) string {
	h := sha256.New()
	p := req.Params

	hashString(h, string(p.Normalization))
	hashString(h, string(p.Combination))
	hashInt(h, p.Weights.Len())
	for i := 0; i < p.Weights.Len(); i++ {
		hashFloat(h, p.Weights.At(i))
	}
	hashInt(h, p.RankConstant)
	hashInt(h, p.TopK)
	hashString(h, p.CollapseField)
	hashBool(h, p.Explain)
	hashInt(h, len(p.SubQueryNames))
	for _, name := range p.SubQueryNames {
		hashString(h, name)
	}

	shards := req.Table.Shards()
	hashInt(h, len(shards))
	for _, sh := range shards {
		hashString(h, sh.Shard().Index())
		hashInt(h, sh.Shard().Num())
		hashInt(h, sh.NumSubQueries())
		for _, sq := range sh.SubQueries() {
			hashInt(h, len(sq))
			for _, e := range sq {
				hashInt(h, e.Doc())
				hashFloat(h, e.Score().Wire())
				if p.CollapseField != "" {
					k := req.CollapseValues[sh.Ref(e.Doc())]
					hashString(h, k.Kind().String())
					hashString(h, k.Str())
					hashInt64(h, k.Int64())
				}
			}
		}
	}

	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (c *CachedFuser) getFromCache(ctx context.Context, key string) (fusion.Response, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached response", zap.String("key", key), zap.Error(err))
		}
		return fusion.Response{}, false
	}
	if len(data) == 0 {
		return fusion.Response{}, false
	}

	resp, err := decodeResponse(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached response", zap.String("key", key), zap.Error(err))
		return fusion.Response{}, false
	}
	return resp, true
}

func (c *CachedFuser) putToCache(ctx context.Context, key string, resp fusion.Response) {
	data, err := encodeResponse(resp)
	if err != nil {
		c.logger.Warn("Failed to encode response for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache response", zap.String("key", key), zap.Error(err))
	}
}

func hashString(h hash.Hash, s string) {
	hashInt(h, len(s))
	h.Write([]byte(s))
}

func hashInt(h hash.Hash, v int) {
	hashInt64(h, int64(v))
}

func hashInt64(h hash.Hash, v int64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	h.Write(buf[:])
}

func hashFloat(h hash.Hash, v float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	h.Write(buf[:])
}

func hashBool(h hash.Hash, v bool) {
	if v {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
}
