package rag

import (
	"context"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/liao/claim-assistant/internal/metrics"
)

// sharedEmbedTimeout 合并后的远端调用在调用方没有 deadline 时的上限
const sharedEmbedTimeout = 30 * time.Second

// CachedEmbedder 以原文为键缓存 embedding，容量和过期时间都有上限。
// 并发的相同未命中请求只会打到远端一次，某个调用方取消不影响其他等待者。
type CachedEmbedder struct {
	next    Embedder
	cache   *expirable.LRU[string, []float32]
	group   singleflight.Group
	metrics *metrics.Metrics
}

func NewCachedEmbedder(next Embedder, size int, ttl time.Duration, m *metrics.Metrics) *CachedEmbedder {
	if size <= 0 {
		size = 256
	}
	return &CachedEmbedder{
		next:    next,
		cache:   expirable.NewLRU[string, []float32](size, nil, ttl),
		metrics: m,
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		c.metrics.CacheHit()
		return slices.Clone(v), nil
	}
	c.metrics.CacheMiss()

	ch := c.group.DoChan(text, func() (any, error) {
		shared, cancel := detach(ctx)
		defer cancel()
		vec, err := c.next.Embed(shared, text)
		if err != nil {
			return nil, err
		}
		c.cache.Add(text, vec)
		return vec, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]float32)), nil
	}
}

// detach 去掉调用方的取消，保留它的 deadline
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if dl, ok := ctx.Deadline(); ok {
		return context.WithDeadline(base, dl)
	}
	return context.WithTimeout(base, sharedEmbedTimeout)
}

func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}
