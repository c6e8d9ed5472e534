package rag

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/liao/claim-assistant/internal/metrics"
)

var ErrInvalidQuery = errors.New("invalid retrieval query")

// Claim 一条检索到的理赔记录，Similarity 越大越相似
type Claim struct {
	ID          string  `json:"claim_id"`
	Description string  `json:"description"`
	Similarity  float32 `json:"similarity"`
}

// IndexedClaim 带向量的理赔记录，导入时使用
type IndexedClaim struct {
	ID          string
	Description string
	Vector      []float32
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher 按余弦相似度降序返回前 k 条
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]Claim, error)
}

// RetrievalError embedding 或检索失败
type RetrievalError struct {
	Stage string // "embed" / "search"
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval %s: %v", e.Stage, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

type Pipeline struct {
	embedder  Embedder
	searcher  Searcher
	dimension int
	timeout   time.Duration
	metrics   *metrics.Metrics
}

type Option func(*Pipeline)

// WithDimension 校验 embedding 长度，0 表示不校验
func WithDimension(n int) Option {
	return func(p *Pipeline) { p.dimension = n }
}

// WithTimeout 每次远程调用的超时
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func NewPipeline(embedder Embedder, searcher Searcher, opts ...Option) *Pipeline {
	p := &Pipeline{embedder: embedder, searcher: searcher}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SearchText 有历史时把历史拼在问题前面
func SearchText(query, history string) string {
	if history == "" {
		return query
	}
	return history + "\n" + query
}

// Claims 检索与问题最相似的 k 条理赔记录
func (p *Pipeline) Claims(ctx context.Context, query, history string, k int) ([]Claim, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query: %w", ErrInvalidQuery)
	}
	if k < 1 {
		return nil, fmt.Errorf("k=%d: %w", k, ErrInvalidQuery)
	}

	start := time.Now()
	defer func() { p.metrics.ObserveRetrieval(time.Since(start)) }()

	vec, err := p.embed(ctx, SearchText(query, history))
	if err != nil {
		return nil, &RetrievalError{Stage: "embed", Err: err}
	}
	if p.dimension > 0 && len(vec) != p.dimension {
		return nil, &RetrievalError{
			Stage: "embed",
			Err:   fmt.Errorf("malformed vector: got %d dimensions, want %d", len(vec), p.dimension),
		}
	}

	claims, err := p.search(ctx, vec, k)
	if err != nil {
		return nil, &RetrievalError{Stage: "search", Err: err}
	}

	slices.SortStableFunc(claims, func(a, b Claim) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})

	slog.Debug("claims retrieved", "k", k, "count", len(claims), "history", history != "")
	return claims, nil
}

// Retrieve 返回拼接好的上下文，没有命中时为空串
func (p *Pipeline) Retrieve(ctx context.Context, query, history string, k int) (string, error) {
	claims, err := p.Claims(ctx, query, history, k)
	if err != nil {
		return "", err
	}
	return JoinContext(claims), nil
}

// JoinContext 按顺序用换行拼接描述
func JoinContext(claims []Claim) string {
	parts := make([]string, len(claims))
	for i, c := range claims {
		parts[i] = c.Description
	}
	return strings.Join(parts, "\n")
}

func (p *Pipeline) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.embedder.Embed(ctx, text)
}

func (p *Pipeline) search(ctx context.Context, vec []float32, k int) ([]Claim, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.searcher.Search(ctx, vec, k)
}

func (p *Pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}
