package main

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/liao/claim-assistant/internal/parser"
	"github.com/liao/claim-assistant/internal/rag"
)

type documentEmbedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

type sinkFunc func(ctx context.Context, claims []rag.IndexedClaim) error

// importer 分批向量化，每批写完再处理下一批
type importer struct {
	embedder  documentEmbedder
	sink      sinkFunc
	batchSize int
	workers   int
}

func (im *importer) Import(ctx context.Context, claims []parser.Claim) (int, error) {
	size := im.batchSize
	if size < 1 {
		size = 1
	}
	written := 0
	for start := 0; start < len(claims); start += size {
		end := min(start+size, len(claims))
		batch, err := im.embed(ctx, claims[start:end])
		if err != nil {
			return written, fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if err := im.sink(ctx, batch); err != nil {
			return written, fmt.Errorf("write batch at %d: %w", start, err)
		}
		written += len(batch)
		slog.Info("imported", "progress", fmt.Sprintf("%d/%d", written, len(claims)))
	}
	return written, nil
}

func (im *importer) embed(ctx context.Context, claims []parser.Claim) ([]rag.IndexedClaim, error) {
	out := make([]rag.IndexedClaim, len(claims))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, im.workers))
	for i, c := range claims {
		g.Go(func() error {
			vec, err := im.embedder.EmbedDocument(ctx, c.Description)
			if err != nil {
				return fmt.Errorf("claim %s: %w", c.ID, err)
			}
			out[i] = rag.IndexedClaim{ID: c.ID, Description: c.Description, Vector: vec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
