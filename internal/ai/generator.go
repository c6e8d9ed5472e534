package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/liao/claim-assistant/internal/metrics"
)

var errEmptyCompletion = errors.New("empty completion")

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GenerationError 生成失败，Err 是底层原因
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Generator 调用补全服务；失败和空回复都返回 *GenerationError
type Generator struct {
	completer Completer
	metrics   *metrics.Metrics
}

func NewGenerator(c Completer, m *metrics.Metrics) *Generator {
	return &Generator{completer: c, metrics: m}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := g.complete(ctx, prompt)
	g.metrics.ObserveGeneration(time.Since(start))
	if err != nil {
		return "", &GenerationError{Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &GenerationError{Err: errEmptyCompletion}
	}
	return text, nil
}

// complete 把 panic 也当作失败，保证对话循环不会中断
func (g *Generator) complete(ctx context.Context, prompt string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completion panicked: %v", r)
		}
	}()
	return g.completer.Complete(ctx, prompt)
}
