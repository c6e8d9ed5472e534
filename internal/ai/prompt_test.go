package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liao/claim-assistant/internal/persona"
)

func TestBuildPromptEmptyContextAndHistory(t *testing.T) {
	got := BuildPrompt(nil, "", "", "Q")

	assert.NotEmpty(t, got)
	assert.True(t, strings.HasSuffix(got, "Answer this question clearly: Q"))
	assert.Contains(t, got, "You are an expert in insurance.")
	assert.Contains(t, got, noContext)
	assert.NotContains(t, got, "## Conversation so far")
}

func TestBuildPromptSections(t *testing.T) {
	p := &persona.Profile{Role: "You are a domain expert.", Domain: "claim"}
	got := BuildPrompt(p, "desc A\ndesc B", "earlier question", "What is claim C123 about?")

	want := "You are a domain expert.\n\n" +
		"## Conversation so far\nearlier question\n\n" +
		"## Context from claim data\ndesc A\ndesc B\n\n" +
		"Answer this question clearly: What is claim C123 about?"
	assert.Equal(t, want, got)
}

func TestPromptBuilderUsesProfile(t *testing.T) {
	b := NewPromptBuilder(nil)
	got := b.Build("ctx", "", "q")
	assert.Contains(t, got, "## Rules\n1. ")
	assert.Equal(t, got, BuildPrompt(persona.Default(), "ctx", "", "q"))
}

type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func TestGenerator(t *testing.T) {
	tests := []struct {
		name    string
		fn      completerFunc
		want    string
		wantErr bool
	}{
		{
			name: "success",
			fn: func(context.Context, string) (string, error) {
				return "Claim C123 involves water damage.", nil
			},
			want: "Claim C123 involves water damage.",
		},
		{
			name: "remote failure",
			fn: func(context.Context, string) (string, error) {
				return "", context.DeadlineExceeded
			},
			wantErr: true,
		},
		{
			name: "empty completion",
			fn: func(context.Context, string) (string, error) {
				return "  \n", nil
			},
			wantErr: true,
		},
		{
			name: "panic",
			fn: func(context.Context, string) (string, error) {
				panic("malformed response")
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(tt.fn, nil)
			got, err := g.Generate(context.Background(), "prompt")
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			var gerr *GenerationError
			require.True(t, errors.As(err, &gerr))
			assert.Empty(t, got)
			assert.NotEmpty(t, gerr.Error())
		})
	}
}

func TestGenerationErrorUnwrap(t *testing.T) {
	err := &GenerationError{Err: context.DeadlineExceeded}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
