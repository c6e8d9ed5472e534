package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGemini 只实现本项目用到的两个接口
func fakeGemini(t *testing.T, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"code":500,"message":"backend exploded","status":"INTERNAL"}}`))
			return
		}
		var body any
		switch {
		case strings.HasSuffix(r.URL.Path, ":generateContent"):
			body = map[string]any{
				"candidates": []any{map[string]any{
					"content": map[string]any{
						"role":  "model",
						"parts": []any{map[string]any{"text": "Claim C123 involves water damage."}},
					},
					"finishReason": "STOP",
				}},
			}
		case strings.Contains(r.URL.Path, "mbedContent"):
			vec := []float32{0.1, 0.2, 0.3}
			body = map[string]any{
				"embeddings": []any{map[string]any{"values": vec}},
				"embedding":  map[string]any{"values": vec},
			}
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), Config{
		APIKey:          "test-key",
		BaseURL:         url,
		ChatModel:       "gemini-2.5-flash",
		EmbeddingModel:  "text-embedding-004",
		Dimension:       3,
		Temperature:     0.2,
		MaxOutputTokens: 256,
		Timeout:         5 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestClientCompleteAndEmbed(t *testing.T) {
	srv := fakeGemini(t, http.StatusOK)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	got, err := c.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Claim C123 involves water damage.", got)

	vec, err := c.Embed(context.Background(), "water damage")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestClientCompleteFailureBecomesGenerationError(t *testing.T) {
	srv := fakeGemini(t, http.StatusInternalServerError)
	defer srv.Close()
	c := newTestClient(t, srv.URL)

	_, err := c.Complete(context.Background(), "prompt")
	require.Error(t, err)

	_, err = NewGenerator(c, nil).Generate(context.Background(), "prompt")
	var gerr *GenerationError
	require.ErrorAs(t, err, &gerr)
}
