package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

const (
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

type Config struct {
	APIKey          string
	BaseURL         string // 为空时使用官方地址
	ChatModel       string
	EmbeddingModel  string
	Dimension       int
	Temperature     float32
	MaxOutputTokens int32
	Timeout         time.Duration
}

// Client 封装 Gemini 的 embedding 和文本生成，两者都视为无状态的远程函数
type Client struct {
	client     *genai.Client
	chatModel  string
	embedModel string
	dimension  int32
	temp       float32
	maxTokens  int32
	timeout    time.Duration
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{
		client:     client,
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbeddingModel,
		dimension:  int32(cfg.Dimension),
		temp:       cfg.Temperature,
		maxTokens:  cfg.MaxOutputTokens,
		timeout:    cfg.Timeout,
	}, nil
}

func (c *Client) ChatModel() string { return c.chatModel }

// Complete 单次生成，返回完整文本
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temp),
		MaxOutputTokens: c.maxTokens,
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.chatModel,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	slog.Debug("generated answer", "model", c.chatModel, "chars", len(text))
	return text, nil
}

// Embed 生成查询向量
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, taskRetrievalQuery)
}

// EmbedDocument 生成入库文档的向量
func (c *Client) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, taskRetrievalDocument)
}

func (c *Client) embed(ctx context.Context, text, task string) ([]float32, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cfg := &genai.EmbedContentConfig{TaskType: task}
	if c.dimension > 0 {
		cfg.OutputDimensionality = genai.Ptr(c.dimension)
	}
	resp, err := c.client.Models.EmbedContent(ctx, c.embedModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Embeddings[0].Values, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
