package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/liao/claim-assistant/internal/ai"
	"github.com/liao/claim-assistant/internal/assistant"
	"github.com/liao/claim-assistant/internal/chat"
	"github.com/liao/claim-assistant/internal/config"
	"github.com/liao/claim-assistant/internal/metrics"
	"github.com/liao/claim-assistant/internal/persona"
	"github.com/liao/claim-assistant/internal/rag"
	"github.com/liao/claim-assistant/internal/warehouse"
)

// app 一个进程内的全部组件，只有一个对话
type app struct {
	orch     *assistant.Orchestrator
	registry *prometheus.Registry
	conn     *warehouse.Connector
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Gemini 客户端
	client, err := ai.NewClient(ctx, aiConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create AI client: %w", err)
	}
	slog.Info("AI client initialized", "chat_model", client.ChatModel(), "embedding_model", cfg.Gemini.EmbeddingModel)

	a := &app{registry: reg}

	// 相似度检索后端
	var searcher rag.Searcher
	switch cfg.Warehouse.Backend {
	case config.BackendLocal:
		store, err := rag.NewStore(cfg.RAG.VectorsDir, nil)
		if err != nil {
			return nil, &config.Error{Field: "rag.vectors_dir", Reason: "open local store", Err: err}
		}
		searcher = store
	default:
		a.conn = warehouse.NewConnector(cfg.Warehouse)
		if _, err := a.conn.Pool(ctx); err != nil {
			return nil, err
		}
		searcher = warehouse.NewSearcher(a.conn, cfg.Warehouse)
	}

	var embedder rag.Embedder = client
	if cfg.RAG.CacheSize > 0 {
		embedder = rag.NewCachedEmbedder(client, cfg.RAG.CacheSize, cfg.RAG.CacheTTL, m)
	}
	pipeline := rag.NewPipeline(embedder, searcher,
		rag.WithDimension(cfg.Gemini.Dimension),
		rag.WithTimeout(cfg.RAG.Timeout),
		rag.WithMetrics(m),
	)

	profile := persona.Default()
	if cfg.PersonaFile != "" {
		p, err := persona.LoadFromFile(cfg.PersonaFile)
		if err != nil {
			slog.Warn("load persona failed, using default", "error", err)
		} else {
			profile = p
		}
	}

	a.orch = assistant.New(chat.NewState(), pipeline, ai.NewPromptBuilder(profile), ai.NewGenerator(client, m),
		assistant.Config{TopK: cfg.RAG.TopK, IncludeAnswers: cfg.RAG.IncludeAnswers}, m)
	a.orch.Subscribe(assistant.LogEvents(slog.Default()))
	return a, nil
}

func (a *app) Close() {
	if a.conn != nil {
		a.conn.Close()
	}
}

func aiConfig(cfg *config.Config) ai.Config {
	return ai.Config{
		APIKey:          cfg.Gemini.APIKey,
		BaseURL:         cfg.Gemini.BaseURL,
		ChatModel:       cfg.Gemini.ChatModel,
		EmbeddingModel:  cfg.Gemini.EmbeddingModel,
		Dimension:       cfg.Gemini.Dimension,
		Temperature:     cfg.Gemini.Temperature,
		MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
		Timeout:         cfg.Gemini.Timeout,
	}
}
