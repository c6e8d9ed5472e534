package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/liao/claim-assistant/internal/ai"
	"github.com/liao/claim-assistant/internal/config"
	"github.com/liao/claim-assistant/internal/logging"
	"github.com/liao/claim-assistant/internal/parser"
	"github.com/liao/claim-assistant/internal/rag"
	"github.com/liao/claim-assistant/internal/warehouse"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	inputFile := flag.String("input", "", "claims export (.csv, .jsonl, .html, .txt or encrypted .enc)")
	format := flag.String("format", "auto", "input format: csv, jsonl, html, text, enc-jsonl, auto")
	decryptKey := flag.String("decrypt-key", "", "decryption password for .enc files (from env DECRYPT_KEY if not set)")
	batchSize := flag.Int("batch", 50, "claims embedded and written per batch")
	workers := flag.Int("workers", 4, "concurrent embedding calls")
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: claim-importer -input <file> [-format auto] [-decrypt-key <key>] [-batch 50]\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	_, closer, err := logging.Setup(logging.Options{
		File:       cfg.Log.File,
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Console:    os.Stdout,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	defer closer.Close()

	dk := *decryptKey
	if dk == "" {
		dk = os.Getenv("DECRYPT_KEY")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *inputFile, *format, dk, *batchSize, *workers); err != nil {
		slog.Error("import failed", "error", err)
		stop()
		closer.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, input, format, decryptKey string, batchSize, workers int) error {
	// 1. 解析导出文件
	slog.Info("parsing claims", "file", input, "format", format)
	parsed, err := parseInput(input, format, decryptKey)
	if err != nil {
		return err
	}
	claims := parser.Dedupe(parsed)
	slog.Info("parsed", "records", len(parsed), "claims", len(claims))
	if len(claims) == 0 {
		return fmt.Errorf("no claims found in %s", input)
	}

	// 2. Gemini 客户端
	client, err := ai.NewClient(ctx, ai.Config{
		APIKey:         cfg.Gemini.APIKey,
		BaseURL:        cfg.Gemini.BaseURL,
		EmbeddingModel: cfg.Gemini.EmbeddingModel,
		Dimension:      cfg.Gemini.Dimension,
		Timeout:        cfg.Gemini.Timeout,
	})
	if err != nil {
		return fmt.Errorf("create AI client: %w", err)
	}

	// 3. 写入目标
	sink, target, cleanup, err := openSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// 4. 分批向量化并写入
	imp := &importer{embedder: client, sink: sink, batchSize: batchSize, workers: workers}
	written, err := imp.Import(ctx, claims)
	if err != nil {
		return err
	}

	// 5. 导入报告
	fmt.Printf(`Import Report
=============
Records parsed: %d
Claims written: %d
Target:         %s
`, len(parsed), written, target)
	slog.Info("done!")
	return nil
}

func parseInput(path, format, decryptKey string) ([]parser.Claim, error) {
	if format == "auto" {
		detected, err := parser.DetectFormat(path)
		if err != nil {
			return nil, err
		}
		format = detected
	}

	switch format {
	case parser.FormatEncJSONL:
		if decryptKey == "" {
			return nil, fmt.Errorf("-decrypt-key required for encrypted files")
		}
		plaintext, err := parser.DecryptFile(path, decryptKey)
		if err != nil {
			return nil, err
		}
		slog.Info("decrypted successfully", "bytes", len(plaintext))
		claims, err := parser.ParseJSONLBytes(plaintext)
		// 清除内存中的明文
		for i := range plaintext {
			plaintext[i] = 0
		}
		return claims, err
	case parser.FormatJSONL:
		return parser.ParseJSONLFile(path)
	case parser.FormatCSV:
		return parser.ParseCSVFile(path)
	case parser.FormatHTML:
		return parser.ParseHTMLFile(path)
	case parser.FormatText:
		return parser.ParseTextFile(path)
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

func openSink(ctx context.Context, cfg *config.Config) (sinkFunc, string, func(), error) {
	if cfg.Warehouse.Backend == config.BackendLocal {
		store, err := rag.NewStore(cfg.RAG.VectorsDir, nil)
		if err != nil {
			return nil, "", nil, err
		}
		return store.AddClaims, "local store " + cfg.RAG.VectorsDir, func() {}, nil
	}

	conn := warehouse.NewConnector(cfg.Warehouse, warehouse.WithCreateExtension())
	loader := warehouse.NewLoader(conn)
	if err := loader.EnsureTable(ctx, cfg.Gemini.Dimension); err != nil {
		conn.Close()
		return nil, "", nil, err
	}
	return loader.Upsert, "warehouse table " + loader.Table(), conn.Close, nil
}
