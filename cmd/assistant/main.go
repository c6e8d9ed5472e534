package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/liao/claim-assistant/internal/config"
	"github.com/liao/claim-assistant/internal/logging"
)

var setupLogging = logging.Setup

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var (
		configPath string
		logCloser  io.Closer
		cfg        *config.Config
	)
	// 命令失败时 PersistentPostRun 不会执行，日志文件统一在这里关闭
	defer func() {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	}()

	root := &cobra.Command{
		Use:           "assistant",
		Short:         "Insurance claim question answering over the claims warehouse",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}

			// TUI 模式下日志只写文件
			var console io.Writer = os.Stderr
			if cmd.Name() == "chat" {
				console = nil
			}
			_, logCloser, err = setupLogging(logging.Options{
				File:       cfg.Log.File,
				Level:      cfg.Log.Level,
				MaxSizeMB:  cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAgeDays: cfg.Log.MaxAgeDays,
				Console:    console,
			})
			return err
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "config file path")
	root.SetArgs(args)

	loadCfg := func() *config.Config { return cfg }
	root.AddCommand(chatCMD(loadCfg), askCMD(loadCfg), serveCMD(loadCfg))

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("assistant failed", "error", err)
		return err
	}
	return nil
}
