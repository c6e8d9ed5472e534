package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liao/claim-assistant/internal/config"
)

func askCMD(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.orch.Submit(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Assistant.Text)
			if out.Err != nil {
				return fmt.Errorf("answer failed: %w", out.Err)
			}
			return nil
		},
	}
}
