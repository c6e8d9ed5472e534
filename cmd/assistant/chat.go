package main

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/liao/claim-assistant/internal/config"
	"github.com/liao/claim-assistant/internal/tui"
)

func chatCMD(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg())
			if err != nil {
				return err
			}
			defer a.Close()

			p := tea.NewProgram(tui.New(ctx, a.orch), tea.WithAltScreen(), tea.WithContext(ctx))
			a.orch.Subscribe(tui.Forward(p))
			_, err = p.Run()
			if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}
