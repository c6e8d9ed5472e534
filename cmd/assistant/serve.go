package main

import (
	"github.com/spf13/cobra"

	"github.com/liao/claim-assistant/internal/config"
	"github.com/liao/claim-assistant/internal/server"
)

func serveCMD(cfg func() *config.Config) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the conversation over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if addr != "" {
				c.Server.Addr = addr
			}
			a, err := newApp(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer a.Close()

			return server.New(a.orch, a.registry).Run(cmd.Context(), c.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}
