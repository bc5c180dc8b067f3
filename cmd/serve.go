package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"outreach-mailer/internal/server"
	"outreach-mailer/internal/store"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx := cmd.Context()
			st, err := store.Open(ctx, &cfg.Storage)
			if err != nil {
				return err
			}
			defer func() {
				if err := st.Close(); err != nil {
					log.Warn().Err(err).Msg("Error closing store")
				}
			}()

			gen, err := newGenerator(cfg)
			if err != nil {
				return err
			}

			return server.New(st, gen, cfg).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server.addr")
	return cmd
}
