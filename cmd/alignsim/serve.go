package main

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alignsim/alignsim/internal/server"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the simulation HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conn, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			registry, err := buildRegistry(context.Background(), cfg, conn)
			if err != nil {
				return err
			}

			if addr == "" {
				addr = cfg.Server.Addr
			}
			srv := server.NewServer(registry, baseRunConfig(cfg))
			log.Info().Str("addr", addr).Msg("starting simulation API")
			return http.ListenAndServe(addr, srv.Routes())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr from config)")
	return cmd
}
