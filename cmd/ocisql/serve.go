package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koustreak/ocisql/internal/database/sqlnative"
	"github.com/koustreak/ocisql/internal/httpapi"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the handle API over HTTP",
		Long:  `Serve environments, connections and cursors over HTTP. The listen address comes from --addr, OCISQL_ADDR or http.addr in the configuration file.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.dialect()
			if err != nil {
				return err
			}

			cfg := httpapi.DefaultConfig()
			cfg.Addr = a.cfg.HTTP.Addr
			if addr := a.v.GetString("addr"); addr != "" {
				cfg.Addr = addr
			}
			cfg.Int64 = a.cfg.Int64()
			cfg.Prefetch = a.cfg.PrefetchRows

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			lib := sqlnative.New(d, sqlnative.WithLogger(a.log))
			a.log.InfoWith("serving", map[string]interface{}{"backend": d.Name, "addr": cfg.Addr})
			return httpapi.New(lib, cfg, a.log).ListenAndServe(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from configuration, :8080)")
	return cmd
}
