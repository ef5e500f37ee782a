package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/vidqa/internal/server"
)

func serveCMD() *cobra.Command {
	var serveAddr string
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(a.pipe, a.store, nil, []byte(a.cfg.Server.JWTSecret), nil)
			if a.index != nil {
				srv.Index = refreshableIndex{a: a}
			}
			srv.Metrics = a.cfg.Telemetry.Enabled
			srv.DefaultTopK = a.cfg.Retrieval.TopK

			addr := serveAddr
			if addr == "" {
				addr = a.cfg.Server.Address
			}
			return srv.Start(addr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return serve
}

// refreshableIndex adapts the app's index and store to the server's
// refresh surface.
type refreshableIndex struct {
	a *app
}

func (r refreshableIndex) Refresh(ctx context.Context) error {
	return r.a.index.Refresh(ctx, r.a.store)
}

func (r refreshableIndex) Len() int { return r.a.index.Len() }
