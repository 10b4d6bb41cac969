package main

import (
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rushteam/recserve/api"
	"github.com/rushteam/recserve/pkg/logging"
	"github.com/rushteam/recserve/server"
)

func serveCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the batch worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			httpSrv := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      api.NewRouter(a.svc, logging.Component("api")),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			sup := server.NewSupervisor("recserve", server.SupervisorOptions{
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				Logger:          logging.Component("supervisor"),
			})
			sup.Add(server.NewHTTPService(httpSrv, cfg.Server.ShutdownTimeout, logging.Component("http")))
			sup.Add(a.worker)

			a.log.Info().
				Str("addr", cfg.Server.Addr).
				Str("algorithm_version", a.svc.CurrentAlgorithmVersion()).
				Str("docstore", cfg.DocStore.Backend).
				Str("cache", cfg.Cache.Backend).
				Msg("recserve starting")

			if err := sup.Serve(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			a.log.Info().Msg("recserve stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}
