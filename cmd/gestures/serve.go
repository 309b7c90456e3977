package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/gestures"
	itls "github.com/loykin/gestures/internal/tls"
)

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the gestures daemon",
		Long: `Start the gesture engine with its HTTP API. Configuration is read from
the TOML file given by --config or as argument; without one the built-in
defaults apply (in-memory store, API on 127.0.0.1:8090/api).

Examples:
  gestures serve
  gestures serve gestures.toml
  gestures serve --listen :9000 --metrics-listen :9100`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := globalFlags.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			cfg, err := gestures.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			if serveFlags.Listen != "" {
				cfg.Server.Enabled = true
				cfg.Server.Listen = serveFlags.Listen
			}
			if serveFlags.MetricsListen != "" {
				cfg.Metrics.Enabled = true
				cfg.Metrics.Listen = serveFlags.MetricsListen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&serveFlags.Listen, "listen", "", "API listen address (overrides [server].listen)")
	cmd.Flags().StringVar(&serveFlags.MetricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
	return cmd
}

// runServe opens the service and blocks until ctx is done.
func runServe(ctx context.Context, cfg *gestures.Config) error {
	if cfg.Metrics.Enabled {
		if err := gestures.RegisterMetricsDefault(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}
	svc, err := gestures.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()
	logger := svc.Logger

	var servers []*http.Server
	errCh := make(chan error, 2)
	listen := func(name string, srv *http.Server) {
		servers = append(servers, srv)
		go func() {
			var err error
			if srv.TLSConfig != nil {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s server: %w", name, err)
			}
		}()
		logger.Info("listening", "server", name, "addr", srv.Addr, "tls", srv.TLSConfig != nil)
	}

	if cfg.Server.Enabled {
		tlsCfg, err := itls.Setup(cfg.Server.TLS)
		if err != nil {
			return fmt.Errorf("server tls: %w", err)
		}
		listen("api", &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           svc.Handler(),
			TLSConfig:         tlsCfg,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		})
	}
	if cfg.Metrics.Enabled {
		listen("metrics", gestures.NewMetricsServer(cfg.Metrics.Listen))
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		err = nil
	case err = <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
	return err
}
