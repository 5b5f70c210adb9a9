package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pysugar/codex-status-fleet/internal/api"
	"github.com/pysugar/codex-status-fleet/internal/config"
	"github.com/pysugar/codex-status-fleet/internal/refresh"
	"github.com/pysugar/codex-status-fleet/internal/version"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	deps := api.Deps{
		Registry:      a.registry,
		Coordinator:   a.coordinator,
		Gatherer:      a.metrics,
		AdminPassword: a.cfg.AdminPassword,
	}
	if a.journal != nil {
		deps.States = a.journal
	}

	if a.cfg.WatchConfig {
		err := a.registry.Watch(ctx, func() {
			log.Printf("📝 [Accounts] %s changed, pushing registry", a.registry.Path())
			if err := a.coordinator.PushInventory(context.Background()); err != nil {
				log.Printf("⚠️ [Accounts] registry push after config change failed: %v", err)
			}
		})
		if err != nil {
			log.Printf("⚠️ [Accounts] config watch disabled: %v", err)
		}
	}

	go refresh.NewScheduler(a.coordinator, a.cfg.RefreshInterval).Run(ctx)

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 Refresher %s starting on http://%s", version.Version, srv.Addr)
		log.Printf("📡 Collector: %s", a.cfg.CollectorBaseURL())
		if a.cfg.AdminPassword != "" {
			log.Printf("🔒 Admin endpoints require ADMIN_PASSWORD")
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Printf("[Server] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
