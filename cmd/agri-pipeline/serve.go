package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agri-pipeline/internal/app"
	"agri-pipeline/internal/common/config"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the generation endpoints over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.Server.Address = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.Build(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := a.Server().HTTPServer(cfg.Server.Address,
			config.GetDuration(cfg.Server.ReadTimeout), config.GetDuration(cfg.Server.WriteTimeout))
		errCh := make(chan error, 1)
		go func() {
			zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		zapLog.Info("Shutdown signal received, draining requests...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zapLog.Error("HTTP server shutdown failed", zap.Error(err))
			return err
		}
		zapLog.Info("HTTP server stopped gracefully")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")
}
