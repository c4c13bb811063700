package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agri-pipeline/internal/api"
	"agri-pipeline/internal/app"
	"agri-pipeline/internal/common/camunda"
	"agri-pipeline/internal/common/config"
)

var healthAddr string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the generation tasks as Zeebe job workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ValidateForWorkers(cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.Build(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		var client *camunda.Client
		err = retryWithBackoff(func() error {
			var err error
			client, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: cfg.Camunda.Plaintext,
				RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, "Zeebe client initialization")
		if err != nil {
			return err
		}
		defer client.Close()
		zapLog.Info("Zeebe client connected successfully")

		workers := startWorkers(client, a)
		if len(workers) == 0 {
			return fmt.Errorf("no workers enabled")
		}
		zapLog.Info("Workers registered", zap.Int("count", len(workers)))

		checks := map[string]api.ReadinessCheck{"zeebe": client.HealthCheck}
		for name, check := range a.Checks {
			checks[name] = check
		}
		srv := api.NewServer(api.Options{
			Checks:     checks,
			Production: cfg.App.IsProduction(),
			Logger:     log,
		}).HTTPServer(healthAddr, 10*time.Second, 10*time.Second)

		go func() {
			zapLog.Info("Health/Metrics server listening", zap.String("address", healthAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zapLog.Error("Health/Metrics server failed", zap.Error(err))
			}
		}()

		<-ctx.Done()
		zapLog.Info("Shutdown signal received, stopping workers...")

		for _, w := range workers {
			w.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)

		zapLog.Info("Workers stopped gracefully")
		return nil
	},
}

func startWorkers(client *camunda.Client, a *app.App) []*camunda.CamundaWorker {
	var workers []*camunda.CamundaWorker
	for _, ws := range a.Workers() {
		if !ws.Enabled {
			zapLog.Info("worker disabled", zap.String("taskType", ws.TaskType))
			continue
		}
		workers = append(workers, camunda.NewWorker(client.GetClient(), camunda.WorkerOptions{
			TaskType:      ws.TaskType,
			MaxJobsActive: ws.MaxJobsActive,
			Timeout:       ws.Timeout,
		}, ws.Handler, log))
	}
	return workers
}

func init() {
	workerCmd.Flags().StringVar(&healthAddr, "health-addr", ":8081", "health and metrics listen address")
}
