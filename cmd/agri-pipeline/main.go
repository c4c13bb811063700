package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agri-pipeline/internal/common/config"
	"agri-pipeline/internal/common/logger"
)

var (
	configPath string
	logLevel   string

	zapLog *zap.Logger
	log    logger.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "agri-pipeline",
	Short: "Agricultural advisory generation pipeline",
	Long: `agri-pipeline turns farm data into annual plans, crop diagnoses and
weather advisories by grounding a generative model in retrieved context.

The same pipeline is served over HTTP (serve) and as Zeebe job workers (worker).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadFromFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}

		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		zapLog = logger.New(level, cfg.Logging.Format, cfg.Logging.Output)
		log = logger.NewZapAdapter(zapLog)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if zapLog != nil {
			_ = zapLog.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(serveCmd, workerCmd, schemasCmd)
}

// retryWithBackoff attempts operation up to maxRetries times, doubling the delay.
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			zapLog.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
