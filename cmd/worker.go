/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/guidopia/apiserver/config"
	"github.com/guidopia/apiserver/internal/logging"
	"github.com/guidopia/apiserver/internal/mq"
	"github.com/guidopia/apiserver/internal/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consumes report events from the message broker",
	Long: `Consumes report events from the message broker. Usage:

	apiserver worker
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()

		logger, err := logging.New(cfg.Env == config.EnvProduction)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runWorker(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "worker error: %v\n", err)
			os.Exit(1)
		}
	},
}

// runWorker subscribes to report events and blocks until the context
// is cancelled. Unlike the server, the worker cannot do anything
// useful without a broker, so connection failures are fatal.
func runWorker(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var (
		backend mq.Backend
		err     error
	)
	switch cfg.MQ.Backend {
	case "pubsub":
		backend, err = mq.NewPubSubClient(ctx, cfg.MQ.PubSub)
	case "rabbitmq":
		backend, err = mq.NewRabbitMQClient(cfg.MQ.RabbitMQ)
	default:
		return fmt.Errorf("unknown mq backend %q", cfg.MQ.Backend)
	}
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.MQ.Backend, err)
	}

	broker := mq.New(backend)
	defer broker.Close()

	logger.Info("worker consuming",
		zap.String("backend", cfg.MQ.Backend),
		zap.String("channel", services.ReportGeneratedChannel))

	return broker.Subscribe(ctx, services.ReportGeneratedChannel, func(ctx context.Context, msg mq.Message) error {
		var event struct {
			ReportID string `json:"reportId"`
			UserID   int    `json:"userId"`
		}
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			// A malformed payload will never parse; drop it rather
			// than redeliver forever.
			logger.Warn("dropping malformed report event",
				zap.String("message_id", msg.ID),
				zap.String("error", logging.RedactError(err)))
			return nil
		}

		logger.Info("report generated",
			zap.String("report_id", event.ReportID),
			zap.Int("user_id", event.UserID),
			zap.String("message_id", msg.ID))
		return nil
	})
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
