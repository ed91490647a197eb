/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bloghq/apiserver/config"
	"github.com/bloghq/apiserver/internal/mq"
)

// eventsCmd tails the configured event channel, printing every lifecycle
// event the server publishes. Mostly useful while developing consumers.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail lifecycle events from the configured broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		logger, err := zap.NewProduction()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var backend mq.Backend
		switch cfg.MQ.Backend {
		case "rabbitmq":
			backend, err = mq.NewRabbitMQBackend(cfg.MQ.RabbitMQ)
		case "pubsub":
			backend, err = mq.NewPubSubBackend(ctx, cfg.MQ.PubSub)
		default:
			return fmt.Errorf("MQ_BACKEND must be set to tail events, got %q", cfg.MQ.Backend)
		}
		if err != nil {
			return err
		}
		defer func() { _ = backend.Close() }()

		logger.Info("tailing events", zap.String("channel", cfg.MQ.EventChannel))
		err = backend.Subscribe(ctx, cfg.MQ.EventChannel, func(ctx context.Context, msg mq.Message) error {
			fmt.Fprintf(os.Stdout, "[%s] %s\n", msg.Attributes["type"], msg.Data)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
