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

	"github.com/jjudge-oj/accounts/internal/events"
	"github.com/jjudge-oj/accounts/internal/mq"
	"github.com/spf13/cobra"
)

// eventsCmd groups account event commands.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect account events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print account events as JSON lines until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.NewFromConfig(ctx, cfg)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("events are disabled; set EVENTS_BACKEND to rabbitmq or pubsub")
		}
		defer queue.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		log.Info("tailing account events", "channel", cfg.Events.Channel)
		err = queue.Subscribe(ctx, cfg.Events.Channel, func(ctx context.Context, msg mq.Message) error {
			event, err := events.Decode(msg)
			if err != nil {
				// Undecodable messages would be redelivered forever.
				log.Warn("skipping message", "message_id", msg.ID, "error", err)
				return nil
			}
			return enc.Encode(event)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("subscribe %s: %w", cfg.Events.Channel, err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
