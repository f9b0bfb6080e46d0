package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"relaybot/internal/app"
	"relaybot/internal/config"
)

func serveCmd() *cobra.Command {
	var stopTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot (webhook or long polling, per telegram.mode)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(config.NewManager(configPath))
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				_ = a.Stop(context.Background(), app.StopFatalError)
				return err
			}

			reason := app.StopSignal
			select {
			case <-ctx.Done():
			case <-a.Done():
				reason = app.StopFatalError
			}
			fatal := a.Err()

			sctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			return errors.Join(fatal, a.Stop(sctx, reason))
		},
	}
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 3*time.Minute, "upper bound for graceful shutdown, including a running broadcast")
	return cmd
}
