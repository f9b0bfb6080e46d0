package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"relaybot/internal/transport/telegram"
	logx "relaybot/pkg/logx"
)

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Register or remove the Telegram webhook",
	}
	var (
		url         string
		dropPending bool
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Point Telegram at ingress.public_url (or --url)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if url == "" {
				url = cfg.Ingress.PublicURL
			}
			if url == "" {
				return errors.New("no webhook url: set ingress.public_url, WEBHOOK_URL or --url")
			}
			tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, APIURL: cfg.Telegram.APIURL, Offline: true}, logx.NewConsole(cfg.Logging.Level))
			if err != nil {
				return err
			}
			if err := tg.SetWebhook(url, cfg.Ingress.Secret, dropPending || cfg.Ingress.DropPending); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "webhook set to %s\n", url)
			return nil
		},
	}
	set.Flags().StringVar(&url, "url", "", "public https url (overrides config)")
	set.Flags().BoolVar(&dropPending, "drop-pending", false, "discard updates queued while no webhook was set")

	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook so long polling can be used",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, APIURL: cfg.Telegram.APIURL, Offline: true}, logx.NewConsole(cfg.Logging.Level))
			if err != nil {
				return err
			}
			if err := tg.DeleteWebhook(dropPending); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "webhook deleted")
			return nil
		},
	}
	del.Flags().BoolVar(&dropPending, "drop-pending", false, "discard pending updates")

	cmd.AddCommand(set, del)
	return cmd
}
