package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telegate/telegate/internal/config"
	"github.com/telegate/telegate/modules/channel/telegram"
	"github.com/telegate/telegate/pkg/app"
)

const botAPITimeout = 30 * time.Second

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
		Long: "One-shot Bot API calls using the channel.telegram section of the " +
			"configuration. The running bridge re-asserts the webhook on its own; " +
			"these commands are for setup and debugging.",
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	cmd.AddCommand(webhookSetCmd(), webhookDeleteCmd(), webhookInfoCmd())
	return cmd
}

func webhookSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set",
		Short: "Register the configured webhook URL with Telegram",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tcfg, err := telegramSection(cmd)
			if err != nil {
				return err
			}
			if tcfg.WebhookURL == "" {
				return errors.New("channel.telegram.webhook_url is not set")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), botAPITimeout)
			defer cancel()

			client := telegram.NewClient(tcfg.Token, tcfg.APIURL)
			if err := client.SetWebhook(ctx, telegram.SetWebhookRequest{
				URL:            tcfg.WebhookURL,
				SecretToken:    tcfg.WebhookSecret,
				AllowedUpdates: tcfg.AllowedUpdates,
			}); err != nil {
				return err
			}
			fmt.Printf("Webhook set to %s\n", tcfg.WebhookURL)
			return nil
		},
	}
}

func webhookDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook registration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tcfg, err := telegramSection(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), botAPITimeout)
			defer cancel()

			client := telegram.NewClient(tcfg.Token, tcfg.APIURL)
			if err := client.DeleteWebhook(ctx); err != nil {
				return err
			}
			fmt.Println("Webhook deleted; updates fall back to polling.")
			return nil
		},
	}
}

func webhookInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the current webhook state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tcfg, err := telegramSection(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), botAPITimeout)
			defer cancel()

			client := telegram.NewClient(tcfg.Token, tcfg.APIURL)
			info, err := client.GetWebhookInfo(ctx)
			if err != nil {
				return err
			}

			if info.URL == "" {
				fmt.Println("No webhook registered (polling mode).")
				return nil
			}
			fmt.Printf("URL:             %s\n", info.URL)
			fmt.Printf("Pending updates: %d\n", info.PendingUpdateCount)
			if info.MaxConnections > 0 {
				fmt.Printf("Max connections: %d\n", info.MaxConnections)
			}
			if info.LastErrorDate > 0 {
				fmt.Printf("Last error:      %s (%s)\n",
					info.LastErrorMessage,
					time.Unix(int64(info.LastErrorDate), 0).Format(time.RFC3339))
			}
			return nil
		},
	}
}

// telegramSection loads the channel.telegram config the same way the module
// would see it, with just enough defaulting to build a Bot API client.
func telegramSection(cmd *cobra.Command) (*telegram.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		resolved, err := app.ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	node, ok := cfg.Modules["channel.telegram"]
	if !ok {
		return nil, fmt.Errorf("%s has no channel.telegram section", cfgPath)
	}

	var tcfg telegram.Config
	if err := node.Decode(&tcfg); err != nil {
		return nil, fmt.Errorf("parsing channel.telegram section: %w", err)
	}
	if tcfg.Token == "" {
		return nil, errors.New("channel.telegram.token is empty")
	}
	if tcfg.APIURL == "" {
		tcfg.APIURL = "https://api.telegram.org"
	}
	if tcfg.AllowedUpdates == nil {
		// Matches the channel's own default update set.
		tcfg.AllowedUpdates = []string{"message", "edited_message", "callback_query"}
	}
	return &tcfg, nil
}
