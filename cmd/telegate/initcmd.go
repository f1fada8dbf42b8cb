package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"text/template"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

// starterParams fills the generated starter configuration.
type starterParams struct {
	BotToken      string
	BackendURL    string
	BackendToken  string
	WebhookMode   bool
	PublicURL     string
	WebhookSecret string
	AdminToken    string
}

var starterTmpl = template.Must(template.New("starter").Parse(`version: "1"

modules:
  channel.telegram:
    token: "{{.BotToken}}"
{{- if .WebhookMode}}
    mode: webhook
    webhook_url: "{{.PublicURL}}"
    webhook_secret: "{{.WebhookSecret}}"
{{- else}}
    mode: polling
{{- end}}

  agent.backend:
    url: "{{.BackendURL}}"
    token: "{{.BackendToken}}"

  store.sqlite: {}

  gateway.http:
    bind: 127.0.0.1:8080
{{- if .AdminToken}}
    auth:
      bearer_token: "{{.AdminToken}}"
{{- end}}
`))

// generateStarterConfig writes the starter configuration to w.
func generateStarterConfig(w io.Writer, params starterParams) error {
	return starterTmpl.Execute(w, params)
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively create a starter configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			output, _ := cmd.Flags().GetString("output")
			force, _ := cmd.Flags().GetBool("force")

			if !force {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", output)
				}
			}

			params, err := collectStarterParams()
			if err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return errors.New("init cancelled")
				}
				return err
			}

			f, err := os.OpenFile(output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
			if err != nil {
				return err
			}
			if err := generateStarterConfig(f, params); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Printf("Wrote %s\n\n", output)
			fmt.Printf("Next steps:\n")
			fmt.Printf("  telegate config check %s\n", output)
			fmt.Printf("  telegate start --config %s\n", output)
			if params.WebhookMode {
				fmt.Printf("\nThe webhook registers itself on start; telegate webhook info shows its state.\n")
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "telegate.yaml", "Where to write the configuration")
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}

// collectStarterParams runs the interactive form.
func collectStarterParams() (starterParams, error) {
	var (
		params starterParams
		mode   = "polling"
	)

	nonEmpty := func(s string) error {
		if s == "" {
			return errors.New("required")
		}
		return nil
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram bot token").
				Description("From @BotFather").
				EchoMode(huh.EchoModePassword).
				Validate(nonEmpty).
				Value(&params.BotToken),
			huh.NewInput().
				Title("Backend URL").
				Description("Base URL of the agent backend").
				Placeholder("https://app.example.com").
				Validate(nonEmpty).
				Value(&params.BackendURL),
			huh.NewInput().
				Title("Backend API token").
				EchoMode(huh.EchoModePassword).
				Validate(nonEmpty).
				Value(&params.BackendToken),
			huh.NewSelect[string]().
				Title("Update delivery").
				Options(
					huh.NewOption("Long polling (works everywhere)", "polling"),
					huh.NewOption("Webhook (needs a public HTTPS URL)", "webhook"),
				).
				Value(&mode),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Public webhook URL").
				Description("Must route to this bridge's gateway").
				Placeholder("https://bridge.example.com/webhooks/telegram").
				Validate(nonEmpty).
				Value(&params.PublicURL),
		).WithHideFunc(func() bool { return mode != "webhook" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Admin API bearer token").
				Description("Leave empty to keep the admin endpoints disabled").
				EchoMode(huh.EchoModePassword).
				Value(&params.AdminToken),
		),
	)

	if err := form.Run(); err != nil {
		return starterParams{}, err
	}

	params.WebhookMode = mode == "webhook"
	if params.WebhookMode {
		secret, err := randomSecret()
		if err != nil {
			return starterParams{}, err
		}
		params.WebhookSecret = secret
	}
	return params, nil
}

// randomSecret returns 32 hex characters for the webhook secret token.
func randomSecret() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
