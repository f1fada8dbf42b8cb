// Package main is the entry point for the telegate CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/telegate/telegate/internal/config"
	"github.com/telegate/telegate/internal/core"
	"github.com/telegate/telegate/internal/security"
	"github.com/telegate/telegate/internal/version"
	"github.com/telegate/telegate/pkg/app"

	// Compiled-in modules register themselves on import.
	_ "github.com/telegate/telegate/internal/gateway"
	_ "github.com/telegate/telegate/modules/agent/backend"
	_ "github.com/telegate/telegate/modules/api/mcp"
	_ "github.com/telegate/telegate/modules/channel/telegram"
	_ "github.com/telegate/telegate/modules/observe/tracing"
	_ "github.com/telegate/telegate/modules/store/sqlite"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "telegate",
		Short:         "A Telegram bridge for conversational agent backends",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd(), initCmd(), webhookCmd(), serviceCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("telegate %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Println("\nNo compiled modules.")
				return
			}
			fmt.Println("\nCompiled modules:")
			for _, mod := range mods {
				fmt.Printf("  %s\n", mod.ID)
			}
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the bridge with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			levelName, _ := cmd.Flags().GetString("log-level")

			level, err := parseLogLevel(levelName)
			if err != nil {
				return err
			}

			return app.Run(app.RunParams{
				ConfigPath: cfgPath,
				DataDir:    dataDir,
				LogLevel:   level,
			})
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().String("data-dir", "", "Override the persistent data directory")
	cmd.Flags().String("log-level", "info", "Minimum log level (debug, info, warn, error)")
	return cmd
}

func parseLogLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (expected debug, info, warn or error)", name)
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration and dry-run module loading",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelWarn,
			}))

			// Provision against a throwaway data dir so checking a config
			// never touches the real database.
			tmpDir, err := os.MkdirTemp("", "telegate-check-*")
			if err != nil {
				return err
			}
			defer os.RemoveAll(tmpDir)

			// Mirror the services a real boot registers so every module's
			// Provision sees the same world it would see under start.
			appCtx := core.NewAppContext(logger, tmpDir).WithModuleConfigs(cfg.Modules)
			appCtx.RegisterService("security.credentials", security.NewCredentialStore())
			appCtx.RegisterService("security.redactor", security.NewRedactor())
			appCtx.RegisterService("security.audit", security.NewAuditLogger(security.AuditLoggerConfig{}))
			appCtx.RegisterService("security.ratelimiter", security.NewRateLimiter(security.RateLimitConfig{}))
			appCtx.RegisterService("config.path", args[0])

			application := core.NewApp(appCtx)
			ids := config.Resolve(cfg)
			if err := application.LoadModules(ids); err != nil {
				return err
			}
			defer application.Stop()

			fmt.Printf("Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Printf("  %s\n", id)
			}
			return nil
		},
	})
	return cmd
}
