// Package main is the entry point for the xtelegate build tool.
// xtelegate composes custom telegate binaries with user-selected modules and
// plugins, similar to how xcaddy works for Caddy.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/telegate/telegate/internal/version"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "xtelegate",
		Short: "Build custom telegate binaries with selected modules",
	}
	root.AddCommand(buildCmd(), versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print xtelegate version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("xtelegate %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func buildCmd() *cobra.Command {
	var (
		plugins        []string
		onlyIDs        []string
		output         string
		goPath         string
		bridgeVersion  string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a custom telegate binary",
		Long: `Build a custom telegate binary with the specified modules and plugins.

Plugins are Go module paths with optional versions
(e.g. github.com/example/channel-matrix@v1.0.0); each must register its
modules from an init function. The --only flag restricts the build to the
named first-party module IDs.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if output == "" {
				output = "telegate"
			}
			if goPath == "" {
				goPath = "go"
			}

			parsed, err := parsePlugins(plugins)
			if err != nil {
				return fmt.Errorf("parsing plugins: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			return Build(ctx, BuildRequest{
				Plugins:       parsed,
				OnlyIDs:       onlyIDs,
				OutputPath:    output,
				GoPath:        goPath,
				BridgeVersion: bridgeVersion,
			})
		},
	}

	cmd.Flags().StringSliceVarP(&plugins, "plugin", "p", nil, "Plugin module@version to include (repeatable)")
	cmd.Flags().StringSliceVar(&onlyIDs, "only", nil, "Restrict to these first-party module IDs (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "telegate", "Output binary path")
	cmd.Flags().StringVar(&goPath, "go", "go", "Path to the go binary")
	cmd.Flags().StringVar(&bridgeVersion, "telegate-version", "latest", "telegate module version (e.g. v0.1.0)")

	return cmd
}
