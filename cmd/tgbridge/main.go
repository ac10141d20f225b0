// Package main is the entry point for the tgbridge CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgbridge/internal/core"
	"github.com/flemzord/tgbridge/pkg/app"

	_ "github.com/flemzord/tgbridge/internal/gateway"
	_ "github.com/flemzord/tgbridge/internal/handler"
	_ "github.com/flemzord/tgbridge/internal/telemetry"
	_ "github.com/flemzord/tgbridge/modules/adapter/telegram"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tgbridge",
		Short:         "Bridge a Telegram bot to a pluggable event handler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd(), initCmd(), serviceCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tgbridge %s (commit: %s, built: %s)\n", version, commit, date)
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range core.GetModules() {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func runParams(cmd *cobra.Command) app.RunParams {
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	logLevel, _ := cmd.Flags().GetString("log-level")
	return app.RunParams{
		ConfigPath: cfgPath,
		DataDir:    dataDir,
		LogLevel:   logLevel,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start tgbridge with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(context.Background(), runParams(cmd))
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().String("data-dir", "", "Override the data directory")
	cmd.Flags().String("log-level", "", "Override the log level (debug, info, warn, error)")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	check := &cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration and print it with secrets redacted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkConfig(cmd.OutOrStdout(), args[0])
		},
	}
	cmd.AddCommand(check)
	return cmd
}

// checkConfig provisions every module of the file at path without
// starting any, then prints the module list and the redacted settings.
func checkConfig(out io.Writer, path string) error {
	loaded, err := app.Load(app.RunParams{ConfigPath: path, LogOutput: io.Discard})
	if err != nil {
		return err
	}
	defer loaded.App.Stop()

	modules := loaded.App.Modules()
	fmt.Fprintf(out, "Configuration OK (%d modules, driver %s)\n", len(modules), loaded.Config.Driver)
	for _, id := range modules {
		fmt.Fprintf(out, "  %s\n", id)
	}

	settings := make(map[string]any, len(loaded.Config.Modules))
	for id, node := range loaded.Config.Modules {
		var v map[string]any
		if err := node.Decode(&v); err != nil {
			return fmt.Errorf("decoding %s: %w", id, err)
		}
		if v == nil {
			v = map[string]any{}
		}
		settings[id] = v
	}
	loaded.Redactor.RedactMap(settings)

	raw, err := yaml.Marshal(map[string]any{"modules": settings})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s", raw)
	return nil
}
