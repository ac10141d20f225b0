package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgbridge/internal/core"
)

var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// wizardAnswers holds what `tgbridge init` asks for.
type wizardAnswers struct {
	Token       string
	Driver      string
	WebhookAddr string
	Bind        string
	Markdown    bool
	Echo        bool
	TokenInEnv  bool
}

func initCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(output); err == nil {
				return fmt.Errorf("%s already exists", output)
			}

			answers := wizardAnswers{Driver: string(core.DriverClient), Bind: "127.0.0.1:8080", TokenInEnv: true}
			if err := runWizard(&answers); err != nil {
				return err
			}

			cfgFile, envFile, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if dir := filepath.Dir(output); dir != "." {
				if err := os.MkdirAll(dir, 0o700); err != nil {
					return err
				}
			}
			if err := os.WriteFile(output, cfgFile, 0o600); err != nil {
				return err
			}
			if envFile != nil {
				envPath := filepath.Join(filepath.Dir(output), ".env")
				if err := os.WriteFile(envPath, envFile, 0o600); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", envPath)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nRun: tgbridge start -c %s\n", output, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "tgbridge.yaml", "Where to write the configuration")
	return cmd
}

func runWizard(a *wizardAnswers) error {
	basics := huh.NewGroup(
		huh.NewInput().
			Title("Bot token").
			Description("From @BotFather, formatted <bot id>:<secret>.").
			EchoMode(huh.EchoModePassword).
			Value(&a.Token).
			Validate(func(s string) error {
				if !tokenPattern.MatchString(strings.TrimSpace(s)) {
					return errors.New("expected <bot id>:<secret>")
				}
				return nil
			}),
		huh.NewConfirm().
			Title("Keep the token in a .env file?").
			Value(&a.TokenInEnv),
		huh.NewSelect[string]().
			Title("How should updates arrive?").
			Options(
				huh.NewOption("Polling (no public address needed)", string(core.DriverClient)),
				huh.NewOption("Webhook (needs a public HTTPS address)", string(core.DriverServer)),
			).
			Value(&a.Driver),
	)

	webhook := huh.NewGroup(
		huh.NewInput().
			Title("Public webhook address").
			Placeholder("https://bot.example.com").
			Value(&a.WebhookAddr).
			Validate(func(s string) error {
				if !strings.HasPrefix(s, "https://") && !strings.HasPrefix(s, "http://") {
					return errors.New("must start with https://")
				}
				return nil
			}),
		huh.NewInput().
			Title("Local listen address").
			Value(&a.Bind),
	).WithHideFunc(func() bool { return a.Driver != string(core.DriverServer) })

	behavior := huh.NewGroup(
		huh.NewConfirm().
			Title("Render replies as Markdown?").
			Value(&a.Markdown),
		huh.NewConfirm().
			Title("Echo messages addressed to the bot?").
			Value(&a.Echo),
	)

	return huh.NewForm(basics, webhook, behavior).Run()
}

// renderConfig builds the YAML configuration and, when the token goes to
// the environment, the matching .env content.
func renderConfig(a wizardAnswers) (cfgFile, envFile []byte, err error) {
	token := strings.TrimSpace(a.Token)
	adapter := map[string]any{"bot_token": token}
	if a.TokenInEnv {
		adapter["bot_token"] = "${TELEGRAM_BOT_TOKEN}"
		envFile = []byte("TELEGRAM_BOT_TOKEN=" + token + "\n")
	}
	if a.Markdown {
		adapter["parse_mode"] = "markdown"
	}

	modules := map[string]any{
		"handler.builtin": map[string]any{
			"echo":     a.Echo,
			"commands": map[string]string{"/ping": "pong"},
		},
		"adapter.telegram": adapter,
	}
	if a.Driver == string(core.DriverServer) {
		adapter["webhook_addr"] = a.WebhookAddr
		adapter["webhook_secret"] = "${TELEGRAM_WEBHOOK_SECRET:-}"
		modules["gateway.http"] = map[string]any{"bind": a.Bind}
	}

	cfg := map[string]any{
		"version": "1",
		"driver":  a.Driver,
		"log":     map[string]any{"level": "info", "format": "text"},
		"modules": modules,
	}
	cfgFile, err = yaml.Marshal(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfgFile, envFile, nil
}
