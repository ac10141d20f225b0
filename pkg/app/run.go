// Package app provides the shared entry point of the tgbridge binary.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/flemzord/tgbridge/internal/config"
	"github.com/flemzord/tgbridge/internal/core"
	"github.com/flemzord/tgbridge/internal/security"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides data_dir from the configuration.
	DataDir string

	// LogLevel overrides log.level from the configuration when set.
	LogLevel string

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer
}

// Loaded is a validated configuration with its modules provisioned but
// not started.
type Loaded struct {
	Config     *config.Config
	ConfigPath string
	App        *core.App
	Logger     *slog.Logger
	Redactor   *security.Redactor
}

// Load resolves and validates the configuration, builds the redacting
// logger and provisions every configured module.
func Load(params RunParams) (*Loaded, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if params.LogLevel != "" {
		cfg.Log.Level = params.LogLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	// Modules add their secrets to the redactor while provisioning.
	redactor := security.NewRedactor()
	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := NewLogger(cfg.Log, redactor, out)

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	appCtx := core.NewAppContext(logger, dataDir, cfg.Driver)
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService(security.ServiceRedactor, redactor)

	application := core.NewApp(appCtx)
	if err := application.LoadModules(config.Resolve(cfg)); err != nil {
		return nil, err
	}

	return &Loaded{
		Config:     cfg,
		ConfigPath: cfgPath,
		App:        application,
		Logger:     logger,
		Redactor:   redactor,
	}, nil
}

// Run loads the configuration, starts all modules, and blocks until ctx
// is done or a shutdown signal is received.
func Run(ctx context.Context, params RunParams) error {
	loaded, err := Load(params)
	if err != nil {
		return err
	}
	loaded.Logger.Info("tgbridge starting",
		"version", params.Version,
		"config", loaded.ConfigPath,
		"driver", loaded.Config.Driver,
		"modules", len(loaded.Config.Modules),
	)
	return loaded.App.Run(ctx)
}

// NewLogger builds the process logger: text or JSON lines at the
// configured level, with secrets redacted.
func NewLogger(cfg config.LogConfig, redactor *security.Redactor, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if cfg.Format == "json" {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor))
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/tgbridge/tgbridge.yaml → ~/.config/tgbridge/tgbridge.yaml → ./tgbridge.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "tgbridge", "tgbridge.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "tgbridge", "tgbridge.yaml"))
	}

	candidates = append(candidates, "tgbridge.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/tgbridge if set, otherwise ~/.local/share/tgbridge.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "tgbridge")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "tgbridge")
}
