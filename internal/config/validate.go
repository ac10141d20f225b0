package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/flemzord/tgbridge/internal/core"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks the structure of cfg: version, driver, logging and that
// every configured module is registered. Module-specific settings are
// checked by the modules themselves.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if !cfg.Driver.Valid() {
		errs = append(errs, fmt.Errorf("config: unknown driver %q (want %q or %q)", cfg.Driver, core.DriverClient, core.DriverServer))
	}

	if !slices.Contains(logLevels, cfg.Log.Level) {
		errs = append(errs, fmt.Errorf("config: log.level %q is not one of %v", cfg.Log.Level, logLevels))
	}
	if !slices.Contains(logFormats, cfg.Log.Format) {
		errs = append(errs, fmt.Errorf("config: log.format %q is not one of %v", cfg.Log.Format, logFormats))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}
	adapters := 0
	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
		if core.ModuleID(id).Namespace() == "adapter" {
			adapters++
		}
	}
	if len(cfg.Modules) > 0 && adapters == 0 {
		errs = append(errs, errors.New("config: no adapter module configured"))
	}

	if cfg.Driver == core.DriverServer {
		if _, ok := cfg.Modules["gateway.http"]; !ok {
			errs = append(errs, errors.New("config: driver \"server\" requires the gateway.http module"))
		}
	}

	return errors.Join(errs...)
}
