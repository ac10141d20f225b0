package config

import (
	"slices"

	"github.com/flemzord/tgbridge/internal/core"
)

// Resolve returns the configured module IDs in start order: service
// providers (telemetry, gateway, handlers) before adapters.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, core.CompareModuleIDs)
	return ids
}
