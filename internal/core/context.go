// Package core provides the module system the bridge is assembled from.
package core

import (
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

// DriverType tells adapters which transport the host runs.
type DriverType string

const (
	// DriverClient means the host only makes outbound HTTP requests,
	// so adapters must pull updates themselves.
	DriverClient DriverType = "http-client"
	// DriverServer means the host runs an HTTP server able to receive
	// pushed updates.
	DriverServer DriverType = "server"
)

// Valid reports whether d is a known driver.
func (d DriverType) Valid() bool {
	return d == DriverClient || d == DriverServer
}

// AppContext carries shared resources available to modules during
// provisioning and at runtime.
type AppContext struct {
	// Logger for the current module scope.
	Logger *slog.Logger

	// DataDir is the root directory for persistent module data.
	DataDir string

	// Driver is the transport the host runs with.
	Driver DriverType

	parentLogger  *slog.Logger
	moduleConfigs map[string]yaml.Node
	services      *serviceRegistry
}

type serviceRegistry struct {
	mu    sync.RWMutex
	items map[string]any
}

// NewAppContext creates a new AppContext with the given base logger, data
// directory and driver.
func NewAppContext(logger *slog.Logger, dataDir string, driver DriverType) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	if driver == "" {
		driver = DriverClient
	}
	return &AppContext{
		Logger:       logger,
		DataDir:      dataDir,
		Driver:       driver,
		parentLogger: logger,
		services:     &serviceRegistry{items: make(map[string]any)},
	}
}

// WithModuleConfigs returns a copy of the AppContext with module
// configurations set. Each key is a module ID.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.moduleConfigs = configs
	return &cp
}

// ForModule returns a new AppContext scoped to the given module ID. The
// service registry is shared with the parent.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	return &AppContext{
		Logger:        ctx.parentLogger.With("module", string(id)),
		DataDir:       ctx.DataDir,
		Driver:        ctx.Driver,
		parentLogger:  ctx.parentLogger,
		moduleConfigs: ctx.moduleConfigs,
		services:      ctx.services,
	}
}

// RegisterService publishes svc under name. A later registration with the
// same name replaces the earlier one.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.items[name] = svc
}

// GetService returns the service registered under name.
func (ctx *AppContext) GetService(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.items[name]
	return svc, ok
}

// LookupService returns the service registered under name when it exists
// and has type T.
func LookupService[T any](ctx *AppContext, name string) (T, bool) {
	var zero T
	svc, ok := ctx.GetService(name)
	if !ok {
		return zero, false
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// LoadModule instantiates and provisions a module by its ID:
//
//	New() → Configure() → Provision() → Validate()
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("unknown module: %s", id)
	}

	mod := info.New()

	if c, ok := mod.(Configurable); ok {
		node, exists := ctx.moduleConfigs[id]
		if !exists {
			node = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		}
		if err := c.Configure(&node); err != nil {
			return nil, fmt.Errorf("configuring module %s: %w", id, err)
		}
	}

	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(info.ID)); err != nil {
			return nil, fmt.Errorf("provisioning module %s: %w", id, err)
		}
	}

	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validating module %s: %w", id, err)
		}
	}

	return mod, nil
}
