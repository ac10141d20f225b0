package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable is implemented by modules that accept YAML configuration.
// The node holds the raw YAML of the module's own section.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner is implemented by modules that need setup once configured.
// Services registered by other modules may not exist yet at this point;
// look them up in Start.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator is implemented by modules that can check their configuration.
// Validate must not have side effects.
type Validator interface {
	Validate() error
}

// Starter is implemented by modules that run background work
// (listeners, pollers, schedulers).
type Starter interface {
	Start() error
}

// Stopper is implemented by modules holding resources.
// Stop is called in reverse start order.
type Stopper interface {
	Stop(ctx context.Context) error
}
