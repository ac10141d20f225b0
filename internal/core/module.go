package core

// ModuleID is the namespaced identifier of a module, e.g. "adapter.telegram".
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return string(id[:i])
		}
	}
	return string(id)
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is the interface every pluggable component implements.
type Module interface {
	ModuleInfo() ModuleInfo
}
