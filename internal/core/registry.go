package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	modules   = make(map[string]ModuleInfo)
	modulesMu sync.RWMutex
)

// startOrder ranks module namespaces. Modules that publish services come
// before the modules that consume them.
var startOrder = map[string]int{
	"telemetry": 0,
	"gateway":   1,
	"handler":   2,
	"adapter":   3,
}

// RegisterModule registers a module. It panics on an empty ID, a nil
// constructor or a duplicate ID. Call it from init().
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if info.ID == "" {
		panic("module ID must not be empty")
	}
	if info.New == nil {
		panic(fmt.Sprintf("module %s: New function must not be nil", info.ID))
	}

	modulesMu.Lock()
	defer modulesMu.Unlock()

	id := string(info.ID)
	if _, exists := modules[id]; exists {
		panic(fmt.Sprintf("module already registered: %s", id))
	}
	modules[id] = info
}

// GetModule returns the ModuleInfo for the given ID.
func GetModule(id string) (ModuleInfo, bool) {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	info, ok := modules[id]
	return info, ok
}

// GetModules returns all registered modules in start order.
func GetModules() []ModuleInfo {
	modulesMu.RLock()
	result := make([]ModuleInfo, 0, len(modules))
	for _, info := range modules {
		result = append(result, info)
	}
	modulesMu.RUnlock()

	slices.SortFunc(result, func(a, b ModuleInfo) int {
		return CompareModuleIDs(string(a.ID), string(b.ID))
	})
	return result
}

// GetModulesByNamespace returns the modules whose ID starts with namespace
// followed by a dot, e.g. "adapter" matches "adapter.telegram".
func GetModulesByNamespace(namespace string) []ModuleInfo {
	prefix := namespace + "."
	var result []ModuleInfo
	for _, info := range GetModules() {
		if strings.HasPrefix(string(info.ID), prefix) {
			result = append(result, info)
		}
	}
	return result
}

// CompareModuleIDs orders module IDs by namespace rank, then by name.
// Unknown namespaces sort last.
func CompareModuleIDs(a, b string) int {
	ra, rb := namespaceRank(a), namespaceRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	return cmp.Compare(a, b)
}

func namespaceRank(id string) int {
	if rank, ok := startOrder[ModuleID(id).Namespace()]; ok {
		return rank
	}
	return len(startOrder)
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	modules = make(map[string]ModuleInfo)
}
