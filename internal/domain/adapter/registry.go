package adapter

// Registry maps a tool name to the Adapter that implements it. The
// Compensation Planner (internal/domain/compensation) uses it to decide
// canRollback for each step of a plan; the CLI's exec command
// (cmd/gateway/cmd/exec.go) looks up command:run through it.
type Registry struct {
	byName map[string]Adapter
}

// NewRegistry builds a Registry from a list of adapters, keyed by Name().
// A later adapter with a duplicate name replaces an earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{byName: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.byName[a.Name()] = a
	}
	return r
}

// DefaultRegistry builds a Registry containing every built-in tool
// adapter: filesystem, shell, HTTP, git, DNS, archive, environment.
func DefaultRegistry() *Registry {
	return NewRegistry(
		FileReadAdapter{},
		FileWriteAdapter{},
		FileDeleteAdapter{},
		FileCopyAdapter{},
		FileMoveAdapter{},
		CommandRunAdapter{},
		HTTPRequestAdapter{},
		GitDiffAdapter{},
		GitApplyAdapter{},
		DNSResolveAdapter{},
		ArchiveExtractAdapter{},
		EnvGetAdapter{},
		EnvSetAdapter{},
	)
}

// Lookup returns the adapter registered for tool, or (nil, false).
func (r *Registry) Lookup(tool string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.byName[tool]
	return a, ok
}
