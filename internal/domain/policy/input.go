package policy

// ActionInput is the canonical, adapter-populated view of a tool
// invocation's arguments. REDESIGN FLAG: the original design inspected a
// raw map[string]interface{} for well-known keys at evaluation time; here
// each Tool Adapter (internal/domain/adapter) translates its own input
// shape into this struct once, and the evaluator only ever sees canonical
// fields.
type ActionInput struct {
	// Path backs path|file|target: glob-matched against forbidden patterns
	// and scope.paths.
	Path string
	// Command backs command|cmd: substring-matched against forbidden
	// patterns, and used as the fallback source (when Binary is empty) for
	// the first-whitespace-token binaries scope check.
	Command string
	// Binary backs the dedicated "binary" key and, when set, takes
	// precedence over Command as the source for the binaries scope check.
	Binary string
	// URL backs url|endpoint: glob-matched against forbidden patterns and
	// hostname-matched against scope.domains.
	URL string
	// Method backs the method key, upper-cased before matching scope.methods.
	Method string
	// Repo backs repo|repository: glob-matched against scope.repos.
	Repo string
}

// FromMap builds an ActionInput from an untyped argument bag, applying the
// same key-precedence rules the spec's dynamic-field evaluator used
// (path|file|target, binary|command, url|endpoint, method, repo|repository).
// This is the one place in the evaluator package that still deals with
// untyped input, kept for adapters (and the MCP proxy's best-effort path)
// that receive raw tool arguments rather than a typed request.
func FromMap(tool string, args map[string]any) ActionInput {
	return ActionInput{
		Path:    firstString(args, "path", "file", "target"),
		Command: firstString(args, "command", "cmd"),
		Binary:  firstString(args, "binary"),
		URL:     firstString(args, "url", "endpoint"),
		Method:  firstString(args, "method"),
		Repo:    firstString(args, "repo", "repository"),
	}
}

func firstString(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := args[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
