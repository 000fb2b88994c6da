package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationIssue is one field-level problem found while validating a
// Policy document, per spec §7(a)'s {path,message} shape.
type ValidationIssue struct {
	Path    string
	Message string
}

// ValidationError aggregates every issue found by Validate. It is never
// fatal to the process — callers surface it to whoever submitted the
// policy (CLI, HTTP façade, evolution step) and keep running.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, iss := range e.Issues {
		parts[i] = fmt.Sprintf("%s: %s", iss.Path, iss.Message)
	}
	return strings.Join(parts, "; ")
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate runs struct-tag validation followed by the cross-field
// invariants spec §3 names explicitly. It is called both on initial load
// and, with the same function, after every Evolution Subsystem mutation —
// an invalid mutated policy aborts the evolution step with the original
// policy retained (see session.Session.EvolvePolicy).
func Validate(p *Policy) error {
	if err := structValidator.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			issues := make([]ValidationIssue, len(verrs))
			for i, fe := range verrs {
				issues[i] = ValidationIssue{Path: fe.Namespace(), Message: formatFieldError(fe)}
			}
			return &ValidationError{Issues: issues}
		}
		return &ValidationError{Issues: []ValidationIssue{{Path: "", Message: err.Error()}}}
	}

	if issue := validateUniqueTools(p); issue != nil {
		return &ValidationError{Issues: []ValidationIssue{*issue}}
	}

	return nil
}

// validateUniqueTools rejects a policy with two capabilities for the same
// tool: FindCapability's first-match contract would silently shadow the
// second entry, so the ambiguity is caught here instead.
func validateUniqueTools(p *Policy) *ValidationIssue {
	seen := make(map[string]bool, len(p.Capabilities))
	for _, c := range p.Capabilities {
		if seen[c.Tool] {
			return &ValidationIssue{Path: "capabilities", Message: fmt.Sprintf("duplicate capability for tool %q", c.Tool)}
		}
		seen[c.Tool] = true
	}
	return nil
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "eq":
		return fmt.Sprintf("must equal %q", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// Normalize applies the load-time normalizations spec §3 requires (HTTP
// methods upper-cased) and defaults version to "1.0" when absent, the same
// way the teacher's loader fills in OSSConfig defaults before validating.
func Normalize(p *Policy) {
	if p.Version == "" {
		p.Version = "1.0"
	}
	for i := range p.Capabilities {
		for j, m := range p.Capabilities[i].Scope.Methods {
			p.Capabilities[i].Scope.Methods[j] = strings.ToUpper(m)
		}
	}
}
