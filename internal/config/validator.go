package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate validates the GatewayConfig using struct tags and custom
// cross-field rules. Returns an error if validation fails, with
// actionable error messages.
func (c *GatewayConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateBackendNamesUnique(); err != nil {
		return err
	}

	return nil
}

// validateBackendNamesUnique ensures no two configured backends share a
// name: the proxy uses backend name to disambiguate tool collisions, so a
// duplicate would make "[<backendName>] " prefixes ambiguous.
func (c *GatewayConfig) validateBackendNamesUnique() error {
	seen := make(map[string]struct{}, len(c.Backends))
	for i, b := range c.Backends {
		if _, ok := seen[b.Name]; ok {
			return fmt.Errorf("backends[%d]: duplicate backend name %q", i, b.Name)
		}
		seen[b.Name] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single
// validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_without":
		return fmt.Sprintf("%s is required when %s is not set", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
