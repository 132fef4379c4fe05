package dialogue

import (
	"fmt"

	"github.com/ashureev/rolesim/internal/domain"
)

// ConfigurationError reports a catalog that cannot serve a phase.
type ConfigurationError struct {
	Phase  domain.Phase
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Phase.Valid() {
		return fmt.Sprintf("catalog configuration: phase %s: %s", e.Phase, e.Reason)
	}
	return "catalog configuration: " + e.Reason
}

// InvalidInputError reports a turn rejected before scoring or reply selection.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func configErr(p domain.Phase, format string, args ...any) error {
	return &ConfigurationError{Phase: p, Reason: fmt.Sprintf(format, args...)}
}

func invalidInput(field, format string, args ...any) error {
	return &InvalidInputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
