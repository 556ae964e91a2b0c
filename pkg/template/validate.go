package template

import (
	"fmt"
	"regexp"
)

// ValidationError is a single field-level validation failure from spec
// §4.3 step 2.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

var hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

const (
	MaxTitleLength      = 45
	MinIDEPasswordLength = 9
)

// ValidateTitle enforces spec §4.3 step 2's "title ≤ 45 chars".
func ValidateTitle(title string) error {
	if len(title) > MaxTitleLength {
		return &ValidationError{Field: "general.title", Reason: fmt.Sprintf("must be at most %d characters", MaxTitleLength)}
	}
	return nil
}

// ValidateIDEPassword enforces "IDE password ≥ 9 chars when applicable".
func ValidateIDEPassword(password string) error {
	if password == "" {
		return nil // not applicable to this workload
	}
	if len(password) < MinIDEPasswordLength {
		return &ValidationError{Field: "general.jupyter_password", Reason: fmt.Sprintf("must be at least %d characters", MinIDEPasswordLength)}
	}
	return nil
}

// ValidateHostname enforces "hostname alphanumerics only".
func ValidateHostname(hostname string) error {
	if hostname == "" {
		return nil
	}
	if !hostnamePattern.MatchString(hostname) {
		return &ValidationError{Field: "general.hostname", Reason: "must contain only letters and digits"}
	}
	return nil
}

// ValidateRange enforces a numeric parameter's [min,max] range.
func ValidateRange(field string, value float64, rng [2]float64) error {
	if value < rng[0] {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be >= %v", rng[0])}
	}
	if value > rng[1] {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be <= %v", rng[1])}
	}
	return nil
}

// ValidateOptions enforces a parameter's closed value set.
func ValidateOptions(field string, value any, options []any) error {
	for _, opt := range options {
		if opt == value {
			return nil
		}
	}
	return &ValidationError{Field: field, Reason: fmt.Sprintf("must be one of %v", options)}
}
