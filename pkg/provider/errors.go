package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches any *ConfigurationError via errors.Is.
	ErrConfiguration = errors.New("provider: configuration error")
	// ErrNotFound matches any *NotFoundError via errors.Is.
	ErrNotFound = errors.New("provider: template not found")
)

// ConfigurationError is returned by New when the template directory cannot be
// resolved.
type ConfigurationError struct {
	Dir string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid template directory %s: %v", e.Dir, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NotFoundError is returned when a template name does not resolve to a file
// inside the root directory.
type NotFoundError struct {
	Name string
	Err  error
}

func (e *NotFoundError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("template %s not found", e.Name)
	}
	return fmt.Sprintf("template %s not found: %v", e.Name, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
