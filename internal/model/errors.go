package model

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a label, spreadsheet or sheet that does not exist.
	ErrConfiguration = errors.New("configuration error")
	// ErrBackendUnavailable marks a failed call to the mail or store backend.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// ConfigurationError reports a configured resource that could not be resolved.
type ConfigurationError struct {
	Resource string
	Name     string
	Err      error
}

func NewConfigurationError(resource, name string, err error) *ConfigurationError {
	return &ConfigurationError{Resource: resource, Name: name, Err: err}
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %q not found: %v", e.Resource, e.Name, e.Err)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.Name)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// BackendError wraps a failed backend call with the operation that failed.
type BackendError struct {
	Op  string
	Err error
}

func NewBackendError(op string, err error) *BackendError {
	return &BackendError{Op: op, Err: err}
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
