// Package boterr defines the error taxonomy shared by the command core.
//
// Validation and not-found errors carry the text shown to the requester.
// Authorization errors carry the missing capability keys. Storage errors
// wrap the engine failure and are never shown verbatim to users.
// Configuration errors are fatal during startup.
package boterr

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed arguments together with the expected
// usage string.
type ValidationError struct {
	Message string
	Usage   string
}

func (e *ValidationError) Error() string {
	if e.Usage == "" {
		return e.Message
	}
	return e.Message + "\nCommand should be:\n" + e.Usage
}

// Validation builds a ValidationError.
func Validation(message, usage string) *ValidationError {
	return &ValidationError{Message: message, Usage: usage}
}

// NotFoundError reports an unresolved command, principal or entity.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// NotFound builds a NotFoundError.
func NotFound(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// AuthorizationError reports a failed capability check. Missing holds
// "name [key]" lines for every capability the principal lacks.
type AuthorizationError struct {
	Missing []string
}

func (e *AuthorizationError) Error() string {
	return "missing authority: " + strings.Join(e.Missing, ", ")
}

// StorageError wraps a persistence engine failure. Users see a generic
// transient-failure message; the cause goes to the log.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError for the given operation.
func Storage(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// ConfigurationError reports invalid startup wiring, such as duplicate
// capability keys or a missing required collaborator module.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// Configuration builds a ConfigurationError.
func Configuration(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}
