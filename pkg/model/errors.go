package model

import (
	"errors"
	"fmt"
	"strings"
)

// Process exit codes. Each fatal error class maps to its own code.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitConfig    = 2
	ExitResource  = 3
	ExitInterrupt = 4
	ExitProtocol  = 5
	ExitSpawn     = 6
)

// Interrupt causes carried by InterruptError.
var (
	ErrTimeout   = errors.New("real-time limit reached")
	ErrCancelled = errors.New("cancelled by operator")
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation  ErrorCode = "VALIDATION_ERROR"
	ErrNotFound    ErrorCode = "NOT_FOUND"
	ErrUnavailable ErrorCode = "UNAVAILABLE"
	ErrInternal    ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the status API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// ConfigError reports bad or missing run options.
type ConfigError struct {
	Message string
	Details []FieldError
}

// NewConfigError creates a ConfigError with field details.
func NewConfigError(msg string, details ...FieldError) *ConfigError {
	return &ConfigError{Message: msg, Details: details}
}

func (e *ConfigError) Error() string {
	if len(e.Details) == 0 {
		return "configuration: " + e.Message
	}
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		if d.Field == "" {
			parts = append(parts, d.Message)
			continue
		}
		parts = append(parts, d.Field+": "+d.Message)
	}
	return fmt.Sprintf("configuration: %s (%s)", e.Message, strings.Join(parts, "; "))
}

// ResourceError reports that a shared coordination resource could not be acquired.
type ResourceError struct {
	Resource string
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("acquire %s: %v", e.Resource, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed, undeliverable or unexpected message.
type ProtocolError struct {
	Op     string
	TaskID TaskID
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.TaskID == NoTask {
		return fmt.Sprintf("protocol: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("protocol: %s (task %d): %v", e.Op, e.TaskID, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// SpawnError reports that a task instance could not be started.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn task: %v", e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// InterruptError reports a forced shutdown by timeout or operator cancel.
type InterruptError struct {
	Cause error
}

func (e *InterruptError) Error() string {
	if e.Cause == nil {
		return "interrupted"
	}
	return fmt.Sprintf("interrupted: %v", e.Cause)
}

func (e *InterruptError) Unwrap() error { return e.Cause }

// InvalidTransitionError is returned when a state transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}

// ExitCode maps an error returned by a run to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		cfgErr   *ConfigError
		resErr   *ResourceError
		intErr   *InterruptError
		protoErr *ProtocolError
		spawnErr *SpawnError
	)
	switch {
	case errors.As(err, &cfgErr):
		return ExitConfig
	case errors.As(err, &intErr):
		return ExitInterrupt
	case errors.As(err, &resErr):
		return ExitResource
	case errors.As(err, &spawnErr):
		return ExitSpawn
	case errors.As(err, &protoErr):
		return ExitProtocol
	}
	return ExitFailure
}
