package plugin

import (
	"errors"
	"fmt"
)

// Error codes reported to the host alongside the message.
const (
	ErrCodeConfiguration = "configuration_error"
	ErrCodeValidation    = "validation_error"
	ErrCodeNotInSpace    = "not_in_space"
	ErrCodeConnection    = "connection_error"
	ErrCodeTokenFetch    = "token_fetch_error"
	ErrCodeUnknownAction = "unknown_action"
	ErrCodeInternal      = "internal_error"
)

var (
	// ErrNotInitialized is returned when an action needs a client that was never created.
	ErrNotInitialized = &ConfigurationError{Message: "realtime client not initialized, configure the plugin settings"}
	// ErrUnknownAction is returned by Execute for codes missing from the manifest.
	ErrUnknownAction = errors.New("unknown action")
)

// ConfigurationError reports missing or invalid settings.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// ValidationError reports a missing or malformed action parameter.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func required(field, label string) *ValidationError {
	return &ValidationError{Field: field, Message: label + " is required"}
}

// NotInSpaceError is returned for space actions before the space was entered.
type NotInSpaceError struct {
	Space string
}

func (e *NotInSpaceError) Error() string {
	return fmt.Sprintf("Not in space: %s. Use \"Enter Space\" action first.", e.Space)
}

// ConnectionError reports a failed connection attempt with the client's reason.
type ConnectionError struct {
	Reason string
}

func (e *ConnectionError) Error() string {
	if e.Reason == "" {
		return "connection failed"
	}
	return "connection failed: " + e.Reason
}
