// Package errors provides structured error types for the cmake-mcp server.
// These errors carry a machine-readable code plus hints that guide the
// caller (human or LLM) to correct course when something goes wrong.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Protocol errors (cmake-server transport)
	CodeProtocolFraming ErrorCode = "PROTOCOL_FRAMING"
	CodeServerReply     ErrorCode = "SERVER_REPLY"
	CodeUnknownCookie   ErrorCode = "UNKNOWN_COOKIE"
	CodeHandshakeFailed ErrorCode = "HANDSHAKE_FAILED"
	CodeTransport       ErrorCode = "TRANSPORT"

	// Driver construction errors
	CodeNoGeneratorFound ErrorCode = "NO_GENERATOR_FOUND"
	CodeToolNotFound     ErrorCode = "TOOL_NOT_FOUND"

	// File-api reply errors
	CodeNoIndexFile ErrorCode = "NO_INDEX_FILE"

	// Kit errors
	CodeKitNotFound  ErrorCode = "KIT_NOT_FOUND"
	CodeKitsInvalid  ErrorCode = "KITS_INVALID"
	CodeNoActiveKit  ErrorCode = "NO_ACTIVE_KIT"
	CodeNoDriver     ErrorCode = "NO_DRIVER"
	CodeStopFailed   ErrorCode = "STOP_FAILED"
	CodeNoCodeModel  ErrorCode = "NO_CODE_MODEL"
	CodeCacheMissing ErrorCode = "CACHE_MISSING"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// Configuration errors
	CodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	CodeConfigInvalid  ErrorCode = "CONFIG_INVALID"
)

// DriverError is a structured error type that includes helpful information
// about what went wrong and how to fix it.
type DriverError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the invalid value, expected format)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DriverError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DriverError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *DriverError) WithDetails(key string, value interface{}) *DriverError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *DriverError) WithCause(err error) *DriverError {
	e.Cause = err
	return e
}

// --- Protocol Errors ---

// ProtocolFraming creates a fatal error for a malformed message wrapper on
// the cmake-server stream.
func ProtocolFraming(detail string) *DriverError {
	return &DriverError{
		Code:    CodeProtocolFraming,
		Message: fmt.Sprintf("malformed cmake-server frame: %s", detail),
		Hint:    "The server stream is corrupt; the connection will be torn down. Re-run configure to start a fresh server.",
	}
}

// ServerReply creates an error for a tool-reported failure on the
// cmake-server protocol. It carries the originating request type and cookie.
func ServerReply(message, cookie, inReplyTo string) *DriverError {
	return &DriverError{
		Code:    CodeServerReply,
		Message: fmt.Sprintf("cmake-server %s request failed: %s", inReplyTo, message),
		Details: map[string]interface{}{
			"cookie":    cookie,
			"inReplyTo": inReplyTo,
		},
	}
}

// UnknownCookie creates the defensive, log-only error for a reply or error
// message whose cookie matches no pending operation.
func UnknownCookie(cookie, msgType string) *DriverError {
	return &DriverError{
		Code:    CodeUnknownCookie,
		Message: fmt.Sprintf("received %s for unknown cookie %q", msgType, cookie),
		Details: map[string]interface{}{
			"cookie": cookie,
			"type":   msgType,
		},
	}
}

// HandshakeFailed creates an error for a failure before the cmake-server
// transport reached the ready state.
func HandshakeFailed(err error) *DriverError {
	return &DriverError{
		Code:    CodeHandshakeFailed,
		Message: fmt.Sprintf("cmake-server handshake failed: %v", err),
		Hint:    "Check that the cmake binary supports server mode (cmake -E server) and that the build directory is writable.",
		Cause:   err,
	}
}

// Transport creates an error for a transport-level failure. Before the
// handshake completes this is fatal; after, it is logged and reported as
// abnormal termination.
func Transport(stage string, err error) *DriverError {
	return &DriverError{
		Code:    CodeTransport,
		Message: fmt.Sprintf("cmake-server transport failed during %s: %v", stage, err),
		Cause:   err,
		Details: map[string]interface{}{
			"stage": stage,
		},
	}
}

// --- Driver Construction Errors ---

// NoGeneratorFound creates the fatal construction error raised when no
// generator candidate probes successfully.
func NoGeneratorFound(candidates []string) *DriverError {
	return &DriverError{
		Code:    CodeNoGeneratorFound,
		Message: "no usable CMake generator found",
		Hint:    fmt.Sprintf("None of the candidate generators responded to a version probe: %s. Install ninja or make, or pin a generator in the settings.", strings.Join(candidates, ", ")),
		Details: map[string]interface{}{
			"candidates": candidates,
		},
	}
}

// ToolNotFound creates an error when the cmake binary itself cannot be run.
func ToolNotFound(path string, err error) *DriverError {
	return &DriverError{
		Code:    CodeToolNotFound,
		Message: fmt.Sprintf("cannot run cmake at %q: %v", path, err),
		Hint:    "Set cmakePath in the settings file or ensure cmake is on PATH.",
		Cause:   err,
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// --- File-API Errors ---

// NoIndexFile creates the hard error for a reply directory with no index
// file at all. Unreadable index content is a soft failure, not this.
func NoIndexFile(replyDir string) *DriverError {
	return &DriverError{
		Code:    CodeNoIndexFile,
		Message: fmt.Sprintf("no file-api index file in %s", replyDir),
		Hint:    "CMake did not produce a reply. Check the configure output for errors and re-run configure.",
		Details: map[string]interface{}{
			"replyDir": replyDir,
		},
	}
}

// --- Kit / Driver State Errors ---

// KitNotFound creates an error for an unknown kit name.
func KitNotFound(name string, available []string) *DriverError {
	return &DriverError{
		Code:    CodeKitNotFound,
		Message: fmt.Sprintf("kit %q not found", name),
		Hint:    fmt.Sprintf("Available kits: %s. Use cmake_list_kits to inspect them.", strings.Join(available, ", ")),
		Details: map[string]interface{}{
			"requested": name,
			"available": available,
		},
	}
}

// KitsInvalid creates an error for an unparsable kits file.
func KitsInvalid(path string, err error) *DriverError {
	return &DriverError{
		Code:    CodeKitsInvalid,
		Message: fmt.Sprintf("failed to parse kits file %s: %v", path, err),
		Hint:    "The kits file must be a JSON (or JSONC) array of kit objects.",
		Cause:   err,
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// NoDriver creates an error for tool calls that arrive before a driver
// instance exists.
func NoDriver(err error) *DriverError {
	return &DriverError{
		Code:    CodeNoDriver,
		Message: fmt.Sprintf("no active CMake driver: %v", err),
		Hint:    "Driver construction failed. Fix the underlying problem (generator, cmake path) and retry.",
		Cause:   err,
	}
}

// NoCodeModel creates an error when no code model is available yet.
func NoCodeModel() *DriverError {
	return &DriverError{
		Code:    CodeNoCodeModel,
		Message: "no code model available",
		Hint:    "Run cmake_configure first; the code model is produced by a successful configure.",
	}
}

// StopFailed creates an error when stopping the in-flight tool process fails.
func StopFailed(err error) *DriverError {
	return &DriverError{
		Code:    CodeStopFailed,
		Message: fmt.Sprintf("failed to stop the running cmake process: %v", err),
		Cause:   err,
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DriverError {
	return &DriverError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DriverError {
	return &DriverError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    expected,
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
		},
	}
}

// --- Configuration Errors ---

// ConfigNotFound creates an error for a missing settings file
func ConfigNotFound(path string) *DriverError {
	return &DriverError{
		Code:    CodeConfigNotFound,
		Message: fmt.Sprintf("settings file not found: %s", path),
		Hint:    "Pass -config with a valid path, or omit it to use defaults.",
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// ConfigInvalid creates an error for an unparsable or inconsistent settings file
func ConfigInvalid(path string, err error) *DriverError {
	return &DriverError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("invalid settings file %s: %v", path, err),
		Cause:   err,
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// --- Helpers ---

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var de *DriverError
	for {
		if stderrors.As(err, &de) {
			if de.Code == code {
				return true
			}
			err = de.Cause
			continue
		}
		return false
	}
}

// GetCode extracts the error code from an error, if it is a DriverError.
func GetCode(err error) (ErrorCode, bool) {
	var de *DriverError
	if stderrors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}
