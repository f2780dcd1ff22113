package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Application error codes.
const (
	ECONFLICT          = "conflict"
	EFORBIDDEN         = "forbidden"
	EINTERNAL          = "internal"
	EINVALID           = "invalid"
	EINVALIDTRANSITION = "invalid_transition"
	ENOTFOUND          = "not_found"
	ENOTIMPLEMENTED    = "not_implemented"
	EUNAUTHORIZED      = "unauthorized"
)

// Error represents an application-specific error.
type Error struct {
	// Machine-readable error code.
	Code string

	// Human-readable error message.
	Message string

	// Data for machine-machine communication.
	// usually contains a JSON data.
	Data string

	// DebugInfo contains low-level internal error details that should only be logged.
	// End-users should never see this.
	DebugInfo string
}

// Error implements the error interface. Not used by the application otherwise.
func (e *Error) Error() string {
	return fmt.Sprintf("error: code=%s message=%s", e.Code, e.Message)
}

func (e *Error) WithData(data any) *Error {
	switch v := data.(type) {
	case string:
		e.Data = v
	default:
		b, err := json.Marshal(data)
		if err != nil {
			e.Data = fmt.Sprintf("%v", data)
		} else {
			e.Data = string(b)
		}
	}
	return e
}

func (e *Error) WithDebugInfo(msg string, args ...any) *Error {
	e.DebugInfo = fmt.Sprintf(msg, args...)
	return e
}

// Errorf is a helper function to return an Error with a given code and formatted message.
func Errorf(code string, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// TransitionDetails is attached to invalid transition errors so callers can
// show which statuses the action would have been accepted from.
type TransitionDetails struct {
	Current string   `json:"current"`
	Allowed []string `json:"allowed"`
}

// InvalidTransition returns an EINVALIDTRANSITION error naming the current and allowed statuses.
func InvalidTransition[T ~string](action string, current T, allowed ...T) *Error {
	names := make([]string, 0, len(allowed))
	for _, a := range allowed {
		names = append(names, string(a))
	}

	return Errorf(EINVALIDTRANSITION, "cannot %s from status %s (allowed from: %s)", action, current, strings.Join(names, ", ")).
		WithData(TransitionDetails{Current: string(current), Allowed: names})
}

// ErrorCode returns the code of the root error, if available; otherwise returns EINTERNAL.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != "" {
			return code
		}
	}

	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error, if available.
// Otherwise returns a generic error message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}

	return "Internal error."
}

// ErrorData returns the data of the error, if available.
func ErrorData(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Data
	}

	return ""
}

// ErrorDebugInfo returns the debug info of the error, if available.
// Unknown errors are returned as-is so that they get logged.
func ErrorDebugInfo(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.DebugInfo
	}

	return err.Error()
}
