package errors

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error classes surfaced across the client core.
type Kind string

const (
	KindInvalidParam    Kind = "invalid_param"
	KindInvalidData     Kind = "invalid_data"
	KindNotInitialized  Kind = "not_initialized"
	KindIO              Kind = "io"
	KindMemory          Kind = "memory"
	KindBufferTooSmall  Kind = "buffer_too_small"
	KindTimeout         Kind = "timeout"
	KindNetwork         Kind = "network"
	KindNotConnected    Kind = "not_connected"
	KindNotRegistered   Kind = "not_registered"
	KindAuthFailed      Kind = "auth_failed"
	KindNotFound        Kind = "not_found"
	KindServiceNotReady Kind = "service_not_ready"
	KindConsoleSleeping Kind = "console_sleeping"
	KindVersionMismatch Kind = "version_mismatch"
	KindCancelled       Kind = "cancelled"
	KindInProgress      Kind = "in_progress"
	KindUnknown         Kind = "unknown"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

// IsKind checks whether any error in the chain matches the provided kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	for err != nil {
		if errors.As(err, &target) {
			return target.Kind == kind
		}
		err = errors.Unwrap(err)
	}
	return false
}

// KindOf extracts the kind of the first typed error in the chain.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindUnknown
}

// userHints maps each kind to a remediation string shown to the player.
// Conversions to user strings live here and nowhere else.
var userHints = map[Kind]string{
	KindInvalidParam:    "Check the request parameters and try again.",
	KindInvalidData:     "Stored data looks damaged. Reset the affected settings.",
	KindNotInitialized:  "The client is still starting up. Wait a moment and retry.",
	KindIO:              "Could not read or write device storage.",
	KindMemory:          "The device is out of memory. Close other applications.",
	KindBufferTooSmall:  "Internal buffer too small for the document.",
	KindTimeout:         "Console did not respond — it may be powered off.",
	KindNetwork:         "Network is unstable. Check your Wi-Fi connection.",
	KindNotConnected:    "Not connected to a console.",
	KindNotRegistered:   "This console is not registered. Complete pairing first.",
	KindAuthFailed:      "Registration appears corrupted — re-pair the console.",
	KindNotFound:        "The requested item was not found.",
	KindServiceNotReady: "Remote Play service not yet ready — wait ~15 s after wake.",
	KindConsoleSleeping: "Console is in rest mode — press Wake, then try again.",
	KindVersionMismatch: "Console firmware and client protocol do not match.",
	KindCancelled:       "The operation was cancelled.",
	KindInProgress:      "Another operation is already running.",
}

// UserHint returns the remediation string for a kind.
func UserHint(kind Kind) string {
	if hint, ok := userHints[kind]; ok {
		return hint
	}
	return "An unexpected error occurred."
}

// UserHintFor resolves the hint for whatever typed error sits in the chain.
func UserHintFor(err error) string {
	return UserHint(KindOf(err))
}
