package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "error with cause",
			err: Wrap(KindIO, "load", "failed to load profile",
				errors.New("file not found")),
			contains: []string{"[io:load]", "failed to load profile", "file not found"},
		},
		{
			name:     "error without cause",
			err:      New(KindNotRegistered, "precheck", "no credentials for console"),
			contains: []string{"[not_registered:precheck]", "no credentials for console"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			for _, substr := range tt.contains {
				if !strings.Contains(errStr, substr) {
					t.Errorf("error string %q does not contain %q", errStr, substr)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := Wrap(KindNetwork, "probe", "wrapped", originalErr)

	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Unwrap should return the original error")
	}
}

func TestIsKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     Kind
		expected bool
	}{
		{
			name:     "direct error kind match",
			err:      New(KindTimeout, "wake", "message"),
			kind:     KindTimeout,
			expected: true,
		},
		{
			name:     "wrapped error kind match",
			err:      Wrap(KindAuthFailed, "handshake", "message", errors.New("cause")),
			kind:     KindAuthFailed,
			expected: true,
		},
		{
			name:     "error kind mismatch",
			err:      New(KindTimeout, "wake", "message"),
			kind:     KindNetwork,
			expected: false,
		},
		{
			name:     "non-typed error",
			err:      errors.New("plain error"),
			kind:     KindTimeout,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsKind(tt.err, tt.kind)
			if result != tt.expected {
				t.Errorf("IsKind() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestUserHintCoversAllKinds(t *testing.T) {
	kinds := []Kind{
		KindInvalidParam, KindInvalidData, KindNotInitialized, KindIO,
		KindMemory, KindBufferTooSmall, KindTimeout, KindNetwork,
		KindNotConnected, KindNotRegistered, KindAuthFailed, KindNotFound,
		KindServiceNotReady, KindConsoleSleeping, KindVersionMismatch,
		KindCancelled, KindInProgress,
	}
	for _, kind := range kinds {
		if UserHint(kind) == "An unexpected error occurred." {
			t.Errorf("kind %s has no user hint", kind)
		}
	}
	if UserHint(Kind("bogus")) != "An unexpected error occurred." {
		t.Error("unknown kind should fall back to the generic hint")
	}
}

func TestUserHintFor(t *testing.T) {
	err := New(KindConsoleSleeping, "precheck", "console in standby")
	if !strings.Contains(UserHintFor(err), "rest mode") {
		t.Errorf("unexpected hint: %q", UserHintFor(err))
	}
}
