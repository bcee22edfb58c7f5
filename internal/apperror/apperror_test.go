// These tests pin the contract the handlers rely on: every constructor
// wraps exactly one sentinel, and Message finds the user-facing text
// however deeply the service layer wrapped the error.
//
// Run with: go test ./internal/apperror/ -v
package apperror

import (
	"errors"
	"fmt"
	"testing"
)

// TABLE-DRIVEN TESTS:
// One slice of named cases and one loop. Adding a case is adding a struct,
// and each case shows up by name in the test output.

func TestErrorsIs(t *testing.T) {
	// Each case checks that errors.Is sees the right sentinel through the
	// *AppError wrapper, and only that one.
	tests := []struct {
		name      string // shown by go test -v
		err       error  // the error under test
		target    error  // sentinel to match against
		wantMatch bool   // should errors.Is return true?
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("account", "alice"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("userName", "user name is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("pending signup", "alice"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Expired wraps ErrExpired",
			err:       Expired("code expired"),
			target:    ErrExpired,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized("wrong password"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "RateLimited wraps ErrRateLimited",
			err:       RateLimited("slow down"),
			target:    ErrRateLimited,
			wantMatch: true,
		},
		{
			name:      "Concealed keeps the given kind",
			err:       Concealed(ErrUnauthorized, "nope"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("account", "alice"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "Expired does NOT match ErrNotFound",
			err:       Expired("code expired"),
			target:    ErrNotFound,
			wantMatch: false,
		},
		{
			name:      "wrapped AppError still matches",
			err:       fmt.Errorf("service/reset: %w", NotFound("account", "alice")),
			target:    ErrNotFound,
			wantMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("account", "alice"),
			wantMessage: "account not found with id alice",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("email", "email is required"),
			wantMessage: "email is required",
		},
		{
			name:        "Conflict message includes resource and id",
			err:         Conflict("pending signup", "alice"),
			wantMessage: "pending signup conflict with id alice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestConcealedMessagesAreIdentical(t *testing.T) {
	const msg = "Wrong user name and/or email."
	a := Concealed(ErrNotFound, msg)
	b := Concealed(ErrUnauthorized, msg)

	if a.Error() != b.Error() {
		t.Errorf("messages differ: %q vs %q", a.Error(), b.Error())
	}
}

func TestMessage(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ValidationFailed("email", "bad email"))
	if got := Message(wrapped); got != "bad email" {
		t.Errorf("Message() = %q, want %q", got, "bad email")
	}
	if got := Message(errors.New("plain")); got != "" {
		t.Errorf("Message(plain) = %q, want empty", got)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("email", "invalid email format")

	if err.Field != "email" {
		t.Errorf("Field = %q, want %q", err.Field, "email")
	}
}
