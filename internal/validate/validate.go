// Package validate holds the input checks shared by the account flows.
// Every function returns nil or an *apperror.AppError wrapping
// apperror.ErrValidation, with Field naming the offending input.
package validate

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sakif/accountkeeper/internal/apperror"
)

const (
	MaxUserNameLength = 100
	MinPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	MaxPasswordBytes = 72
	MaxEmailLength   = 254
)

// DefaultReservedNames can never be registered through signup.
var DefaultReservedNames = []string{"admin", "administrator", "everyone"}

// UserName checks the syntax of a user name. Names become path segments in
// the store, so only letters, digits, '.', '-' and '_' are allowed, and the
// first character must be a letter or digit.
func UserName(name string) error {
	if name == "" {
		return apperror.ValidationFailed("userName", "User name is required.")
	}
	if utf8.RuneCountInString(name) > MaxUserNameLength {
		return apperror.ValidationFailed("userName", "User name is too long.")
	}
	for i, r := range name {
		ok := unicode.IsLetter(r) || unicode.IsDigit(r)
		if i > 0 {
			ok = ok || r == '.' || r == '-' || r == '_'
		}
		if !ok {
			return apperror.ValidationFailed("userName", "User name may only contain letters, digits, '.', '-' and '_', and must start with a letter or digit.")
		}
	}
	return nil
}

// Reserved rejects names that collide, ignoring case, with one of reserved.
func Reserved(name string, reserved []string) error {
	for _, r := range reserved {
		if !strings.EqualFold(name, r) {
			continue
		}
		if strings.EqualFold(r, "everyone") {
			return apperror.ValidationFailed("userName", "Sorry, you can't be everyone.")
		}
		if strings.EqualFold(r, "admin") || strings.EqualFold(r, "administrator") {
			return apperror.ValidationFailed("userName", "Sorry, you can't be the new admin.")
		}
		return apperror.ValidationFailed("userName", "Sorry, that user name is reserved.")
	}
	return nil
}

// Password checks length and rejects a few trivially guessable choices.
func Password(pw string) error {
	if utf8.RuneCountInString(pw) < MinPasswordLength {
		return apperror.ValidationFailed("password", "Password must be at least 8 characters.")
	}
	if len(pw) > MaxPasswordBytes {
		return apperror.ValidationFailed("password", "Password is too long.")
	}
	if looksVeryWeak(pw) {
		return apperror.ValidationFailed("password", "Password is too easy to guess.")
	}
	return nil
}

// Email accepts a bare address of the form local@domain.tld.
func Email(email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "Email is required.")
	}
	if len(email) > MaxEmailLength {
		return apperror.ValidationFailed("email", "Email is too long.")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return apperror.ValidationFailed("email", "Email address is not valid.")
	}
	at := strings.LastIndexByte(email, '@')
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return apperror.ValidationFailed("email", "Email address is not valid.")
	}
	return nil
}

func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	if strings.Trim(s, string(first)) == "" {
		return true
	}

	onlyDigits := true
	for _, r := range s {
		if !unicode.IsDigit(r) {
			onlyDigits = false
			break
		}
	}
	if onlyDigits && utf8.RuneCountInString(s) < 12 {
		return true
	}

	switch strings.ToLower(s) {
	case "password", "password1", "password123", "qwertyuiop", "qwerty123", "letmein123", "iloveyou":
		return true
	}
	return false
}
