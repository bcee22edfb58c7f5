// Password hashing for principal secrets.
//
// WHY BCRYPT?
// bcrypt is deliberately slow, which makes brute-forcing a leaked hash
// expensive. It also:
//   - generates a random salt per hash, so equal passwords hash differently
//   - embeds the salt and cost in its output, so one column stores it all
//   - exposes the work factor as "cost"
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (2^12 rounds)
//	 version
//
// The emailed signup secret is NOT hashed here: it has to be recovered at
// confirmation time, so it goes through the reversible cipher package.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor for principal secrets.
//
// COST TUNING RULE OF THUMB:
// Set cost so that hashing takes 200-300ms on production hardware. Lower is
// easy to crack; higher makes login sluggish during traffic spikes.
const defaultCost = 12

// PasswordService hashes and verifies principal secrets with bcrypt.
//
// It's a struct rather than free functions so tests can inject a lower
// cost; cost 4 keeps the service tests fast without changing the logic.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the default cost (12).
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest uses the given (low) cost to keep tests fast.
// Do not use in production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// ErrInvalidPassword is returned by Verify on a mismatch.
var ErrInvalidPassword = errors.New("auth: invalid password")

// Hash returns a self-describing bcrypt hash ($2a$<cost>$<salt><hash>).
// Plaintexts over 72 bytes are rejected instead of silently truncated.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		// bcrypt would silently ignore everything past byte 72.
		return "", fmt.Errorf("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash, ErrInvalidPassword when it
// does not, and a wrapped error when hash is unusable.
//
// TIMING SAFETY:
// bcrypt.CompareHashAndPassword compares in constant time, so response
// time does not leak how much of the password was right.
//
// Usage:
//
//	if err := ps.Verify(p.PasswordHash, input); errors.Is(err, auth.ErrInvalidPassword) {
//	    // wrong password
//	}
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidPassword
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
