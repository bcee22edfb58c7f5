package session

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
)

const captchaDigits = 5

// IssueCaptcha stores and returns a new challenge, replacing any earlier
// one.
func (c *Context) IssueCaptcha() (string, error) {
	limit := big.NewInt(1)
	for range captchaDigits {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("session: generating captcha: %w", err)
	}
	c.CaptchaExpected = fmt.Sprintf("%0*d", captchaDigits, n)
	return c.CaptchaExpected, nil
}

// CheckCaptcha consumes the outstanding challenge and reports whether
// answer matched it. With no challenge outstanding nothing matches.
func (c *Context) CheckCaptcha(answer string) bool {
	expected := c.CaptchaExpected
	c.CaptchaExpected = ""
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(answer)) == 1
}
