// Package cipher provides the reversible encryption used for stored
// credentials. Unlike the bcrypt hash kept on a principal, these values can
// be decrypted: a pending signup must hand the original password to the
// account it becomes.
package cipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// ErrMalformed is returned when a ciphertext cannot be decoded or was not
// produced under the current key.
var ErrMalformed = errors.New("cipher: malformed or foreign ciphertext")

// argon2id parameters for deriving the AES-256 key from the passphrase.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	keyLen       = 32
)

// AESCipher encrypts with AES-256-GCM under a key derived from a
// configured passphrase. Output is base64(nonce || sealed).
type AESCipher struct {
	aead cipher.AEAD
}

// New derives the key from passphrase and salt. Both must be non-empty;
// changing either makes every stored ciphertext unreadable.
func New(passphrase, salt string) (*AESCipher, error) {
	if passphrase == "" || salt == "" {
		return nil, errors.New("cipher: passphrase and salt are required")
	}
	key := argon2.IDKey([]byte(passphrase), []byte(salt), argonTime, argonMemory, argonThreads, keyLen)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: creating block: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher: creating GCM: %w", err)
	}
	return &AESCipher{aead: aead}, nil
}

func (c *AESCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("cipher: generating nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *AESCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrMalformed
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrMalformed
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrMalformed
	}
	return string(plain), nil
}
