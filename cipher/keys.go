package cipher

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/siherrmann/pseudonymizer/helper"
	"golang.org/x/crypto/pbkdf2"
)

// DefaultKDFIterations is the PBKDF2 iteration count used for new
// stores. Existing stores keep the count they were initialized with.
const DefaultKDFIterations = 100_000

// MinKDFIterations is the lowest iteration count accepted when
// opening a store; anything below indicates a tampered metadata row.
const MinKDFIterations = 100_000

// SaltSize is the random salt size in bytes.
const SaltSize = 32

// DeriveKey derives the AES-SIV key from a user passphrase and the
// store's random salt via PBKDF2-SHA256.
func DeriveKey(passphrase string, salt []byte, iterations int) ([]byte, error) {
	if passphrase == "" {
		return nil, helper.NewError("key derivation", fmt.Errorf("passphrase is empty"))
	}
	if len(salt) == 0 {
		return nil, helper.NewError("key derivation", fmt.Errorf("salt is empty"))
	}
	if iterations < MinKDFIterations {
		return nil, helper.NewError("key derivation", fmt.Errorf("iteration count %d below minimum %d", iterations, MinKDFIterations))
	}
	return pbkdf2.Key([]byte(passphrase), salt, iterations, KeySize, sha256.New), nil
}

// NewSalt generates a fresh random salt for store initialization.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, helper.NewError("generate salt", err)
	}
	return salt, nil
}
