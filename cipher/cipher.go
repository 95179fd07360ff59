// Package cipher provides the deterministic authenticated encryption
// used for sensitive store columns. Determinism (same key and
// plaintext always produce the same ciphertext) is required so that
// component mappings can be looked up by equality on the encrypted
// column without decrypting the table. The accepted trade-off is that
// identical plaintexts are recognizable as identical.
package cipher

import (
	"encoding/hex"
	"fmt"

	"github.com/siherrmann/pseudonymizer/helper"
	"github.com/tink-crypto/tink-go/v2/daead/subtle"
)

// KeySize is the AES-SIV key size in bytes.
const KeySize = 64

// canaryPlaintext is encrypted and stored at initialization; opening
// the store must round-trip it before any other operation proceeds.
const canaryPlaintext = "pseudonymizer-canary-v1"

// Codec encrypts and decrypts store columns with AES-SIV.
type Codec struct {
	siv *subtle.AESSIV
}

// NewCodec creates a codec from a derived key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, helper.NewError("codec key validation", fmt.Errorf("expected %d byte key, got %d", KeySize, len(key)))
	}
	siv, err := subtle.NewAESSIV(key)
	if err != nil {
		return nil, helper.NewError("create aes-siv", err)
	}
	return &Codec{siv: siv}, nil
}

// EncryptString deterministically encrypts a plaintext column value
// and returns it hex encoded, ready for equality queries.
func (c *Codec) EncryptString(plaintext string) (string, error) {
	ct, err := c.siv.EncryptDeterministically([]byte(plaintext), nil)
	if err != nil {
		return "", helper.NewError("encrypt", err)
	}
	return hex.EncodeToString(ct), nil
}

// DecryptString reverses EncryptString. Decryption is authenticated;
// tampered or wrong-key ciphertexts fail.
func (c *Codec) DecryptString(encoded string) (string, error) {
	ct, err := hex.DecodeString(encoded)
	if err != nil {
		return "", helper.NewError("decode ciphertext", err)
	}
	pt, err := c.siv.DecryptDeterministically(ct, nil)
	if err != nil {
		return "", helper.NewError("decrypt", err)
	}
	return string(pt), nil
}

// Canary returns the encrypted canary value to store at initialization.
func (c *Codec) Canary() (string, error) {
	return c.EncryptString(canaryPlaintext)
}

// VerifyCanary checks a stored canary against this codec's key. A
// mismatch means the passphrase does not match the one the store was
// initialized with.
func (c *Codec) VerifyCanary(stored string) error {
	pt, err := c.DecryptString(stored)
	if err != nil || pt != canaryPlaintext {
		return helper.NewError("verify canary", helper.ErrWrongPassphrase)
	}
	return nil
}
