// Package crypto implements the at-rest password cipher.
//
// Every call to Encrypt draws a fresh random IV and produces a self-describing string
// "<ivHex>:<cipherHex>", so the IV never needs a separate storage field. The key is
// fixed for the process lifetime and kept sealed in a memguard enclave between calls.
package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/awnumar/memguard"

	"github.com/and161185/passvault/internal/errs"
)

// DefaultAlgorithm is used when no algorithm is configured.
const DefaultAlgorithm = "aes-256-gcm"

const separator = ":"

// Cipher encrypts and decrypts single text values. It is safe for concurrent use.
type Cipher struct {
	alg algorithm
	key *memguard.Enclave
}

// NewCipher validates the algorithm and the exact key length it requires.
// A mismatch is reported here, at startup, rather than on the first Encrypt.
// The key slice is copied; the caller may wipe it afterwards.
func NewCipher(name string, key []byte) (*Cipher, error) {
	alg, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if len(key) != alg.keyLen {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", errs.ErrInvalidKey, alg.name, alg.keyLen, len(key))
	}
	if _, err := alg.newMode(key); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidKey, err)
	}
	sealed := make([]byte, len(key))
	copy(sealed, key)
	return &Cipher{alg: alg, key: memguard.NewEnclave(sealed)}, nil
}

// Algorithm returns the canonical algorithm identifier.
func (c *Cipher) Algorithm() string { return c.alg.name }

// Encrypt seals plaintext under a fresh random IV and returns "<ivHex>:<cipherHex>".
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	iv, err := RandBytes(c.alg.ivLen)
	if err != nil {
		return "", fmt.Errorf("iv: %w", err)
	}
	m, done, err := c.open()
	if err != nil {
		return "", err
	}
	defer done()

	ct, err := m.seal(iv, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}
	return hex.EncodeToString(iv) + separator + hex.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt. Structural problems (no separator, bad hex, wrong IV size)
// yield errs.ErrMalformedCiphertext; rejection by the mode yields errs.ErrDecryptionFailure.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(encoded, separator)
	if !ok {
		return "", fmt.Errorf("%w: missing separator", errs.ErrMalformedCiphertext)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", fmt.Errorf("%w: iv: %v", errs.ErrMalformedCiphertext, err)
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", errs.ErrMalformedCiphertext, err)
	}
	if len(iv) != c.alg.ivLen {
		return "", fmt.Errorf("%w: iv is %d bytes, want %d", errs.ErrMalformedCiphertext, len(iv), c.alg.ivLen)
	}

	m, done, err := c.open()
	if err != nil {
		return "", err
	}
	defer done()

	pt, err := m.open(iv, ct)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrDecryptionFailure, err)
	}
	return string(pt), nil
}

// open unseals the key just long enough to build the mode; done wipes the plaintext key.
func (c *Cipher) open() (mode, func(), error) {
	lb, err := c.key.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open key: %w", err)
	}
	m, err := c.alg.newMode(lb.Bytes())
	if err != nil {
		lb.Destroy()
		return nil, nil, err
	}
	return m, lb.Destroy, nil
}

// GenerateKey returns a random key of the exact length the algorithm requires.
func GenerateKey(name string) ([]byte, error) {
	alg, err := lookup(name)
	if err != nil {
		return nil, err
	}
	return RandBytes(alg.keyLen)
}

// KeyLen reports the key length in bytes the algorithm requires.
func KeyLen(name string) (int, error) {
	alg, err := lookup(name)
	if err != nil {
		return 0, err
	}
	return alg.keyLen, nil
}
