package crypto

import (
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/and161185/passvault/internal/errs"
)

func newTestCipher(t *testing.T, alg string) *Cipher {
	t.Helper()
	key, err := GenerateKey(alg)
	if err != nil {
		t.Fatalf("GenerateKey(%s): %v", alg, err)
	}
	c, err := NewCipher(alg, key)
	if err != nil {
		t.Fatalf("NewCipher(%s): %v", alg, err)
	}
	return c
}

// flipCiphertextBit flips one bit of the i-th ciphertext byte and re-encodes.
func flipCiphertextBit(t *testing.T, encoded string, i int) string {
	t.Helper()
	ivHex, ctHex, ok := strings.Cut(encoded, ":")
	if !ok {
		t.Fatalf("no separator in %q", encoded)
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ct[i] ^= 0x01
	return ivHex + ":" + hex.EncodeToString(ct)
}

func TestCipher_Roundtrip_AllAlgorithms(t *testing.T) {
	t.Parallel()

	inputs := []string{"", "p1", "correct horse battery staple", "пароль \x00\x01 ✓", strings.Repeat("x", 1000)}
	for _, alg := range Algorithms() {
		c := newTestCipher(t, alg)
		if c.Algorithm() != alg {
			t.Fatalf("Algorithm()=%q, want %q", c.Algorithm(), alg)
		}
		for _, p := range inputs {
			enc, err := c.Encrypt(p)
			if err != nil {
				t.Fatalf("%s Encrypt: %v", alg, err)
			}
			got, err := c.Decrypt(enc)
			if err != nil {
				t.Fatalf("%s Decrypt: %v", alg, err)
			}
			if got != p {
				t.Fatalf("%s roundtrip mismatch: got %q want %q", alg, got, p)
			}
		}
	}
}

func TestCipher_Format_IVHexColonCipherHex(t *testing.T) {
	t.Parallel()

	c := newTestCipher(t, "aes-256-gcm")
	enc, err := c.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	ivHex, ctHex, ok := strings.Cut(enc, ":")
	if !ok {
		t.Fatalf("missing separator: %q", enc)
	}
	if len(ivHex) != 24 {
		t.Fatalf("iv hex len=%d, want 24", len(ivHex))
	}
	if _, err := hex.DecodeString(ctHex); err != nil {
		t.Fatalf("ciphertext not hex: %v", err)
	}
	if strings.Contains(enc, "secret") {
		t.Fatalf("plaintext leaked into %q", enc)
	}
}

func TestCipher_FreshIVPerCall(t *testing.T) {
	t.Parallel()

	for _, alg := range Algorithms() {
		c := newTestCipher(t, alg)
		a, _ := c.Encrypt("same")
		b, _ := c.Encrypt("same")
		if a == b {
			t.Fatalf("%s: two encryptions are equal", alg)
		}
		ivA, _, _ := strings.Cut(a, ":")
		ivB, _, _ := strings.Cut(b, ":")
		if ivA == ivB {
			t.Fatalf("%s: IV reused", alg)
		}
	}
}

func TestCipher_TamperDetected_Authenticated(t *testing.T) {
	t.Parallel()

	for _, alg := range []string{"aes-128-gcm", "aes-256-gcm", "xchacha20-poly1305"} {
		if !Authenticated(alg) {
			t.Fatalf("%s must be authenticated", alg)
		}
		c := newTestCipher(t, alg)
		enc, _ := c.Encrypt("payload")
		_, err := c.Decrypt(flipCiphertextBit(t, enc, 0))
		if !errors.Is(err, errs.ErrDecryptionFailure) {
			t.Fatalf("%s: want ErrDecryptionFailure, got %v", alg, err)
		}
	}
}

func TestCipher_Tamper_CBCYieldsWrongPlaintext(t *testing.T) {
	t.Parallel()

	if Authenticated("aes-256-cbc") {
		t.Fatalf("cbc must not report authenticated")
	}
	c := newTestCipher(t, "aes-256-cbc")
	pt := "twenty byte password"
	enc, _ := c.Encrypt(pt)

	// A flip in the first block garbles block one and flips the same bit of block two,
	// leaving the padding intact.
	got, err := c.Decrypt(flipCiphertextBit(t, enc, 0))
	if err != nil {
		t.Fatalf("cbc decrypt of tampered value: %v", err)
	}
	if got == pt {
		t.Fatalf("tampered cbc ciphertext decrypted to the original")
	}
}

func TestCipher_Tamper_CBCPaddingFailure(t *testing.T) {
	t.Parallel()

	c := newTestCipher(t, "aes-128-cbc")
	enc, _ := c.Encrypt("abc")
	ivHex, _, _ := strings.Cut(enc, ":")

	_, err := c.Decrypt(ivHex + ":" + strings.Repeat("00", 15))
	if !errors.Is(err, errs.ErrDecryptionFailure) {
		t.Fatalf("partial block: want ErrDecryptionFailure, got %v", err)
	}
	_, err = c.Decrypt(ivHex + ":")
	if !errors.Is(err, errs.ErrDecryptionFailure) {
		t.Fatalf("empty ciphertext: want ErrDecryptionFailure, got %v", err)
	}
}

func TestCipher_Decrypt_Malformed(t *testing.T) {
	t.Parallel()

	c := newTestCipher(t, "aes-256-gcm")
	good, _ := c.Encrypt("x")
	ivHex, ctHex, _ := strings.Cut(good, ":")

	cases := map[string]string{
		"no separator":  ivHex + ctHex,
		"bad iv hex":    "zz" + ivHex[2:] + ":" + ctHex,
		"bad ct hex":    ivHex + ":" + ctHex + "g",
		"odd hex":       ivHex + ":" + ctHex[1:],
		"short iv":      ivHex[:10] + ":" + ctHex,
		"empty":         "",
		"plaintext-ish": "hunter2",
	}
	for name, in := range cases {
		if _, err := c.Decrypt(in); !errors.Is(err, errs.ErrMalformedCiphertext) {
			t.Fatalf("%s: want ErrMalformedCiphertext, got %v", name, err)
		}
	}
}

func TestCipher_Decrypt_SplitsOnFirstSeparator(t *testing.T) {
	t.Parallel()

	c := newTestCipher(t, "aes-256-gcm")
	enc, _ := c.Encrypt("x")
	if _, err := c.Decrypt(enc + ":00"); !errors.Is(err, errs.ErrMalformedCiphertext) {
		t.Fatalf("extra separator must land in the ciphertext part and fail hex: %v", err)
	}
}

func TestCipher_WrongKeyFails(t *testing.T) {
	t.Parallel()

	a := newTestCipher(t, "aes-256-gcm")
	b := newTestCipher(t, "aes-256-gcm")
	enc, _ := a.Encrypt("x")
	if _, err := b.Decrypt(enc); !errors.Is(err, errs.ErrDecryptionFailure) {
		t.Fatalf("want ErrDecryptionFailure with wrong key, got %v", err)
	}
}

func TestNewCipher_ValidatesAtConstruction(t *testing.T) {
	t.Parallel()

	if _, err := NewCipher("aes-256-gcm", make([]byte, 16)); !errors.Is(err, errs.ErrInvalidKey) {
		t.Fatalf("short key: want ErrInvalidKey, got %v", err)
	}
	if _, err := NewCipher("aes-128-cbc", make([]byte, 32)); !errors.Is(err, errs.ErrInvalidKey) {
		t.Fatalf("long key: want ErrInvalidKey, got %v", err)
	}
	if _, err := NewCipher("rot13", make([]byte, 32)); !errors.Is(err, errs.ErrUnsupportedAlgorithm) {
		t.Fatalf("unknown alg: want ErrUnsupportedAlgorithm, got %v", err)
	}
	c, err := NewCipher("", make([]byte, 32))
	if err != nil {
		t.Fatalf("default algorithm: %v", err)
	}
	if c.Algorithm() != DefaultAlgorithm {
		t.Fatalf("default algorithm = %q", c.Algorithm())
	}
	if _, err := NewCipher(" AES-256-CBC ", make([]byte, 32)); err != nil {
		t.Fatalf("identifiers are case-insensitive: %v", err)
	}
}

func TestNewCipher_CopiesKey(t *testing.T) {
	t.Parallel()

	key, _ := GenerateKey("aes-256-gcm")
	c, err := NewCipher("aes-256-gcm", key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	enc, _ := c.Encrypt("x")
	for i := range key {
		key[i] = 0
	}
	if got, err := c.Decrypt(enc); err != nil || got != "x" {
		t.Fatalf("cipher must not depend on caller's key slice: %q %v", got, err)
	}
}

func TestCipher_ConcurrentUse(t *testing.T) {
	t.Parallel()

	c := newTestCipher(t, "aes-256-gcm")
	var wg sync.WaitGroup
	errCh := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			enc, err := c.Encrypt("concurrent")
			if err != nil {
				errCh <- err
				return
			}
			if got, err := c.Decrypt(enc); err != nil || got != "concurrent" {
				errCh <- errors.New("roundtrip mismatch")
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent use: %v", err)
	}
}

func TestGenerateKey_And_KeyLen(t *testing.T) {
	t.Parallel()

	for _, alg := range Algorithms() {
		n, err := KeyLen(alg)
		if err != nil {
			t.Fatalf("KeyLen(%s): %v", alg, err)
		}
		k, err := GenerateKey(alg)
		if err != nil || len(k) != n {
			t.Fatalf("GenerateKey(%s): len=%d err=%v, want %d", alg, len(k), err, n)
		}
	}
	if _, err := GenerateKey("nope"); !errors.Is(err, errs.ErrUnsupportedAlgorithm) {
		t.Fatalf("want ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	a, err := RandBytes(32)
	if err != nil || len(a) != 32 {
		t.Fatalf("RandBytes: len=%d err=%v", len(a), err)
	}
	b, _ := RandBytes(32)
	if string(a) == string(b) {
		t.Fatalf("two RandBytes(32) are equal")
	}
}
