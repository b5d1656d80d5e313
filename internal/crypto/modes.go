package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/and161185/passvault/internal/errs"
)

// mode is one block cipher mode bound to a key.
type mode interface {
	seal(iv, plaintext []byte) ([]byte, error)
	open(iv, ciphertext []byte) ([]byte, error)
}

type algorithm struct {
	name    string
	keyLen  int
	ivLen   int
	newMode func(key []byte) (mode, error)
}

var algorithms = map[string]algorithm{
	"aes-128-gcm":        {name: "aes-128-gcm", keyLen: 16, ivLen: 12, newMode: newAESGCM},
	"aes-192-gcm":        {name: "aes-192-gcm", keyLen: 24, ivLen: 12, newMode: newAESGCM},
	"aes-256-gcm":        {name: "aes-256-gcm", keyLen: 32, ivLen: 12, newMode: newAESGCM},
	"aes-128-cbc":        {name: "aes-128-cbc", keyLen: 16, ivLen: aes.BlockSize, newMode: newAESCBC},
	"aes-192-cbc":        {name: "aes-192-cbc", keyLen: 24, ivLen: aes.BlockSize, newMode: newAESCBC},
	"aes-256-cbc":        {name: "aes-256-cbc", keyLen: 32, ivLen: aes.BlockSize, newMode: newAESCBC},
	"xchacha20-poly1305": {name: "xchacha20-poly1305", keyLen: chacha20poly1305.KeySize, ivLen: chacha20poly1305.NonceSizeX, newMode: newXChaCha},
}

func lookup(name string) (algorithm, error) {
	if name == "" {
		name = DefaultAlgorithm
	}
	alg, ok := algorithms[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return algorithm{}, fmt.Errorf("%w: %q (supported: %s)", errs.ErrUnsupportedAlgorithm, name, strings.Join(Algorithms(), ", "))
	}
	return alg, nil
}

// Algorithms lists the supported algorithm identifiers in sorted order.
func Algorithms() []string {
	out := make([]string, 0, len(algorithms))
	for k := range algorithms {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Authenticated reports whether tampering with a ciphertext is detected on Decrypt
// (AEAD modes) or may silently yield wrong plaintext (CBC).
func Authenticated(name string) bool {
	alg, err := lookup(name)
	return err == nil && !strings.HasSuffix(alg.name, "-cbc")
}

// --- AEAD (GCM, XChaCha20-Poly1305) ---

type aeadMode struct{ aead cipher.AEAD }

func (m aeadMode) seal(iv, plaintext []byte) ([]byte, error) {
	return m.aead.Seal(nil, iv, plaintext, nil), nil
}

func (m aeadMode) open(iv, ciphertext []byte) ([]byte, error) {
	return m.aead.Open(nil, iv, ciphertext, nil)
}

func newAESGCM(key []byte) (mode, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return aeadMode{aead: gcm}, nil
}

func newXChaCha(key []byte) (mode, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return aeadMode{aead: aead}, nil
}

// --- AES-CBC with PKCS#7 padding ---

type cbcMode struct{ block cipher.Block }

func newAESCBC(key []byte) (mode, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cbcMode{block: block}, nil
}

func (m cbcMode) seal(iv, plaintext []byte) ([]byte, error) {
	bs := m.block.BlockSize()
	pad := bs - len(plaintext)%bs
	buf := make([]byte, len(plaintext)+pad)
	copy(buf, plaintext)
	for i := len(plaintext); i < len(buf); i++ {
		buf[i] = byte(pad)
	}
	cipher.NewCBCEncrypter(m.block, iv).CryptBlocks(buf, buf)
	return buf, nil
}

var errBadPadding = errors.New("bad padding")

func (m cbcMode) open(iv, ciphertext []byte) ([]byte, error) {
	bs := m.block.BlockSize()
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a positive multiple of %d", len(ciphertext), bs)
	}
	buf := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(m.block, iv).CryptBlocks(buf, ciphertext)

	pad := int(buf[len(buf)-1])
	if pad == 0 || pad > bs {
		return nil, errBadPadding
	}
	for _, b := range buf[len(buf)-pad:] {
		if int(b) != pad {
			return nil, errBadPadding
		}
	}
	return buf[:len(buf)-pad], nil
}
