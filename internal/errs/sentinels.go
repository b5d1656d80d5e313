// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service/transport layers.
var (
	// ErrInvalidRequest indicates missing or malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable indicates the document store could not serve the operation.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrMalformedCiphertext indicates a stored value is not in "<ivHex>:<cipherHex>" form.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")

	// ErrDecryptionFailure indicates the cipher rejected the input (auth tag, padding, block size).
	ErrDecryptionFailure = errors.New("decryption failure")

	// ErrUnsupportedAlgorithm indicates an unknown cipher algorithm identifier.
	ErrUnsupportedAlgorithm = errors.New("unsupported cipher algorithm")

	// ErrInvalidKey indicates a cipher key of the wrong length for the algorithm.
	ErrInvalidKey = errors.New("invalid cipher key")

	// ErrRateLimited indicates the caller is temporarily blocked.
	ErrRateLimited = errors.New("rate limited")
)
