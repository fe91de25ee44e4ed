package crypto

import "errors"

var (
	// ErrUnsupportedAlgorithm is returned for algorithm tags with no scheme.
	ErrUnsupportedAlgorithm = errors.New("crypto: unsupported algorithm")
	// ErrKeyMismatch is returned when the loaded key belongs to another
	// algorithm family or parameter set.
	ErrKeyMismatch = errors.New("crypto: key does not match algorithm")
	// ErrMissingKeyMaterial is returned when signing with no key loaded.
	ErrMissingKeyMaterial = errors.New("crypto: missing key material")
	// ErrPrimitiveUnavailable is returned for known post-quantum tags whose
	// primitive has not been injected.
	ErrPrimitiveUnavailable = errors.New("crypto: post-quantum primitive unavailable")

	ErrNoSignature      = errors.New("crypto: claim has no signature")
	ErrInvalidSignature = errors.New("crypto: signature verification failed")
	ErrNoPublicKey      = errors.New("crypto: no public key for signature")
)
