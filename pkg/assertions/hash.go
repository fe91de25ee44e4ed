package assertions

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"golang.org/x/crypto/sha3"
)

// ChunkSize is the read size used when hashing content.
const ChunkSize = 8 * 1024

var (
	ErrEmptyContent       = errors.New("assertions: content is empty")
	ErrUnsupportedHashAlg = errors.New("assertions: unsupported hash algorithm")
)

// HashAlgorithm names a content digest.
type HashAlgorithm string

const (
	SHA256   HashAlgorithm = "sha256"
	SHA384   HashAlgorithm = "sha384"
	SHA512   HashAlgorithm = "sha512"
	SHA3_256 HashAlgorithm = "sha3-256"
	SHA3_512 HashAlgorithm = "sha3-512"
)

// New returns a fresh hash for the algorithm.
func (a HashAlgorithm) New() (hash.Hash, error) {
	switch a {
	case SHA256:
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	case SHA3_256:
		return sha3.New256(), nil
	case SHA3_512:
		return sha3.New512(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedHashAlg, string(a))
	}
}

// Size is the digest length in bytes, or 0 for unknown algorithms.
func (a HashAlgorithm) Size() int {
	h, err := a.New()
	if err != nil {
		return 0
	}
	return h.Size()
}

// Digest streams r through the algorithm in ChunkSize reads and returns the
// hex digest. A nil reader or one that yields no bytes is rejected.
func Digest(alg HashAlgorithm, r io.Reader) (string, error) {
	if r == nil {
		return "", ErrEmptyContent
	}
	h, err := alg.New()
	if err != nil {
		return "", err
	}
	buf := make([]byte, ChunkSize)
	var total int64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			total += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", fmt.Errorf("assertions: read content: %w", rerr)
		}
	}
	if total == 0 {
		return "", ErrEmptyContent
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestFile hashes the file at path. Missing and zero-length files are
// rejected before any content is read.
func DigestFile(alg HashAlgorithm, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s does not exist", ErrEmptyContent, path)
		}
		return "", fmt.Errorf("assertions: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("assertions: %s is a directory", path)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("%w: %s", ErrEmptyContent, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("assertions: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Digest(alg, f)
}
