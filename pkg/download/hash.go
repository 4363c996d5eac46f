package download

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/matzehuels/wheelhouse/pkg/errors"
)

// PreferredAlgorithm is always chosen when the index advertises it.
const PreferredAlgorithm = "sha256"

var algorithms = map[string]func() hash.Hash{
	"sha256": sha256.New,
	"sha224": sha256.New224,
	"sha384": sha512.New384,
	"sha512": sha512.New,
	"sha1":   sha1.New,
	"md5":    md5.New,
	"blake2b_256": func() hash.Hash {
		h, _ := blake2b.New256(nil)
		return h
	},
}

// Supported reports whether alg can be verified.
func Supported(alg string) bool {
	_, ok := algorithms[alg]
	return ok
}

// NewHash returns a fresh hash for alg.
func NewHash(alg string) (hash.Hash, error) {
	mk, ok := algorithms[alg]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupported, "unsupported digest algorithm %q", alg)
	}
	return mk(), nil
}

// HashFile returns the hex digest of the file at path.
func HashFile(path, alg string) (string, error) {
	h, err := NewHash(alg)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
