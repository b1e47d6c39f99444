package auth

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

// MinPepperLength is the shortest accepted hashing key
const MinPepperLength = 16

// ErrWeakPepper is returned when the configured pepper is too short
var ErrWeakPepper = errors.New("code pepper is too short")

// CodeHasher turns one-time codes into keyed digests so a leaked table does not
// reveal live codes
type CodeHasher struct {
	key []byte
}

// NewCodeHasher creates a CodeHasher keyed with pepper.
// Peppers longer than the BLAKE2b key limit are compressed first.
func NewCodeHasher(pepper string) (*CodeHasher, error) {
	if len(pepper) < MinPepperLength {
		return nil, ErrWeakPepper
	}

	key := []byte(pepper)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}

	return &CodeHasher{key: key}, nil
}

// Digest returns the hex-encoded keyed BLAKE2b-256 digest of code
func (h *CodeHasher) Digest(code string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// key length is validated in NewCodeHasher
		panic(err)
	}
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal reports whether code hashes to digest, in constant time
func (h *CodeHasher) Equal(code, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Digest(code)), []byte(digest)) == 1
}
