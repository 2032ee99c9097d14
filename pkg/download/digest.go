package download

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	blake2b "github.com/minio/blake2b-simd"
	"github.com/oneconcern/provisioner/pkg/errors"
	"github.com/zeebo/blake3"
)

// Supported digest algorithms
const (
	SHA256  = "sha256"
	Blake2b = "blake2b"
	Blake3  = "blake3"
)

// Digest is an expected cryptographic hash, written "algo:hex". A bare hex string is a sha256.
type Digest struct {
	Algorithm string
	Sum       []byte
}

// ParseDigest parses the "algo:hex" notation
func ParseDigest(s string) (Digest, error) {
	s = strings.TrimSpace(s)
	algo, hexSum := SHA256, s
	if i := strings.IndexByte(s, ':'); i >= 0 {
		algo, hexSum = strings.ToLower(s[:i]), s[i+1:]
	}

	h, err := newHash(algo)
	if err != nil {
		return Digest{}, err
	}
	sum, err := hex.DecodeString(strings.ToLower(hexSum))
	if err != nil {
		return Digest{}, errors.New(fmt.Sprintf("invalid %s digest %q", algo, hexSum)).Of(errors.ErrIntegrity).Wrap(err)
	}
	if len(sum) != h.Size() {
		return Digest{}, errors.New(fmt.Sprintf("invalid %s digest: expected %d bytes, got %d", algo, h.Size(), len(sum))).Of(errors.ErrIntegrity)
	}
	return Digest{Algorithm: algo, Sum: sum}, nil
}

// String renders the digest in "algo:hex" notation
func (d Digest) String() string {
	return d.Algorithm + ":" + hex.EncodeToString(d.Sum)
}

// IsZero tells if no digest is expected
func (d Digest) IsZero() bool {
	return d.Algorithm == "" && len(d.Sum) == 0
}

// Hash returns a fresh hash for this digest's algorithm
func (d Digest) Hash() hash.Hash {
	h, err := newHash(d.Algorithm)
	if err != nil {
		// ParseDigest only produces known algorithms
		panic(err)
	}
	return h
}

// Matches compares a computed sum with the expected one in constant time
func (d Digest) Matches(sum []byte) bool {
	return subtle.ConstantTimeCompare(d.Sum, sum) == 1
}

func newHash(algo string) (hash.Hash, error) {
	switch algo {
	case SHA256:
		return sha256.New(), nil
	case Blake2b:
		return blake2b.New512(), nil
	case Blake3:
		return blake3.New(), nil
	default:
		return nil, errors.New(fmt.Sprintf("unsupported digest algorithm %q", algo)).Of(errors.ErrIntegrity)
	}
}
