// Package digest defines the fixed algorithm registry and the Digest value
// that every higher-level construction (chains, Merkle trees, time locks,
// cross-references) exchanges. The registry order is part of the wire
// contract: layered chains rotate through it by index, so it must never be
// reordered or mutated at runtime.
package digest

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"
)

// Algorithm identifies one of the registry's digest functions.
type Algorithm uint8

// Registry algorithms, in rotation order. The SHA-2 family comes first,
// then the SHA-3 (sponge) family, then the BLAKE2 family.
const (
	SHA256 Algorithm = iota
	SHA384
	SHA512
	SHA3_256
	SHA3_512
	BLAKE2b
	BLAKE2s
)

// ErrUnknownAlgorithm is returned for an algorithm tag outside the registry.
// With a correct registry this indicates a programmer error, not bad input.
var ErrUnknownAlgorithm = errors.New("digest: unknown algorithm")

// ErrEmptyInput is returned when an operation requires non-empty input.
var ErrEmptyInput = errors.New("digest: empty input")

var registry = [...]Algorithm{SHA256, SHA384, SHA512, SHA3_256, SHA3_512, BLAKE2b, BLAKE2s}

var names = map[Algorithm]string{
	SHA256:   "sha256",
	SHA384:   "sha384",
	SHA512:   "sha512",
	SHA3_256: "sha3-256",
	SHA3_512: "sha3-512",
	BLAKE2b:  "blake2b",
	BLAKE2s:  "blake2s",
}

// Registry returns the ordered algorithm list. The returned slice is a copy.
func Registry() []Algorithm {
	out := make([]Algorithm, len(registry))
	copy(out, registry[:])
	return out
}

// RegistrySize is the number of algorithms in the rotation.
const RegistrySize = len(registry)

// Primary returns the baseline algorithm used wherever a single digest
// suffices (file hashing, Merkle combination).
func Primary() Algorithm { return SHA256 }

// At returns the registry algorithm for a rotation index, wrapping when the
// index exceeds the registry size.
func At(i int) Algorithm { return registry[i%RegistrySize] }

// String returns the canonical lowercase name of the algorithm.
func (a Algorithm) String() string {
	if n, ok := names[a]; ok {
		return n
	}
	return fmt.Sprintf("algorithm(%d)", uint8(a))
}

// ParseAlgorithm resolves a canonical name back to its registry tag.
func ParseAlgorithm(s string) (Algorithm, error) {
	for a, n := range names {
		if n == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

// MarshalText encodes the algorithm as its canonical name.
func (a Algorithm) MarshalText() ([]byte, error) {
	if _, ok := names[a]; !ok {
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownAlgorithm, uint8(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText decodes a canonical algorithm name.
func (a *Algorithm) UnmarshalText(text []byte) error {
	parsed, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Size returns the digest length in bytes, or 0 for an unknown tag.
func (a Algorithm) Size() int {
	switch a {
	case SHA256, SHA3_256, BLAKE2s:
		return 32
	case SHA384:
		return 48
	case SHA512, SHA3_512, BLAKE2b:
		return 64
	}
	return 0
}

// Sum computes the digest of data with this algorithm.
func (a Algorithm) Sum(data []byte) (Digest, error) {
	var sum []byte
	switch a {
	case SHA256:
		s := sha256.Sum256(data)
		sum = s[:]
	case SHA384:
		s := sha512.Sum384(data)
		sum = s[:]
	case SHA512:
		s := sha512.Sum512(data)
		sum = s[:]
	case SHA3_256:
		s := sha3.Sum256(data)
		sum = s[:]
	case SHA3_512:
		s := sha3.Sum512(data)
		sum = s[:]
	case BLAKE2b:
		s := blake2b.Sum512(data)
		sum = s[:]
	case BLAKE2s:
		s := blake2s.Sum256(data)
		sum = s[:]
	default:
		return Digest{}, fmt.Errorf("%w: tag %d", ErrUnknownAlgorithm, uint8(a))
	}
	return Digest{Algorithm: a, Sum: sum}, nil
}

// Digest is a fixed-length hash value tagged with the algorithm that
// produced it. Treat it as immutable once created; operations that would
// change it produce a new value instead.
type Digest struct {
	Algorithm Algorithm
	Sum       []byte
}

// IsZero reports whether the digest is the empty value.
func (d Digest) IsZero() bool { return len(d.Sum) == 0 }

// Hex returns the lowercase hex encoding of the digest bytes.
func (d Digest) Hex() string { return hex.EncodeToString(d.Sum) }

// String renders the external "algorithm:hex" representation, e.g.
// "sha256:9f86d0…". This is the form persisted by callers.
func (d Digest) String() string { return d.Algorithm.String() + ":" + d.Hex() }

// Equal reports whether two digests have the same algorithm and bytes.
func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && bytes.Equal(d.Sum, other.Sum)
}

// Parse decodes the "algorithm:hex" external representation.
func Parse(s string) (Digest, error) {
	name, hexSum, ok := strings.Cut(s, ":")
	if !ok {
		return Digest{}, fmt.Errorf("digest: malformed value %q", s)
	}
	alg, err := ParseAlgorithm(name)
	if err != nil {
		return Digest{}, err
	}
	sum, err := hex.DecodeString(hexSum)
	if err != nil {
		return Digest{}, fmt.Errorf("digest: decode hex: %w", err)
	}
	if len(sum) != alg.Size() {
		return Digest{}, fmt.Errorf("digest: %s wants %d bytes, got %d", alg, alg.Size(), len(sum))
	}
	return Digest{Algorithm: alg, Sum: sum}, nil
}

// MarshalJSON encodes the digest as its "algorithm:hex" string form.
func (d Digest) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes the "algorithm:hex" string form.
func (d *Digest) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("digest: expected JSON string, got %s", s)
	}
	parsed, err := Parse(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
