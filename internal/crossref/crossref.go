// Package crossref binds several named hash values (task hash, PR hash,
// commit hash, Merkle root) into one relational hash. Any change to any
// named component changes the combined hash; per-name comparison reveals
// which component moved.
package crossref

import (
	"errors"
	"sort"

	"github.com/blackroad/shainfinity/internal/digest"
)

// ErrEmptyInput is returned when combining zero components.
var ErrEmptyInput = errors.New("crossref: no components")

// combineAlgorithm produces the combined hash. The widest SHA-2 variant is
// used so the relational hash is not weaker than any component it covers.
const combineAlgorithm = digest.SHA512

// Record binds named component digests to their combined hash.
type Record struct {
	Components map[string]digest.Digest `json:"components"`
	Combined   digest.Digest            `json:"combined"`
}

// Result reports a verification outcome: whether every recorded component
// still matches, and exactly which names changed. A recorded name missing
// from the caller's current set counts as changed.
type Result struct {
	Valid   bool     `json:"valid"`
	Changed []string `json:"changed,omitempty"`
}

// Combine hashes the components' digests concatenated in lexicographic
// name order. Sorting by name makes the result independent of the caller's
// insertion order: two callers supplying the same named hashes in any
// order get the same combined hash.
func Combine(components map[string]digest.Digest) (Record, error) {
	if len(components) == 0 {
		return Record{}, ErrEmptyInput
	}

	combined, err := combineAlgorithm.Sum(canonicalBytes(components))
	if err != nil {
		return Record{}, err
	}

	// Copy so later caller mutations cannot skew the record.
	kept := make(map[string]digest.Digest, len(components))
	for name, d := range components {
		kept[name] = d
	}
	return Record{Components: kept, Combined: combined}, nil
}

// canonicalBytes is the canonical pre-image: component digest bytes
// concatenated in sorted-name order.
func canonicalBytes(components map[string]digest.Digest) []byte {
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf []byte
	for _, name := range names {
		buf = append(buf, components[name].Sum...)
	}
	return buf
}

// Verify recomputes each recorded component against current and reports
// which names no longer match. Extra names in current are ignored; the
// record defines the component set.
func Verify(r Record, current map[string]digest.Digest) Result {
	var changed []string
	for name, recorded := range r.Components {
		cur, ok := current[name]
		if !ok || !cur.Equal(recorded) {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return Result{Valid: len(changed) == 0, Changed: changed}
}
