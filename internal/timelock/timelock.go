// Package timelock binds a content hash to a future unlock instant so that
// verification detects both tampering and premature or backdated disclosure.
package timelock

import (
	"errors"
	"time"

	"github.com/blackroad/shainfinity/internal/digest"
)

// ErrEmptyInput is returned when locking empty content.
var ErrEmptyInput = errors.New("timelock: empty content")

// Reason is the typed outcome of a verification. Verification failures are
// expected results of adversarial or stale input, so they are reported as
// data rather than errors.
type Reason string

// Verification outcomes.
const (
	OK             Reason = "ok"
	HashMismatch   Reason = "hash_mismatch"
	NotYetUnlocked Reason = "not_yet_unlocked"
)

// Record is a time-locked hash. LockHash covers both the content hash and
// the unlock instant, so neither can be changed without detection.
type Record struct {
	ContentHash digest.Digest `json:"content_hash"`
	UnlockAt    time.Time     `json:"unlock_at"`
	LockHash    digest.Digest `json:"lock_hash"`
}

// lockAlgorithm seals the lock hash; the content hash uses the primary
// algorithm. Using distinct families means a break of one does not forge
// the other.
const lockAlgorithm = digest.SHA384

// encodeInstant renders the canonical byte encoding of the unlock instant:
// RFC 3339 in UTC at whole-second precision. Any change here invalidates
// previously persisted lock hashes.
func encodeInstant(at time.Time) []byte {
	return []byte(at.UTC().Truncate(time.Second).Format(time.RFC3339))
}

// Lock hashes content and seals it together with unlockAt. The stored
// UnlockAt is truncated to whole seconds so the record matches its own
// canonical encoding.
func Lock(content []byte, unlockAt time.Time) (Record, error) {
	if len(content) == 0 {
		return Record{}, ErrEmptyInput
	}

	contentHash, err := digest.Primary().Sum(content)
	if err != nil {
		return Record{}, err
	}

	lockHash, err := seal(contentHash, unlockAt)
	if err != nil {
		return Record{}, err
	}

	return Record{
		ContentHash: contentHash,
		UnlockAt:    unlockAt.UTC().Truncate(time.Second),
		LockHash:    lockHash,
	}, nil
}

func seal(contentHash digest.Digest, unlockAt time.Time) (digest.Digest, error) {
	instant := encodeInstant(unlockAt)
	buf := make([]byte, 0, len(contentHash.Sum)+len(instant))
	buf = append(buf, contentHash.Sum...)
	buf = append(buf, instant...)
	return lockAlgorithm.Sum(buf)
}

// Verify checks a record against content at instant now.
//
// Hash integrity is checked before the time gate so a tampered record is
// always reported as HashMismatch, never masked as NotYetUnlocked. Only
// when both the recomputed hashes match and now is at or past UnlockAt
// does verification return OK.
func Verify(r Record, content []byte, now time.Time) Reason {
	contentHash, err := digest.Primary().Sum(content)
	if err != nil {
		return HashMismatch
	}
	if !contentHash.Equal(r.ContentHash) {
		return HashMismatch
	}

	lockHash, err := seal(contentHash, r.UnlockAt)
	if err != nil || !lockHash.Equal(r.LockHash) {
		return HashMismatch
	}

	if now.Before(r.UnlockAt) {
		return NotYetUnlocked
	}
	return OK
}
