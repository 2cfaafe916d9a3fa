package auditlog

import (
	"fmt"
	"time"

	"github.com/blackroad/shainfinity/internal/digest"
)

// GenesisHash is the canonical well-known hash of the genesis entry. It is
// the trust anchor of the log: every later entry hash chains from this
// constant rather than from a computed value.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Actions recorded in the audit log.
const (
	ActionGenesis          = "genesis"
	ActionTaskRegistered   = "task.registered"
	ActionFileRegistered   = "file.registered"
	ActionCommitRegistered = "commit.registered"
	ActionPRValidated      = "pr.validated"
	ActionVerifyPassed     = "verify.passed"
	ActionVerifyFailed     = "verify.failed"
)

// SystemActor is the actor recorded for entries the engine itself creates.
const SystemActor = "shainfinity-system"

// Entry is one audit record in the integrity log. Each entry carries the
// hash of the previous one, so omitting, reordering, or rewriting any
// record breaks the chain.
type Entry struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"` // task id, file path, commit sha, or PR id
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	DataHash  string    `json:"data_hash"` // digest of the associated payload
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// hashEntry computes the deterministic hash over an entry's fields using
// the registry's primary algorithm. Never called for the genesis entry.
func hashEntry(e *Entry) (string, error) {
	preimage := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s",
		e.Index, e.Timestamp.Format(time.RFC3339Nano),
		e.Subject, e.Action, e.Actor, e.DataHash, e.PrevHash,
	)
	d, err := digest.Primary().Sum([]byte(preimage))
	if err != nil {
		return "", err
	}
	return d.Hex(), nil
}

// payloadHash digests an entry payload with the primary algorithm.
func payloadHash(payload []byte) (string, error) {
	d, err := digest.Primary().Sum(payload)
	if err != nil {
		return "", err
	}
	return d.Hex(), nil
}
