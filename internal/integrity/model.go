package integrity

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/blackroad/shainfinity/internal/digest"
)

// Kind classifies what an artifact's hash covers.
type Kind string

// Artifact kinds.
const (
	KindTask   Kind = "task"
	KindFile   Kind = "file"
	KindCommit Kind = "commit"
	KindPR     Kind = "pr"
)

// Artifact is one registered hash: the identity (kind + key) of a tracked
// entity and the digests recorded for it. Artifacts are immutable;
// re-registering a key produces a replacement record.
type Artifact struct {
	ID           uuid.UUID     `json:"id"`
	Kind         Kind          `json:"kind"`
	Key          string        `json:"key"` // task id, file path, commit sha, or PR id
	Hash         digest.Digest `json:"hash"`
	ChainFinal   digest.Digest `json:"chain_final,omitempty"` // terminal layered-chain digest, task artifacts only
	Size         int64         `json:"size,omitempty"`
	RegisteredAt time.Time     `json:"registered_at"`
}

// Task is the hashable representation of a tracked task. Field order and
// file sorting define the canonical form; two equal tasks always produce
// the same canonical bytes.
type Task struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      string            `json:"status"`
	Files       []string          `json:"files"`
	Metadata    map[string]string `json:"metadata"`
}

// canonicalJSON renders the deterministic byte form of the task. JSON
// object keys marshal in struct order and map keys sort automatically;
// the file list is sorted explicitly.
func (t Task) canonicalJSON() ([]byte, error) {
	files := append([]string{}, t.Files...)
	sort.Strings(files)
	t.Files = files
	return json.Marshal(t)
}

// PR is the metadata of a pull request under validation.
type PR struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Branch string   `json:"branch"`
	TaskID string   `json:"task_id"`
	Files  []string `json:"files"`
}

// VerifyResult reports an artifact verification outcome as data. Recorded
// is the stored digest, Current the freshly computed one; they are equal
// exactly when Valid.
type VerifyResult struct {
	Valid    bool          `json:"valid"`
	Recorded digest.Digest `json:"recorded"`
	Current  digest.Digest `json:"current"`
}

// Check is one sub-result of a PR validation.
type Check struct {
	Type  string `json:"type"` // "task" or "file"
	Ref   string `json:"ref"`
	Valid bool   `json:"valid"`
}

// PRReport is the full outcome of validating a pull request.
type PRReport struct {
	PRID       string        `json:"pr_id"`
	Valid      bool          `json:"valid"`
	Checks     []Check       `json:"checks"`
	MerkleRoot digest.Digest `json:"merkle_root"`
	CrossRef   digest.Digest `json:"cross_reference"`
	Hash       digest.Digest `json:"hash"`
	FileCount  int           `json:"file_count"`
	Timestamp  time.Time     `json:"timestamp"`
}
