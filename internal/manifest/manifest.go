// Package manifest models the persisted file-hash manifest and its
// verification. The manifest hash is computed over the sorted set of file
// digests, so two traversals of the same tree always produce the same
// manifest hash regardless of walk order.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/blackroad/shainfinity/internal/digest"
	"github.com/blackroad/shainfinity/internal/hashing"
)

// Version is the manifest format version.
const Version = "1.0"

// ErrEmptyInput is returned when building a manifest over zero files.
var ErrEmptyInput = errors.New("manifest: no files")

// FileEntry records one file's digest and size.
type FileEntry struct {
	Hash digest.Digest `json:"hash"`
	Size int64         `json:"size"`
}

// Manifest is the persisted JSON artifact describing a hashed file tree.
type Manifest struct {
	Version      string               `json:"version"`
	GeneratedAt  time.Time            `json:"generated_at"`
	FileCount    int                  `json:"file_count"`
	TotalSize    int64                `json:"total_size"`
	ManifestHash digest.Digest        `json:"manifest_hash"`
	Files        map[string]FileEntry `json:"files"`
}

// MismatchKind classifies one verification difference.
type MismatchKind string

// Mismatch kinds.
const (
	Modified MismatchKind = "modified"
	Missing  MismatchKind = "missing" // recorded in the manifest, absent now
	Added    MismatchKind = "added"   // present now, absent from the manifest
)

// Mismatch is one per-path verification difference.
type Mismatch struct {
	Path string       `json:"path"`
	Kind MismatchKind `json:"kind"`
}

// Report is the outcome of verifying a tree against a manifest.
// Verification differences are data, never errors.
type Report struct {
	Verified   bool       `json:"verified"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// Build creates a manifest from the per-file digests of a directory walk.
func Build(files map[string]hashing.FileDigest) (*Manifest, error) {
	if len(files) == 0 {
		return nil, ErrEmptyInput
	}

	entries := make(map[string]FileEntry, len(files))
	var totalSize int64
	for p, fd := range files {
		entries[p] = FileEntry{Hash: fd.Digest, Size: fd.Size}
		totalSize += fd.Size
	}

	manifestHash, err := hashOfEntries(entries)
	if err != nil {
		return nil, err
	}

	return &Manifest{
		Version:      Version,
		GeneratedAt:  time.Now().UTC(),
		FileCount:    len(entries),
		TotalSize:    totalSize,
		ManifestHash: manifestHash,
		Files:        entries,
	}, nil
}

// hashOfEntries digests the concatenation of all file digest hex strings
// in lexicographic order. Sorting by hex, not by traversal order, keeps
// the manifest hash stable across walk orders.
func hashOfEntries(entries map[string]FileEntry) (digest.Digest, error) {
	hexes := make([]string, 0, len(entries))
	for _, e := range entries {
		hexes = append(hexes, e.Hash.Hex())
	}
	sort.Strings(hexes)

	var buf []byte
	for _, h := range hexes {
		buf = append(buf, h...)
	}
	return digest.Primary().Sum(buf)
}

// Verify compares the manifest's recorded digests against a freshly
// computed set. Paths present on only one side are reported as missing or
// added mismatches; digest disagreements are modified.
func (m *Manifest) Verify(current map[string]hashing.FileDigest) Report {
	var mismatches []Mismatch

	for p, recorded := range m.Files {
		cur, ok := current[p]
		if !ok {
			mismatches = append(mismatches, Mismatch{Path: p, Kind: Missing})
			continue
		}
		if !cur.Digest.Equal(recorded.Hash) {
			mismatches = append(mismatches, Mismatch{Path: p, Kind: Modified})
		}
	}
	for p := range current {
		if _, ok := m.Files[p]; !ok {
			mismatches = append(mismatches, Mismatch{Path: p, Kind: Added})
		}
	}

	sort.Slice(mismatches, func(i, j int) bool { return mismatches[i].Path < mismatches[j].Path })
	return Report{Verified: len(mismatches) == 0, Mismatches: mismatches}
}

// WriteFile persists the manifest as indented JSON.
func (m *Manifest) WriteFile(path string) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadFile loads a manifest written by WriteFile.
func ReadFile(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
