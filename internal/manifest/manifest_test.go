package manifest_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/blackroad/shainfinity/internal/digest"
	"github.com/blackroad/shainfinity/internal/hashing"
	"github.com/blackroad/shainfinity/internal/manifest"
)

func fileSet(t *testing.T, contents map[string]string) map[string]hashing.FileDigest {
	t.Helper()
	out := make(map[string]hashing.FileDigest, len(contents))
	for p, c := range contents {
		d, err := digest.Primary().Sum([]byte(c))
		if err != nil {
			t.Fatal(err)
		}
		out[p] = hashing.FileDigest{Digest: d, Size: int64(len(c))}
	}
	return out
}

func TestBuild_empty(t *testing.T) {
	if _, err := manifest.Build(nil); !errors.Is(err, manifest.ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

func TestBuild_countsAndSizes(t *testing.T) {
	files := fileSet(t, map[string]string{
		"a.txt": "alpha",
		"b.txt": "beta!",
	})

	m, err := manifest.Build(files)
	if err != nil {
		t.Fatal(err)
	}
	if m.Version != manifest.Version {
		t.Errorf("version: got %q, want %q", m.Version, manifest.Version)
	}
	if m.FileCount != 2 {
		t.Errorf("file count: got %d, want 2", m.FileCount)
	}
	if m.TotalSize != 10 {
		t.Errorf("total size: got %d, want 10", m.TotalSize)
	}
	if m.ManifestHash.IsZero() {
		t.Error("manifest hash must be set")
	}
}

func TestBuild_hashIndependentOfTraversalOrder(t *testing.T) {
	contents := map[string]string{"a": "1", "b": "2", "c": "3", "d": "4"}

	// Two maps populated in different orders still hash the same set.
	first := fileSet(t, contents)
	second := make(map[string]hashing.FileDigest)
	for _, p := range []string{"d", "b", "c", "a"} {
		second[p] = first[p]
	}

	m1, err := manifest.Build(first)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := manifest.Build(second)
	if err != nil {
		t.Fatal(err)
	}
	if !m1.ManifestHash.Equal(m2.ManifestHash) {
		t.Errorf("manifest hash depends on insertion order: %s vs %s",
			m1.ManifestHash, m2.ManifestHash)
	}
}

func TestVerify_cleanTree(t *testing.T) {
	files := fileSet(t, map[string]string{"a.txt": "alpha"})
	m, err := manifest.Build(files)
	if err != nil {
		t.Fatal(err)
	}

	report := m.Verify(files)
	if !report.Verified || len(report.Mismatches) != 0 {
		t.Errorf("expected clean report, got %+v", report)
	}
}

func TestVerify_classifiesMismatches(t *testing.T) {
	m, err := manifest.Build(fileSet(t, map[string]string{
		"kept.txt":     "same",
		"modified.txt": "before",
		"removed.txt":  "gone",
	}))
	if err != nil {
		t.Fatal(err)
	}

	report := m.Verify(fileSet(t, map[string]string{
		"kept.txt":     "same",
		"modified.txt": "after",
		"new.txt":      "brand new",
	}))

	if report.Verified {
		t.Error("expected failed verification")
	}
	kinds := map[string]manifest.MismatchKind{}
	for _, mm := range report.Mismatches {
		kinds[mm.Path] = mm.Kind
	}
	if kinds["modified.txt"] != manifest.Modified {
		t.Errorf("modified.txt: got %q, want modified", kinds["modified.txt"])
	}
	if kinds["removed.txt"] != manifest.Missing {
		t.Errorf("removed.txt: got %q, want missing", kinds["removed.txt"])
	}
	if kinds["new.txt"] != manifest.Added {
		t.Errorf("new.txt: got %q, want added", kinds["new.txt"])
	}
	if _, ok := kinds["kept.txt"]; ok {
		t.Error("kept.txt should not be reported")
	}
}

func TestWriteRead_roundTrip(t *testing.T) {
	m, err := manifest.Build(fileSet(t, map[string]string{"a.txt": "alpha"}))
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := m.WriteFile(path); err != nil {
		t.Fatal(err)
	}

	back, err := manifest.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !back.ManifestHash.Equal(m.ManifestHash) {
		t.Errorf("manifest hash: got %s, want %s", back.ManifestHash, m.ManifestHash)
	}
	if back.Files["a.txt"].Size != m.Files["a.txt"].Size {
		t.Errorf("file entry size lost in round trip")
	}
}
