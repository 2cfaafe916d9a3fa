package digest_test

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/blackroad/shainfinity/internal/digest"
)

func TestRegistry_orderAndSize(t *testing.T) {
	reg := digest.Registry()
	if len(reg) != digest.RegistrySize {
		t.Fatalf("registry size: got %d, want %d", len(reg), digest.RegistrySize)
	}

	want := []digest.Algorithm{
		digest.SHA256, digest.SHA384, digest.SHA512,
		digest.SHA3_256, digest.SHA3_512,
		digest.BLAKE2b, digest.BLAKE2s,
	}
	for i, a := range want {
		if reg[i] != a {
			t.Errorf("registry[%d]: got %s, want %s", i, reg[i], a)
		}
	}
}

func TestAt_wrapsModuloRegistry(t *testing.T) {
	if digest.At(0) != digest.SHA256 {
		t.Errorf("At(0): got %s, want sha256", digest.At(0))
	}
	if digest.At(digest.RegistrySize) != digest.SHA256 {
		t.Errorf("At(%d): got %s, want sha256", digest.RegistrySize, digest.At(digest.RegistrySize))
	}
	if digest.At(digest.RegistrySize+1) != digest.SHA384 {
		t.Errorf("At(size+1): got %s, want sha384", digest.At(digest.RegistrySize+1))
	}
}

func TestSum_matchesStdlib(t *testing.T) {
	content := []byte("hello")
	d, err := digest.SHA256.Sum(content)
	if err != nil {
		t.Fatal(err)
	}

	want := sha256.Sum256(content)
	if d.Hex() != hex.EncodeToString(want[:]) {
		t.Errorf("sha256 sum: got %s, want %s", d.Hex(), hex.EncodeToString(want[:]))
	}
	if d.Algorithm != digest.SHA256 {
		t.Errorf("algorithm tag: got %s, want sha256", d.Algorithm)
	}
}

func TestSum_sizes(t *testing.T) {
	for _, a := range digest.Registry() {
		d, err := a.Sum([]byte("content"))
		if err != nil {
			t.Fatalf("%s: %v", a, err)
		}
		if len(d.Sum) != a.Size() {
			t.Errorf("%s: digest length %d, want %d", a, len(d.Sum), a.Size())
		}
	}
}

func TestSum_unknownAlgorithm(t *testing.T) {
	_, err := digest.Algorithm(200).Sum([]byte("x"))
	if !errors.Is(err, digest.ErrUnknownAlgorithm) {
		t.Errorf("expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestParseAlgorithm_roundTrip(t *testing.T) {
	for _, a := range digest.Registry() {
		parsed, err := digest.ParseAlgorithm(a.String())
		if err != nil {
			t.Fatalf("parse %s: %v", a, err)
		}
		if parsed != a {
			t.Errorf("parse %s: got %s", a, parsed)
		}
	}

	if _, err := digest.ParseAlgorithm("md5"); !errors.Is(err, digest.ErrUnknownAlgorithm) {
		t.Errorf("parse md5: expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestParse_externalForm(t *testing.T) {
	d, _ := digest.SHA3_256.Sum([]byte("payload"))

	parsed, err := digest.Parse(d.String())
	if err != nil {
		t.Fatal(err)
	}
	if !parsed.Equal(d) {
		t.Errorf("parse round-trip: got %s, want %s", parsed, d)
	}
}

func TestParse_rejectsWrongLength(t *testing.T) {
	if _, err := digest.Parse("sha256:abcd"); err == nil {
		t.Error("expected error for truncated digest")
	}
	if _, err := digest.Parse("no-separator"); err == nil {
		t.Error("expected error for missing separator")
	}
}

func TestDigest_jsonRoundTrip(t *testing.T) {
	d, _ := digest.BLAKE2b.Sum([]byte("record"))

	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}

	var back digest.Digest
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(d) {
		t.Errorf("json round-trip: got %s, want %s", back, d)
	}
}

func TestEqual_distinguishesAlgorithm(t *testing.T) {
	a, _ := digest.SHA256.Sum([]byte("same"))
	b, _ := digest.SHA3_256.Sum([]byte("same"))
	if a.Equal(b) {
		t.Error("digests from different algorithms must not compare equal")
	}
}
