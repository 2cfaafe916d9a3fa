package chain_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/blackroad/shainfinity/internal/chain"
	"github.com/blackroad/shainfinity/internal/digest"
)

func TestHashInfinite_deterministic(t *testing.T) {
	content := []byte("change-tracking payload")

	a, err := chain.HashInfinite(content, chain.DefaultDepth)
	if err != nil {
		t.Fatal(err)
	}
	b, err := chain.HashInfinite(content, chain.DefaultDepth)
	if err != nil {
		t.Fatal(err)
	}

	if a.Depth() != b.Depth() {
		t.Fatalf("depth: got %d and %d", a.Depth(), b.Depth())
	}
	for i := range a.Layers() {
		la, _ := a.Layer(i)
		lb, _ := b.Layer(i)
		if !la.Digest.Equal(lb.Digest) {
			t.Errorf("layer %d differs between identical invocations", i)
		}
	}
}

func TestHashInfinite_threeLayerScenario(t *testing.T) {
	content := []byte("hello")

	c, err := chain.HashInfinite(content, 3)
	if err != nil {
		t.Fatal(err)
	}
	if c.Depth() != 3 {
		t.Fatalf("depth: got %d, want 3", c.Depth())
	}

	l0, _ := c.Layer(0)
	if l0.Algorithm != digest.At(0) {
		t.Errorf("layer 0 algorithm: got %s, want %s", l0.Algorithm, digest.At(0))
	}
	want0, _ := digest.At(0).Sum(content)
	if !l0.Digest.Equal(want0) {
		t.Errorf("layer 0: got %s, want %s", l0.Digest, want0)
	}

	// layer 1 = registry[1](layer0.digest || content)
	l1, _ := c.Layer(1)
	input := append(append([]byte{}, l0.Digest.Sum...), content...)
	want1, _ := digest.At(1).Sum(input)
	if !l1.Digest.Equal(want1) {
		t.Errorf("layer 1: got %s, want %s", l1.Digest, want1)
	}
}

func TestHashInfinite_rotationWraps(t *testing.T) {
	c, err := chain.HashInfinite([]byte("deep"), digest.RegistrySize+2)
	if err != nil {
		t.Fatal(err)
	}

	wrapped, _ := c.Layer(digest.RegistrySize)
	if wrapped.Algorithm != digest.At(0) {
		t.Errorf("layer %d algorithm: got %s, want %s",
			digest.RegistrySize, wrapped.Algorithm, digest.At(0))
	}
}

func TestHashInfinite_invalidInput(t *testing.T) {
	if _, err := chain.HashInfinite([]byte("x"), 0); !errors.Is(err, chain.ErrInvalidDepth) {
		t.Errorf("depth 0: expected ErrInvalidDepth, got %v", err)
	}
	if _, err := chain.HashInfinite(nil, 3); !errors.Is(err, chain.ErrEmptyInput) {
		t.Errorf("nil content: expected ErrEmptyInput, got %v", err)
	}
}

func TestFinal_isTerminalLayer(t *testing.T) {
	c, err := chain.HashInfinite([]byte("terminal"), 5)
	if err != nil {
		t.Fatal(err)
	}
	last, _ := c.Layer(4)
	if !c.Final().Equal(last.Digest) {
		t.Errorf("Final(): got %s, want %s", c.Final(), last.Digest)
	}
}

func TestVerify_detectsWrongContent(t *testing.T) {
	c, err := chain.HashInfinite([]byte("original"), chain.DefaultDepth)
	if err != nil {
		t.Fatal(err)
	}

	if err := chain.Verify(c, []byte("original")); err != nil {
		t.Errorf("Verify() on untouched content: %v", err)
	}
	if err := chain.Verify(c, []byte("tampered")); !errors.Is(err, chain.ErrMismatch) {
		t.Errorf("Verify() on tampered content: expected ErrMismatch, got %v", err)
	}
}

func TestHashInfinite_avalanche(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for sample := 0; sample < 50; sample++ {
		content := make([]byte, 64)
		rng.Read(content)

		base, err := chain.HashInfinite(content, 3)
		if err != nil {
			t.Fatal(err)
		}

		flipped := append([]byte{}, content...)
		pos := rng.Intn(len(flipped))
		flipped[pos] ^= 1 << uint(rng.Intn(8))

		mutated, err := chain.HashInfinite(flipped, 3)
		if err != nil {
			t.Fatal(err)
		}

		if base.Final().Equal(mutated.Final()) {
			t.Fatalf("sample %d: single-bit flip at %d did not change final hash", sample, pos)
		}
	}
}
