// Package chain implements layered hash chains: an ordered sequence of
// digests over one input, each layer computed with the next registry
// algorithm and bound to both the previous layer and the original content.
// Rotating algorithm families means a weakness in one family does not forge
// the whole chain; re-binding the content at every layer prevents splicing a
// valid sub-chain onto unrelated content.
package chain

import (
	"errors"
	"fmt"

	"github.com/blackroad/shainfinity/internal/digest"
)

// DefaultDepth is the number of layers used when the caller does not ask
// for a specific depth. Seven covers one full pass of the registry.
const DefaultDepth = 7

// ErrEmptyInput is returned when the content to chain is empty.
var ErrEmptyInput = errors.New("chain: empty content")

// ErrInvalidDepth is returned for a requested depth below 1.
var ErrInvalidDepth = errors.New("chain: depth must be >= 1")

// ErrMismatch is returned by Verify when a recomputed layer disagrees with
// the recorded one.
var ErrMismatch = errors.New("chain: layer mismatch")

// Layer is one hashing pass in a chain.
type Layer struct {
	Index     int              `json:"index"`
	Algorithm digest.Algorithm `json:"algorithm"`
	Digest    digest.Digest    `json:"digest"`
}

// Chain is an ordered, non-empty sequence of layers over one input.
// Chains are values: once built they are never mutated.
type Chain struct {
	layers []Layer
}

// HashInfinite builds a depth-layer chain over content.
//
// Layer 0 is registry[0](content); layer i is
// registry[i mod N](prevDigest || content). The same content and depth
// always produce the identical chain.
func HashInfinite(content []byte, depth int) (*Chain, error) {
	if depth < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDepth, depth)
	}
	if len(content) == 0 {
		return nil, ErrEmptyInput
	}

	layers := make([]Layer, 0, depth)
	var prev digest.Digest
	for i := 0; i < depth; i++ {
		alg := digest.At(i)
		d, err := alg.Sum(layerInput(prev, content))
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		layers = append(layers, Layer{Index: i, Algorithm: alg, Digest: d})
		prev = d
	}
	return &Chain{layers: layers}, nil
}

// layerInput is prevDigest || content for inner layers, or just content for
// layer 0 (zero prev digest).
func layerInput(prev digest.Digest, content []byte) []byte {
	if prev.IsZero() {
		return content
	}
	buf := make([]byte, 0, len(prev.Sum)+len(content))
	buf = append(buf, prev.Sum...)
	buf = append(buf, content...)
	return buf
}

// Depth returns the number of layers.
func (c *Chain) Depth() int { return len(c.layers) }

// Layers returns a copy of the ordered layers.
func (c *Chain) Layers() []Layer {
	out := make([]Layer, len(c.layers))
	copy(out, c.layers)
	return out
}

// Layer returns the layer at index i.
func (c *Chain) Layer(i int) (Layer, error) {
	if i < 0 || i >= len(c.layers) {
		return Layer{}, fmt.Errorf("chain: layer index %d out of range", i)
	}
	return c.layers[i], nil
}

// Final returns the terminal layer's digest, the chain's logical value.
func (c *Chain) Final() digest.Digest {
	return c.layers[len(c.layers)-1].Digest
}

// Verify recomputes every layer of the chain from content and reports the
// first disagreement. A nil error means the chain is intact for content.
func Verify(c *Chain, content []byte) error {
	rebuilt, err := HashInfinite(content, c.Depth())
	if err != nil {
		return err
	}
	for i, layer := range c.layers {
		if !layer.Digest.Equal(rebuilt.layers[i].Digest) {
			return fmt.Errorf("%w at layer %d", ErrMismatch, i)
		}
		if layer.Algorithm != digest.At(i) {
			return fmt.Errorf("%w: layer %d carries algorithm %s, want %s",
				ErrMismatch, i, layer.Algorithm, digest.At(i))
		}
	}
	return nil
}
