// Package merkle builds binary hash trees over ordered leaf digests and
// produces compact inclusion proofs. Internal nodes own their children
// exclusively; there are no parent pointers, and proofs are generated from
// the precomputed level index rather than by tree traversal.
package merkle

import (
	"errors"
	"fmt"

	"github.com/blackroad/shainfinity/internal/digest"
)

// ErrNoLeaves is returned when building a tree over zero leaves.
var ErrNoLeaves = errors.New("merkle: no leaves")

// Position locates a proof sibling relative to the node being proven.
type Position string

// Proof sibling positions.
const (
	Left  Position = "left"
	Right Position = "right"
)

// Node is one node of the tree. Leaf nodes carry the original per-item
// digest and its index; internal nodes carry the combination of their
// children.
type Node struct {
	Digest    digest.Digest `json:"digest"`
	Left      *Node         `json:"left,omitempty"`
	Right     *Node         `json:"right,omitempty"`
	LeafIndex int           `json:"leaf_index,omitempty"` // -1 for internal nodes
}

// Tree is a built Merkle tree. It retains each level's nodes so inclusion
// proofs can be derived by index arithmetic.
type Tree struct {
	levels [][]*Node // levels[0] = leaves, last level = root
}

// Step is one element of an inclusion proof: a sibling digest and which
// side of the combination it sits on.
type Step struct {
	Sibling  digest.Digest `json:"sibling"`
	Position Position      `json:"position"`
}

// Proof is the ordered sibling path from a leaf up to the root.
type Proof []Step

// Build constructs a tree over the given ordered leaf digests.
//
// Levels are combined pairwise bottom-up with
// combine(a, b) = primary(a || b). A level with an odd node count pairs its
// last node with itself, so every leaf participates in exactly one path to
// the root. A single leaf is its own root. Zero leaves is an error.
func Build(leaves []digest.Digest) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}

	level := make([]*Node, len(leaves))
	for i, d := range leaves {
		level[i] = &Node{Digest: d, LeafIndex: i}
	}

	t := &Tree{levels: [][]*Node{level}}
	for len(level) > 1 {
		next := make([]*Node, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left // duplicate-self rule for a trailing odd node
			if i+1 < len(level) {
				right = level[i+1]
			}

			combined, err := combine(left.Digest, right.Digest)
			if err != nil {
				return nil, err
			}
			next = append(next, &Node{
				Digest:    combined,
				Left:      left,
				Right:     right,
				LeafIndex: -1,
			})
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t, nil
}

func combine(a, b digest.Digest) (digest.Digest, error) {
	buf := make([]byte, 0, len(a.Sum)+len(b.Sum))
	buf = append(buf, a.Sum...)
	buf = append(buf, b.Sum...)
	d, err := digest.Primary().Sum(buf)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("merkle: combine: %w", err)
	}
	return d, nil
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.levels[len(t.levels)-1][0] }

// RootDigest returns the root digest.
func (t *Tree) RootDigest() digest.Digest { return t.Root().Digest }

// LeafCount returns the number of leaves the tree was built over.
func (t *Tree) LeafCount() int { return len(t.levels[0]) }

// Height returns the number of combination levels above the leaves,
// ceil(log2(n)) for n leaves.
func (t *Tree) Height() int { return len(t.levels) - 1 }

// Prove returns the inclusion proof for the leaf at leafIndex.
func (t *Tree) Prove(leafIndex int) (Proof, error) {
	if leafIndex < 0 || leafIndex >= t.LeafCount() {
		return nil, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", leafIndex, t.LeafCount())
	}

	proof := make(Proof, 0, t.Height())
	idx := leafIndex
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling >= len(level) {
			sibling = idx // trailing odd node was paired with itself
		}
		pos := Right
		if sibling < idx {
			pos = Left
		}
		proof = append(proof, Step{Sibling: level[sibling].Digest, Position: pos})
		idx /= 2
	}
	return proof, nil
}

// VerifyProof folds the proof over the leaf digest and reports whether the
// result equals expectedRoot. Failure anywhere in the path surfaces as a
// final mismatch; the outcome is data, never an error.
func VerifyProof(leaf digest.Digest, proof Proof, expectedRoot digest.Digest) bool {
	current := leaf
	for _, step := range proof {
		var (
			combined digest.Digest
			err      error
		)
		if step.Position == Right {
			combined, err = combine(current, step.Sibling)
		} else {
			combined, err = combine(step.Sibling, current)
		}
		if err != nil {
			return false
		}
		current = combined
	}
	return current.Equal(expectedRoot)
}
