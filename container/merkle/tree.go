// Package merkle builds the binary Merkle tree bound into batch proofs. The
// tree hashes field elements with the protocol's arity-2 algebraic hash and
// zero-pads leaves to the next power of two, so a leaf list rebuilds to the
// same root on every platform.
package merkle

import (
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/crypto/algebra"
	"github.com/joinQuantish/SolanaPrivacyHackathon2026-sub000/crypto/field"
	"github.com/pkg/errors"
)

// Tree is a fixed binary Merkle tree over field elements.
type Tree struct {
	layers [][]field.Element
	count  int // number of real (unpadded) leaves
}

// Proof is a Merkle path for one leaf. Siblings are ordered leaf to root;
// Indices[i] is 0 when the path node at level i is a left child.
type Proof struct {
	Siblings []field.Element
	Indices  []int
}

// NewTree builds a tree over the given leaves in order. An empty leaf list
// yields a tree whose root is zero.
func NewTree(leaves []field.Element) *Tree {
	if len(leaves) == 0 {
		return &Tree{}
	}
	width := nextPowerOfTwo(len(leaves))
	base := make([]field.Element, width)
	copy(base, leaves)

	layers := [][]field.Element{base}
	for len(layers[len(layers)-1]) > 1 {
		prev := layers[len(layers)-1]
		next := make([]field.Element, len(prev)/2)
		for i := range next {
			next[i] = algebra.Hash2(prev[2*i], prev[2*i+1])
		}
		layers = append(layers, next)
	}
	return &Tree{layers: layers, count: len(leaves)}
}

// Root returns the tree root. Empty trees root to zero.
func (t *Tree) Root() field.Element {
	var zero field.Element
	if len(t.layers) == 0 {
		return zero
	}
	return t.layers[len(t.layers)-1][0]
}

// NumLeaves returns the number of real leaves the tree was built over.
func (t *Tree) NumLeaves() int {
	return t.count
}

// ProofForLeaf extracts the Merkle path for the leaf at index.
func (t *Tree) ProofForLeaf(index int) (*Proof, error) {
	if index < 0 || index >= t.count {
		return nil, errors.Errorf("leaf index %d out of range, tree has %d leaves", index, t.count)
	}
	depth := len(t.layers) - 1
	p := &Proof{
		Siblings: make([]field.Element, depth),
		Indices:  make([]int, depth),
	}
	pos := index
	for lvl := 0; lvl < depth; lvl++ {
		p.Siblings[lvl] = t.layers[lvl][pos^1]
		p.Indices[lvl] = pos & 1
		pos >>= 1
	}
	return p, nil
}

// VerifyProof recomputes the root from a leaf and its path.
func VerifyProof(root, leaf field.Element, proof *Proof) bool {
	if proof == nil || len(proof.Siblings) != len(proof.Indices) {
		return false
	}
	node := leaf
	for i, sib := range proof.Siblings {
		if proof.Indices[i] == 0 {
			node = algebra.Hash2(node, sib)
		} else {
			node = algebra.Hash2(sib, node)
		}
	}
	return node.Equal(&root)
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
