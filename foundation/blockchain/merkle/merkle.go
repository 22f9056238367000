// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.
// This code has been cleaned up, refactored, and turned into generics.

// Package merkle provides an implementation of a merkle tree for validation
// support for the blockchain.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"hash"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) bool
}

// =============================================================================

// Tree represents a merkle tree that uses data of some type T that exhibits
// the behavior defined by the Hashable constraint.
type Tree[T Hashable[T]] struct {
	MerkleRoot []byte

	values       []T
	levels       [][][]byte
	hashStrategy func() hash.Hash
}

// WithHashStrategy is used to change the default hash strategy of using
// sha256 when constructing a new tree.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a new merkle tree that uses data of some type T that
// exhibits the behavior defined by the Hashable interface. An empty set of
// values produces a tree with an all zero root.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	t := Tree[T]{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.Generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// Generate constructs the levels of the tree from the specified data. If the
// tree has been generated previously, the tree is re-generated from scratch.
func (t *Tree[T]) Generate(values []T) error {
	t.values = values
	t.levels = nil

	if len(values) == 0 {
		t.MerkleRoot = make([]byte, sha256.Size)
		return nil
	}

	leaves := make([][]byte, len(values))
	for i, value := range values {
		hash, err := value.Hash()
		if err != nil {
			return err
		}
		leaves[i] = hash
	}

	// Build the tree bottom up. A level with an odd number of nodes promotes
	// its last node to the next level unchanged, it is never paired with
	// itself.
	t.levels = append(t.levels, leaves)
	level := leaves
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}

			h := t.hashStrategy()
			if _, err := h.Write(append(append([]byte{}, level[i]...), level[i+1]...)); err != nil {
				return err
			}
			next = append(next, h.Sum(nil))
		}

		t.levels = append(t.levels, next)
		level = next
	}

	t.MerkleRoot = level[0]

	return nil
}

// Proof returns the set of sibling hashes and the order for concatenating
// those hashes that prove the specified value is in the tree. An order value
// of 0 means the proof hash is concatenated before the running hash, 1 means
// after. Fold the leaf hash through the proof with VerifyProof to check it
// against the root.
func (t *Tree[T]) Proof(data T) ([][]byte, []int64, error) {
	index := -1
	for i, value := range t.values {
		if value.Equals(data) {
			index = i
			break
		}
	}
	if index == -1 {
		return nil, nil, errors.New("unable to find data in tree")
	}

	var proof [][]byte
	var order []int64

	for _, level := range t.levels[:len(t.levels)-1] {

		// The last node of an odd level has no sibling. It is promoted to
		// the next level and contributes nothing to the proof.
		if index == len(level)-1 && index%2 == 0 {
			index /= 2
			continue
		}

		if index%2 == 0 {
			proof = append(proof, level[index+1])
			order = append(order, 1)
		} else {
			proof = append(proof, level[index-1])
			order = append(order, 0)
		}
		index /= 2
	}

	return proof, order, nil
}

// Verify recomputes the tree from the values it currently holds and checks
// the result against the recorded merkle root.
func (t *Tree[T]) Verify() error {
	nt, err := NewTree(t.values, WithHashStrategy[T](t.hashStrategy))
	if err != nil {
		return err
	}

	if !bytes.Equal(t.MerkleRoot, nt.MerkleRoot) {
		return errors.New("merkle root invalid")
	}

	return nil
}

// Values returns the values stored in the tree in leaf order.
func (t *Tree[T]) Values() []T {
	return t.values
}

// RootHex converts the merkle root byte hash to a hex encoded string.
func (t *Tree[T]) RootHex() string {
	return hexutil.Encode(t.MerkleRoot)
}

// =============================================================================

// VerifyProof folds the specified leaf hash through the proof, honoring the
// recorded concatenation order per level, and reports whether the result
// matches the claimed merkle root. A nil hashStrategy defaults to sha256.
func VerifyProof(leafHash []byte, proof [][]byte, order []int64, merkleRoot []byte, hashStrategy func() hash.Hash) (bool, error) {
	if len(proof) != len(order) {
		return false, errors.New("proof and order lengths don't match")
	}

	if hashStrategy == nil {
		hashStrategy = sha256.New
	}

	current := leafHash
	for i, sibling := range proof {
		h := hashStrategy()

		var data []byte
		switch order[i] {
		case 0:
			data = append(append(data, sibling...), current...)
		case 1:
			data = append(append(data, current...), sibling...)
		default:
			return false, errors.New("invalid order value")
		}

		if _, err := h.Write(data); err != nil {
			return false, err
		}
		current = h.Sum(nil)
	}

	return bytes.Equal(current, merkleRoot), nil
}
