// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.

package merkle_test

import (
	"crypto/sha256"
	"testing"

	"github.com/minervachain/minerva/foundation/blockchain/merkle"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// Data uses the sha256 hashing algorithm for the merkle tree.
type Data struct {
	x string
}

// Hash hashes the values using sha256.
func (d Data) Hash() ([]byte, error) {
	h := sha256.New()
	if _, err := h.Write([]byte(d.x)); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// Equals tests for equality of two pieces of data.
func (d Data) Equals(other Data) bool {
	return d.x == other.x
}

// =============================================================================

func Test_Tree(t *testing.T) {
	t.Log("Given the need to prove membership with a merkle tree.")
	{
		values := []Data{{"a"}, {"b"}, {"c"}, {"d"}, {"e"}}

		t.Logf("\tTest 0:\tWhen constructing a tree over five values.")
		{
			tree, err := merkle.NewTree(values)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct the tree: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to construct the tree.", success)

			if err := tree.Verify(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould verify against its own root: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould verify against its own root.", success)

			if len(tree.Values()) != len(values) {
				t.Fatalf("\t%s\tTest 0:\tShould hold the values in leaf order.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould hold the values in leaf order.", success)
		}

		t.Logf("\tTest 1:\tWhen proving every value is in the tree.")
		{
			tree, err := merkle.NewTree(values)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to construct the tree: %v", failed, err)
			}

			for _, value := range values {
				proof, order, err := tree.Proof(value)
				if err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould be able to get a proof for %q: %v", failed, value.x, err)
				}

				leafHash, err := value.Hash()
				if err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould be able to hash the value: %v", failed, err)
				}

				ok, err := merkle.VerifyProof(leafHash, proof, order, tree.MerkleRoot, nil)
				if err != nil || !ok {
					t.Fatalf("\t%s\tTest 1:\tShould verify the proof for %q: %v", failed, value.x, err)
				}
			}
			t.Logf("\t%s\tTest 1:\tShould verify the proof for every value.", success)
		}

		t.Logf("\tTest 2:\tWhen proving a value that is not in the tree.")
		{
			tree, err := merkle.NewTree(values)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to construct the tree: %v", failed, err)
			}

			if _, _, err := tree.Proof(Data{"zz"}); err == nil {
				t.Fatalf("\t%s\tTest 2:\tShould fail to prove a missing value.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould fail to prove a missing value.", success)
		}

		t.Logf("\tTest 3:\tWhen a different value set produces a different root.")
		{
			tree1, err := merkle.NewTree(values)
			if err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould be able to construct the tree: %v", failed, err)
			}

			tree2, err := merkle.NewTree([]Data{{"a"}, {"b"}, {"c"}, {"d"}, {"x"}})
			if err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould be able to construct the tree: %v", failed, err)
			}

			if tree1.RootHex() == tree2.RootHex() {
				t.Fatalf("\t%s\tTest 3:\tShould produce different roots.", failed)
			}
			t.Logf("\t%s\tTest 3:\tShould produce different roots.", success)
		}

		t.Logf("\tTest 4:\tWhen constructing a tree over no values.")
		{
			tree, err := merkle.NewTree([]Data{})
			if err != nil {
				t.Fatalf("\t%s\tTest 4:\tShould be able to construct the tree: %v", failed, err)
			}

			if tree.RootHex() != "0x0000000000000000000000000000000000000000000000000000000000000000" {
				t.Fatalf("\t%s\tTest 4:\tShould produce an all zero root, got %s", failed, tree.RootHex())
			}
			t.Logf("\t%s\tTest 4:\tShould produce an all zero root.", success)
		}

		t.Logf("\tTest 5:\tWhen a byte of the leaf or the proof is flipped.")
		{
			tree, err := merkle.NewTree(values)
			if err != nil {
				t.Fatalf("\t%s\tTest 5:\tShould be able to construct the tree: %v", failed, err)
			}

			proof, order, err := tree.Proof(values[2])
			if err != nil {
				t.Fatalf("\t%s\tTest 5:\tShould be able to get a proof: %v", failed, err)
			}

			leafHash, err := values[2].Hash()
			if err != nil {
				t.Fatalf("\t%s\tTest 5:\tShould be able to hash the value: %v", failed, err)
			}

			tampered := make([]byte, len(leafHash))
			copy(tampered, leafHash)
			tampered[0] ^= 0x01

			ok, err := merkle.VerifyProof(tampered, proof, order, tree.MerkleRoot, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest 5:\tShould be able to run verification: %v", failed, err)
			}
			if ok {
				t.Fatalf("\t%s\tTest 5:\tShould fail verification for a flipped leaf byte.", failed)
			}
			t.Logf("\t%s\tTest 5:\tShould fail verification for a flipped leaf byte.", success)

			proof[0][0] ^= 0x01

			ok, err = merkle.VerifyProof(leafHash, proof, order, tree.MerkleRoot, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest 5:\tShould be able to run verification: %v", failed, err)
			}
			if ok {
				t.Fatalf("\t%s\tTest 5:\tShould fail verification for a flipped proof byte.", failed)
			}
			t.Logf("\t%s\tTest 5:\tShould fail verification for a flipped proof byte.", success)
		}
	}
}
