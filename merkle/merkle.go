// Package merkle builds and verifies the sorted-pair Merkle commitments that
// bind an event's winners to their ranks.
//
// A leaf is keccak256(account ‖ uint256(rank)) with the account as 20 raw
// bytes and the rank as a 32-byte big-endian word. Interior nodes hash the
// smaller child first, so a proof carries no left/right flags.
package merkle

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// LeafHash returns the leaf committed for account finishing at rank.
func LeafHash(account common.Address, rank uint64) common.Hash {
	word := uint256.NewInt(rank).Bytes32()
	return crypto.Keccak256Hash(account.Bytes(), word[:])
}

// HashPair hashes two nodes in byte-lexicographic order.
func HashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

// ProcessProof folds proof into leaf and returns the resulting root.
func ProcessProof(proof []common.Hash, leaf common.Hash) common.Hash {
	node := leaf
	for _, sibling := range proof {
		node = HashPair(node, sibling)
	}
	return node
}

// Verify reports whether proof links leaf to root.
func Verify(proof []common.Hash, root, leaf common.Hash) bool {
	return ProcessProof(proof, leaf) == root
}
