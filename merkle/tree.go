package merkle

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNoWinners     = errors.New("merkle: no winners")
	ErrZeroRank      = errors.New("merkle: rank must be at least 1")
	ErrDuplicateLeaf = errors.New("merkle: duplicate leaf")
	ErrUnknownLeaf   = errors.New("merkle: leaf not in tree")
)

// Winner is one (account, rank) pair to commit to.
type Winner struct {
	Account common.Address `json:"account"`
	Rank    uint64         `json:"rank"`
}

// Leaf returns the winner's leaf hash.
func (w Winner) Leaf() common.Hash {
	return LeafHash(w.Account, w.Rank)
}

// Tree is an immutable sorted-pair Merkle tree. levels[0] holds the sorted
// leaves and the last level holds the root alone.
type Tree struct {
	levels [][]common.Hash
	index  map[common.Hash]int
}

// Build hashes winners into leaves and builds the tree. The result does not
// depend on the order of winners.
func Build(winners []Winner) (*Tree, error) {
	if len(winners) == 0 {
		return nil, ErrNoWinners
	}

	leaves := make([]common.Hash, 0, len(winners))
	for _, w := range winners {
		if w.Rank == 0 {
			return nil, fmt.Errorf("%w: account %s", ErrZeroRank, w.Account.Hex())
		}
		leaves = append(leaves, w.Leaf())
	}
	sort.Slice(leaves, func(i, j int) bool {
		return bytes.Compare(leaves[i][:], leaves[j][:]) < 0
	})

	index := make(map[common.Hash]int, len(leaves))
	for i, l := range leaves {
		if _, dup := index[l]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLeaf, l.Hex())
		}
		index[l] = i
	}

	levels := [][]common.Hash{leaves}
	for level := leaves; len(level) > 1; {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			next = append(next, HashPair(level[i], level[i+1]))
		}
		if len(level)%2 == 1 {
			// odd node moves up unchanged
			next = append(next, level[len(level)-1])
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels, index: index}, nil
}

// Root returns the commitment root.
func (t *Tree) Root() common.Hash {
	return t.levels[len(t.levels)-1][0]
}

// Leaves returns the sorted leaves.
func (t *Tree) Leaves() []common.Hash {
	out := make([]common.Hash, len(t.levels[0]))
	copy(out, t.levels[0])
	return out
}

// Len is the number of leaves.
func (t *Tree) Len() int { return len(t.levels[0]) }

// Proof returns the sibling path from leaf to the root, bottom-up. Levels
// where the node was promoted without a sibling contribute nothing.
func (t *Tree) Proof(leaf common.Hash) ([]common.Hash, error) {
	pos, ok := t.index[leaf]
	if !ok {
		return nil, ErrUnknownLeaf
	}

	proof := make([]common.Hash, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := pos ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		pos /= 2
	}
	return proof, nil
}

// ProofFor is Proof for a winner.
func (t *Tree) ProofFor(w Winner) ([]common.Hash, error) {
	return t.Proof(w.Leaf())
}
