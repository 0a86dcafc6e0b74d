package merkle

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func winners(n int) []Winner {
	out := make([]Winner, n)
	for i := range out {
		out[i] = Winner{
			Account: common.HexToAddress(fmt.Sprintf("0x%040x", i+1)),
			Rank:    uint64(i + 1),
		}
	}
	return out
}

func TestLeafHashLayout(t *testing.T) {
	account := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	packed := make([]byte, 0, 52)
	packed = append(packed, account.Bytes()...)
	word := make([]byte, 32)
	binary.BigEndian.PutUint64(word[24:], 3)
	packed = append(packed, word...)

	assert.Equal(t, crypto.Keccak256Hash(packed), LeafHash(account, 3))
	assert.NotEqual(t, LeafHash(account, 3), LeafHash(account, 4))
}

func TestHashPairIsOrderFree(t *testing.T) {
	a := crypto.Keccak256Hash([]byte("a"))
	b := crypto.Keccak256Hash([]byte("b"))

	assert.Equal(t, HashPair(a, b), HashPair(b, a))
}

func TestBuildSingleLeaf(t *testing.T) {
	w := Winner{Account: common.HexToAddress("0x1"), Rank: 1}

	tree, err := Build([]Winner{w})
	require.NoError(t, err)

	assert.Equal(t, w.Leaf(), tree.Root())
	proof, err := tree.ProofFor(w)
	require.NoError(t, err)
	assert.Empty(t, proof)
	assert.True(t, Verify(proof, tree.Root(), w.Leaf()))
}

func TestBuildPromotesOddNode(t *testing.T) {
	ws := winners(3)
	tree, err := Build(ws)
	require.NoError(t, err)

	l := tree.Leaves()
	require.Len(t, l, 3)
	assert.Equal(t, HashPair(HashPair(l[0], l[1]), l[2]), tree.Root())

	// the promoted leaf has a single sibling: the pair above its neighbours
	proof, err := tree.Proof(l[2])
	require.NoError(t, err)
	assert.Equal(t, []common.Hash{HashPair(l[0], l[1])}, proof)
}

func TestEveryProofVerifies(t *testing.T) {
	for n := 1; n <= 33; n++ {
		ws := winners(n)
		tree, err := Build(ws)
		require.NoError(t, err)

		for _, w := range ws {
			proof, err := tree.ProofFor(w)
			require.NoError(t, err)
			assert.True(t, Verify(proof, tree.Root(), w.Leaf()), "n=%d rank=%d", n, w.Rank)
		}
	}
}

func TestRootIgnoresInputOrder(t *testing.T) {
	ws := winners(20)
	tree, err := Build(ws)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]Winner(nil), ws...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		other, err := Build(shuffled)
		require.NoError(t, err)
		assert.Equal(t, tree.Root(), other.Root())
	}
}

func TestTamperedProofFails(t *testing.T) {
	ws := winners(8)
	tree, err := Build(ws)
	require.NoError(t, err)

	w := ws[3]
	proof, err := tree.ProofFor(w)
	require.NoError(t, err)
	require.NotEmpty(t, proof)

	for i := range proof {
		for bit := 0; bit < 256; bit += 37 {
			bad := append([]common.Hash(nil), proof...)
			bad[i][bit/8] ^= 1 << (bit % 8)
			assert.False(t, Verify(bad, tree.Root(), w.Leaf()))
		}
	}

	assert.False(t, Verify(proof, tree.Root(), LeafHash(w.Account, w.Rank+1)))
	assert.False(t, Verify(proof, tree.Root(), LeafHash(ws[4].Account, w.Rank)))
	assert.False(t, Verify(proof[:len(proof)-1], tree.Root(), w.Leaf()))
}

func TestBuildRejectsBadInput(t *testing.T) {
	_, err := Build(nil)
	assert.ErrorIs(t, err, ErrNoWinners)

	_, err = Build([]Winner{{Account: common.HexToAddress("0x1"), Rank: 0}})
	assert.ErrorIs(t, err, ErrZeroRank)

	w := Winner{Account: common.HexToAddress("0x1"), Rank: 1}
	_, err = Build([]Winner{w, w})
	assert.ErrorIs(t, err, ErrDuplicateLeaf)
}

func TestProofUnknownLeaf(t *testing.T) {
	tree, err := Build(winners(4))
	require.NoError(t, err)

	_, err = tree.Proof(LeafHash(common.HexToAddress("0xdead"), 1))
	assert.ErrorIs(t, err, ErrUnknownLeaf)
}
