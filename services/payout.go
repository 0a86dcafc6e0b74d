package services

import (
	"prize-escrow/models"

	"github.com/ethereum/go-ethereum/common"
)

// finalizedTerms is the locked payout side of an event. It never changes once
// written, so it is safe to share between goroutines.
type finalizedTerms struct {
	Root           common.Hash
	Shares         []uint64 // Shares[i] belongs to rank i+1
	ShareUnitTotal uint64
	FixedPool      models.Amount
}

// shareOf returns the share for rank, or 0 when the rank has none.
func (t *finalizedTerms) shareOf(rank uint64) uint64 {
	if rank == 0 || rank > uint64(len(t.Shares)) {
		return 0
	}
	return t.Shares[rank-1]
}

// payoutFor computes floor(base * share / unitTotal). A zero unit total pays
// nothing.
func payoutFor(base models.Amount, share, unitTotal uint64) (models.Amount, error) {
	if unitTotal == 0 || share == 0 {
		return models.Amount{}, nil
	}
	amount, overflow := base.MulDiv(share, unitTotal)
	if overflow {
		return models.Amount{}, ErrArithmeticOverflow
	}
	return amount, nil
}
