package services

import (
	"context"
	"fmt"
	"strings"

	"prize-escrow/models"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

// AssetLedger moves value between accounts and the escrow. Pull must fail
// without moving anything if it cannot move the full amount.
type AssetLedger interface {
	Pull(ctx context.Context, asset, from common.Address, amount models.Amount) error
	Push(ctx context.Context, asset, to common.Address, amount models.Amount) error
}

// Authorizer decides which callers may run privileged operations.
type Authorizer interface {
	IsPrivileged(ctx context.Context, caller common.Address) bool
}

// OperatorSet is a fixed allow-list Authorizer.
type OperatorSet map[common.Address]struct{}

func NewOperatorSet(operators ...common.Address) OperatorSet {
	set := make(OperatorSet, len(operators))
	for _, op := range operators {
		set[op] = struct{}{}
	}
	return set
}

// ParseOperatorSet builds an OperatorSet from hex addresses, skipping blanks.
func ParseOperatorSet(hexAddrs []string) (OperatorSet, error) {
	set := make(OperatorSet, len(hexAddrs))
	for _, raw := range hexAddrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("invalid operator address %q", raw)
		}
		set[common.HexToAddress(raw)] = struct{}{}
	}
	return set, nil
}

func (s OperatorSet) IsPrivileged(_ context.Context, caller common.Address) bool {
	_, ok := s[caller]
	return ok
}

// Policy holds ledger switches that are not per-event.
type Policy struct {
	// AllowFreeRegistration lets participants join events whose entry fee
	// is zero. No transfer happens for them.
	AllowFreeRegistration bool
}

type txKey struct{}

// withTx stores the open transaction so an AssetLedger backed by the same
// database can join it.
func withTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// inTx runs fn inside the transaction carried by ctx, or opens a new one.
func inTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return fn(tx)
	}
	return db.WithContext(ctx).Transaction(fn)
}
