package services

import (
	"errors"
	"fmt"
)

// Ledger rejections. Each operation checks them in a fixed order and returns
// the first that applies.
var (
	ErrNotFound            = errors.New("event not found")
	ErrAlreadyExists       = errors.New("event already exists")
	ErrInvalidEventID      = errors.New("event id is required")
	ErrInvalidAsset        = errors.New("asset is the zero address")
	ErrZeroAmount          = errors.New("amount must be positive")
	ErrAlreadyFinalized    = errors.New("event already finalized")
	ErrRegistrationClosed  = errors.New("registration deadline has passed")
	ErrAlreadyRegistered   = errors.New("participant already registered")
	ErrZeroFee             = errors.New("event has no entry fee")
	ErrNotFinalized        = errors.New("event not finalized")
	ErrNotRegistered       = errors.New("participant not registered")
	ErrAlreadyClaimed      = errors.New("prize already claimed")
	ErrBadProof            = errors.New("proof does not match commitment")
	ErrInvalidRank         = errors.New("rank has no share")
	ErrZeroPayout          = errors.New("payout rounds to zero")
	ErrPoolShortage        = errors.New("pool balance below payout")
	ErrBadShares           = errors.New("share table or unit total is empty")
	ErrZeroShare           = errors.New("share table contains a zero entry")
	ErrZeroRoot            = errors.New("commitment root is zero")
	ErrPoolExceeded        = errors.New("fixed pool exceeds pool balance")
	ErrInsufficientBalance = errors.New("skim exceeds pool balance")
	ErrInvalidRecipient    = errors.New("recipient is the zero address")
	ErrUnauthorized        = errors.New("caller is not privileged")
	ErrArithmeticOverflow  = errors.New("amount overflows 256 bits")

	// ErrTransfer matches any *TransferError.
	ErrTransfer = errors.New("asset transfer failed")
)

// TransferError carries an AssetLedger failure out of the transaction that
// it rolled back.
type TransferError struct {
	Op  string // "pull" or "push"
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTransfer, e.Op, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func (e *TransferError) Is(target error) bool { return target == ErrTransfer }
