package services

import (
	"context"
	"errors"
	"fmt"

	"prize-escrow/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInsufficientFunds = errors.New("custody: insufficient funds")

// CustodyService keeps per-asset balances for every holder, including the
// escrow itself, and is the AssetLedger the service runs with. Called from an
// EscrowService operation it joins that operation's transaction.
type CustodyService struct {
	DB      *gorm.DB
	Custody common.Address
	Logger  *zap.Logger
}

func NewCustodyService(db *gorm.DB, custody common.Address, logger *zap.Logger) *CustodyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CustodyService{DB: db, Custody: custody, Logger: logger}
}

// Pull moves amount from from into escrow custody.
func (s *CustodyService) Pull(ctx context.Context, asset, from common.Address, amount models.Amount) error {
	return inTx(ctx, s.DB, func(tx *gorm.DB) error {
		return s.move(tx, asset, from, s.Custody, amount, models.TransferPull)
	})
}

// Push moves amount out of escrow custody to to.
func (s *CustodyService) Push(ctx context.Context, asset, to common.Address, amount models.Amount) error {
	return inTx(ctx, s.DB, func(tx *gorm.DB) error {
		return s.move(tx, asset, s.Custody, to, amount, models.TransferPush)
	})
}

// CreditDeposit applies an externally confirmed deposit once. It reports
// false when the deposit id was already applied.
func (s *CustodyService) CreditDeposit(ctx context.Context, dep models.CustodyDeposit) (bool, error) {
	if dep.Amount.IsZero() {
		return false, ErrZeroAmount
	}
	applied := false
	err := inTx(ctx, s.DB, func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&dep)
		if res.Error != nil {
			return fmt.Errorf("record deposit %s: %w", dep.DepositID, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := s.adjust(tx, dep.Asset, dep.Holder, dep.Amount, false); err != nil {
			return err
		}
		applied = true
		return s.journal(tx, dep.Asset, "", dep.Holder, dep.Amount, models.TransferDeposit)
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// BalanceOf returns holder's balance of asset, zero when it has none.
func (s *CustodyService) BalanceOf(ctx context.Context, asset, holder common.Address) (models.Amount, error) {
	var bal models.CustodyBalance
	err := s.DB.WithContext(ctx).First(&bal, "asset = ? AND holder = ?", asset.Hex(), holder.Hex()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Amount{}, nil
	}
	if err != nil {
		return models.Amount{}, fmt.Errorf("load balance: %w", err)
	}
	return bal.Balance, nil
}

func (s *CustodyService) move(tx *gorm.DB, asset, from, to common.Address, amount models.Amount, dir models.TransferDirection) error {
	if amount.IsZero() {
		return nil
	}
	if err := s.adjust(tx, asset.Hex(), from.Hex(), amount, true); err != nil {
		return err
	}
	if err := s.adjust(tx, asset.Hex(), to.Hex(), amount, false); err != nil {
		return err
	}
	if err := s.journal(tx, asset.Hex(), from.Hex(), to.Hex(), amount, dir); err != nil {
		return err
	}
	s.Logger.Debug("custody transfer",
		zap.String("direction", string(dir)),
		zap.String("asset", asset.Hex()),
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.Stringer("amount", amount),
	)
	return nil
}

// adjust locks the balance row, creating it at zero if needed, and applies
// amount as a debit or credit.
func (s *CustodyService) adjust(tx *gorm.DB, asset, holder string, amount models.Amount, debit bool) error {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CustodyBalance{Asset: asset, Holder: holder}).Error; err != nil {
		return fmt.Errorf("open balance %s/%s: %w", asset, holder, err)
	}

	var bal models.CustodyBalance
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&bal, "asset = ? AND holder = ?", asset, holder).Error; err != nil {
		return fmt.Errorf("lock balance %s/%s: %w", asset, holder, err)
	}

	var (
		next models.Amount
		bad  bool
	)
	if debit {
		next, bad = bal.Balance.Sub(amount)
		if bad {
			return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientFunds, holder, bal.Balance, amount)
		}
	} else {
		next, bad = bal.Balance.Add(amount)
		if bad {
			return ErrArithmeticOverflow
		}
	}

	if err := tx.Model(&models.CustodyBalance{}).
		Where("asset = ? AND holder = ?", asset, holder).
		Update("balance", next).Error; err != nil {
		return fmt.Errorf("update balance %s/%s: %w", asset, holder, err)
	}
	return nil
}

func (s *CustodyService) journal(tx *gorm.DB, asset, from, to string, amount models.Amount, dir models.TransferDirection) error {
	entry := models.CustodyTransfer{
		ID:        uuid.NewString(),
		Asset:     asset,
		From:      from,
		To:        to,
		Amount:    amount,
		Direction: dir,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("journal %s transfer: %w", dir, err)
	}
	return nil
}
