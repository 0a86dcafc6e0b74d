package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"prize-escrow/merkle"
	"prize-escrow/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxEventIDLen = 128

// EscrowService is the per-event prize ledger. Every mutating method runs in
// one transaction holding the event row lock, so operations on one event are
// serialized and operations on different events never contend.
type EscrowService struct {
	DB     *gorm.DB
	Assets AssetLedger
	Auth   Authorizer
	Clock  clockwork.Clock
	Policy Policy
	Logger *zap.Logger

	terms *xsync.Map[string, *finalizedTerms]
}

func NewEscrowService(db *gorm.DB, assets AssetLedger, auth Authorizer, clock clockwork.Clock, policy Policy, logger *zap.Logger) *EscrowService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscrowService{
		DB:     db,
		Assets: assets,
		Auth:   auth,
		Clock:  clock,
		Policy: policy,
		Logger: logger,
		terms:  xsync.NewMap[string, *finalizedTerms](),
	}
}

// CreateEventParams describes a new event. An empty EventID is derived from Name.
type CreateEventParams struct {
	EventID              string
	Name                 string
	AssetID              common.Address
	EntryFee             models.Amount
	RegistrationDeadline int64 // unix seconds, 0 for none
}

// FinalizeParams locks an event's payout terms. A zero FixedPool means the
// pool balance at the moment of finalization.
type FinalizeParams struct {
	Shares         []uint64
	ShareUnitTotal uint64
	CommitmentRoot common.Hash
	FixedPool      models.Amount
}

func (s *EscrowService) requirePrivileged(ctx context.Context, caller common.Address) error {
	if s.Auth == nil || !s.Auth.IsPrivileged(ctx, caller) {
		return ErrUnauthorized
	}
	return nil
}

// lockEvent loads the event row FOR UPDATE.
func lockEvent(tx *gorm.DB, eventID string) (*models.EscrowEvent, error) {
	var ev models.EscrowEvent
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&ev, "event_id = ?", eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", eventID, err)
	}
	return &ev, nil
}

func saveEvent(tx *gorm.DB, ev *models.EscrowEvent) error {
	if err := tx.Omit(clause.Associations).Save(ev).Error; err != nil {
		return fmt.Errorf("save event %s: %w", ev.EventID, err)
	}
	return nil
}

func (s *EscrowService) pull(ctx context.Context, tx *gorm.DB, asset, from common.Address, amount models.Amount) error {
	if err := s.Assets.Pull(withTx(ctx, tx), asset, from, amount); err != nil {
		return &TransferError{Op: "pull", Err: err}
	}
	return nil
}

func (s *EscrowService) push(ctx context.Context, tx *gorm.DB, asset, to common.Address, amount models.Amount) error {
	if err := s.Assets.Push(withTx(ctx, tx), asset, to, amount); err != nil {
		return &TransferError{Op: "push", Err: err}
	}
	return nil
}

// logOutcome logs rejections at debug and infrastructure failures at error.
func (s *EscrowService) logOutcome(op, eventID string, caller common.Address, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("op", op), zap.String("event_id", eventID), zap.String("caller", caller.Hex()))
	switch {
	case err == nil:
		s.Logger.Info("escrow operation applied", fields...)
	case errors.Is(err, ErrTransfer):
		s.Logger.Warn("escrow transfer failed", append(fields, zap.Error(err))...)
	case isLedgerRejection(err):
		s.Logger.Debug("escrow operation rejected", append(fields, zap.Error(err))...)
	default:
		s.Logger.Error("escrow operation failed", append(fields, zap.Error(err))...)
	}
}

func isLedgerRejection(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrAlreadyExists, ErrInvalidEventID, ErrInvalidAsset, ErrZeroAmount,
		ErrAlreadyFinalized, ErrRegistrationClosed, ErrAlreadyRegistered, ErrZeroFee,
		ErrNotFinalized, ErrNotRegistered, ErrAlreadyClaimed, ErrBadProof, ErrInvalidRank,
		ErrZeroPayout, ErrPoolShortage, ErrBadShares, ErrZeroShare, ErrZeroRoot,
		ErrPoolExceeded, ErrInsufficientBalance, ErrInvalidRecipient, ErrUnauthorized,
		ErrArithmeticOverflow,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// CreateEvent opens a new event with an empty pool.
func (s *EscrowService) CreateEvent(ctx context.Context, caller common.Address, p CreateEventParams) (*models.EscrowEvent, error) {
	eventID := strings.TrimSpace(p.EventID)
	if eventID == "" {
		// derived ids are returned to the caller, so cutting them is safe
		eventID = slug.Make(p.Name)
		if len(eventID) > maxEventIDLen {
			eventID = strings.TrimRight(eventID[:maxEventIDLen], "-")
		}
	}

	var created models.EscrowEvent
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requirePrivileged(ctx, caller); err != nil {
			return err
		}
		if eventID == "" || len(eventID) > maxEventIDLen {
			return ErrInvalidEventID
		}

		var existing int64
		if err := tx.Model(&models.EscrowEvent{}).Where("event_id = ?", eventID).Count(&existing).Error; err != nil {
			return fmt.Errorf("check event %s: %w", eventID, err)
		}
		if existing > 0 {
			return ErrAlreadyExists
		}
		if p.AssetID == (common.Address{}) {
			return ErrInvalidAsset
		}

		created = models.EscrowEvent{
			EventID:              eventID,
			Name:                 p.Name,
			AssetID:              p.AssetID.Hex(),
			EntryFee:             p.EntryFee,
			RegistrationDeadline: p.RegistrationDeadline,
			CreatedBy:            caller.Hex(),
			CommitmentRoot:       common.Hash{}.Hex(),
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&created)
		if res.Error != nil {
			return fmt.Errorf("create event %s: %w", eventID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyExists
		}

		return recordNotification(tx, notification{
			Kind:    models.NotificationEventCreated,
			EventID: eventID,
			Actor:   caller,
			Amount:  p.EntryFee,
			Detail: map[string]interface{}{
				"asset_id":              created.AssetID,
				"registration_deadline": p.RegistrationDeadline,
			},
		})
	})
	s.logOutcome("create", eventID, caller, err)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Sponsor adds amount from the caller to the event pool. Allowed before and
// after finalization.
func (s *EscrowService) Sponsor(ctx context.Context, caller common.Address, eventID string, amount models.Amount) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requirePrivileged(ctx, caller); err != nil {
			return err
		}
		if amount.IsZero() {
			return ErrZeroAmount
		}
		ev, err := lockEvent(tx, eventID)
		if err != nil {
			return err
		}

		pool, overflow := ev.PoolBalance.Add(amount)
		if overflow {
			return ErrArithmeticOverflow
		}
		sponsored, overflow := ev.TotalSponsored.Add(amount)
		if overflow {
			return ErrArithmeticOverflow
		}
		ev.PoolBalance = pool
		ev.TotalSponsored = sponsored
		if err := saveEvent(tx, ev); err != nil {
			return err
		}
		if err := recordNotification(tx, notification{
			Kind:    models.NotificationSponsored,
			EventID: eventID,
			Actor:   caller,
			Amount:  amount,
		}); err != nil {
			return err
		}
		return s.pull(ctx, tx, common.HexToAddress(ev.AssetID), caller, amount)
	})
	s.logOutcome("sponsor", eventID, caller, err, zap.Stringer("amount", amount))
	return err
}

// Register pays the entry fee and adds the caller to the event.
func (s *EscrowService) Register(ctx context.Context, caller common.Address, eventID string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ev, err := lockEvent(tx, eventID)
		if err != nil {
			return err
		}
		if ev.Finalized {
			return ErrAlreadyFinalized
		}
		if ev.RegistrationDeadline != 0 && s.Clock.Now().Unix() > ev.RegistrationDeadline {
			return ErrRegistrationClosed
		}

		var registered int64
		if err := tx.Model(&models.Registration{}).
			Where("event_id = ? AND participant = ?", eventID, caller.Hex()).
			Count(&registered).Error; err != nil {
			return fmt.Errorf("check registration: %w", err)
		}
		if registered > 0 {
			return ErrAlreadyRegistered
		}

		free := ev.EntryFee.IsZero()
		if free && !s.Policy.AllowFreeRegistration {
			return ErrZeroFee
		}

		pool, overflow := ev.PoolBalance.Add(ev.EntryFee)
		if overflow {
			return ErrArithmeticOverflow
		}
		fees, overflow := ev.TotalFees.Add(ev.EntryFee)
		if overflow {
			return ErrArithmeticOverflow
		}

		if err := tx.Create(&models.Registration{
			EventID:     eventID,
			Participant: caller.Hex(),
			FeePaid:     ev.EntryFee,
		}).Error; err != nil {
			return fmt.Errorf("insert registration: %w", err)
		}
		ev.PoolBalance = pool
		ev.TotalFees = fees
		ev.RegisteredCount++
		if err := saveEvent(tx, ev); err != nil {
			return err
		}
		if err := recordNotification(tx, notification{
			Kind:    models.NotificationRegistered,
			EventID: eventID,
			Actor:   caller,
			Amount:  ev.EntryFee,
		}); err != nil {
			return err
		}
		if free {
			return nil
		}
		return s.pull(ctx, tx, common.HexToAddress(ev.AssetID), caller, ev.EntryFee)
	})
	s.logOutcome("register", eventID, caller, err)
	return err
}

// Finalize locks the share table, commitment root and payout base. It is the
// only irreversible transition an event has.
func (s *EscrowService) Finalize(ctx context.Context, caller common.Address, eventID string, p FinalizeParams) (*models.EscrowEvent, error) {
	var finalized *models.EscrowEvent
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requirePrivileged(ctx, caller); err != nil {
			return err
		}
		ev, err := lockEvent(tx, eventID)
		if err != nil {
			return err
		}
		if ev.Finalized {
			return ErrAlreadyFinalized
		}
		if p.CommitmentRoot == (common.Hash{}) {
			return ErrZeroRoot
		}
		if len(p.Shares) == 0 || p.ShareUnitTotal == 0 {
			return ErrBadShares
		}
		for _, share := range p.Shares {
			if share == 0 {
				return ErrZeroShare
			}
		}
		base := p.FixedPool
		if base.IsZero() {
			base = ev.PoolBalance
		}
		if base.Gt(ev.PoolBalance) {
			return ErrPoolExceeded
		}

		rows := make([]models.RankShare, len(p.Shares))
		for i, share := range p.Shares {
			rows[i] = models.RankShare{EventID: eventID, Rank: uint64(i + 1), Share: share}
		}
		if err := tx.CreateInBatches(&rows, 500).Error; err != nil {
			return fmt.Errorf("insert rank shares: %w", err)
		}

		now := s.Clock.Now()
		ev.FixedPool = base
		ev.CommitmentRoot = p.CommitmentRoot.Hex()
		ev.ShareUnitTotal = p.ShareUnitTotal
		ev.Finalized = true
		ev.FinalizedAt = &now
		if err := saveEvent(tx, ev); err != nil {
			return err
		}
		finalized = ev

		return recordNotification(tx, notification{
			Kind:    models.NotificationFinalized,
			EventID: eventID,
			Actor:   caller,
			Amount:  base,
			Detail: map[string]interface{}{
				"commitment_root":  ev.CommitmentRoot,
				"share_unit_total": p.ShareUnitTotal,
				"ranks":            len(p.Shares),
			},
		})
	})
	s.logOutcome("finalize", eventID, caller, err)
	if err != nil {
		return nil, err
	}

	s.terms.Store(eventID, &finalizedTerms{
		Root:           p.CommitmentRoot,
		Shares:         append([]uint64(nil), p.Shares...),
		ShareUnitTotal: p.ShareUnitTotal,
		FixedPool:      finalized.FixedPool,
	})
	return finalized, nil
}

// Claim pays the caller's prize for rank once the proof checks out against
// the committed root. A participant can claim at most once per event.
func (s *EscrowService) Claim(ctx context.Context, caller common.Address, eventID string, rank uint64, proof []common.Hash) (models.Amount, error) {
	var paid models.Amount
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ev, err := lockEvent(tx, eventID)
		if err != nil {
			return err
		}
		if !ev.Finalized {
			return ErrNotFinalized
		}
		participant := caller.Hex()

		var registered int64
		if err := tx.Model(&models.Registration{}).
			Where("event_id = ? AND participant = ?", eventID, participant).
			Count(&registered).Error; err != nil {
			return fmt.Errorf("check registration: %w", err)
		}
		if registered == 0 {
			return ErrNotRegistered
		}

		// exactly-once rests on this check alone; it runs before the proof
		var claimed int64
		if err := tx.Model(&models.Claim{}).
			Where("event_id = ? AND participant = ?", eventID, participant).
			Count(&claimed).Error; err != nil {
			return fmt.Errorf("check claim: %w", err)
		}
		if claimed > 0 {
			return ErrAlreadyClaimed
		}

		if !merkle.Verify(proof, common.HexToHash(ev.CommitmentRoot), merkle.LeafHash(caller, rank)) {
			return ErrBadProof
		}

		var share models.RankShare
		err = tx.Where(map[string]interface{}{"event_id": eventID, "rank": rank}).First(&share).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidRank
		}
		if err != nil {
			return fmt.Errorf("load share for rank %d: %w", rank, err)
		}

		amount, err := payoutFor(ev.FixedPool, share.Share, ev.ShareUnitTotal)
		if err != nil {
			return err
		}
		if amount.IsZero() {
			return ErrZeroPayout
		}
		pool, short := ev.PoolBalance.Sub(amount)
		if short {
			return ErrPoolShortage
		}
		total, overflow := ev.TotalClaimed.Add(amount)
		if overflow {
			return ErrArithmeticOverflow
		}

		if err := tx.Create(&models.Claim{
			EventID:     eventID,
			Participant: participant,
			Rank:        rank,
			Amount:      amount,
		}).Error; err != nil {
			return fmt.Errorf("insert claim: %w", err)
		}
		ev.PoolBalance = pool
		ev.TotalClaimed = total
		ev.ClaimedCount++
		if err := saveEvent(tx, ev); err != nil {
			return err
		}
		if err := recordNotification(tx, notification{
			Kind:    models.NotificationClaimed,
			EventID: eventID,
			Actor:   caller,
			Rank:    rank,
			Amount:  amount,
		}); err != nil {
			return err
		}
		if err := s.push(ctx, tx, common.HexToAddress(ev.AssetID), caller, amount); err != nil {
			return err
		}
		paid = amount
		return nil
	})
	s.logOutcome("claim", eventID, caller, err, zap.Uint64("rank", rank))
	if err != nil {
		return models.Amount{}, err
	}
	return paid, nil
}

// Skim sends amount from the pool to to. It works in any state: before
// finalization it serves refunds, after it collects rounding dust.
func (s *EscrowService) Skim(ctx context.Context, caller common.Address, eventID string, to common.Address, amount models.Amount) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requirePrivileged(ctx, caller); err != nil {
			return err
		}
		if to == (common.Address{}) {
			return ErrInvalidRecipient
		}
		if amount.IsZero() {
			return ErrZeroAmount
		}
		ev, err := lockEvent(tx, eventID)
		if err != nil {
			return err
		}
		pool, short := ev.PoolBalance.Sub(amount)
		if short {
			return ErrInsufficientBalance
		}
		skimmed, overflow := ev.TotalSkimmed.Add(amount)
		if overflow {
			return ErrArithmeticOverflow
		}

		ev.PoolBalance = pool
		ev.TotalSkimmed = skimmed
		if err := saveEvent(tx, ev); err != nil {
			return err
		}
		if err := recordNotification(tx, notification{
			Kind:         models.NotificationSkimmed,
			EventID:      eventID,
			Actor:        caller,
			Counterparty: to,
			Amount:       amount,
		}); err != nil {
			return err
		}
		return s.push(ctx, tx, common.HexToAddress(ev.AssetID), to, amount)
	})
	s.logOutcome("skim", eventID, caller, err, zap.String("to", to.Hex()), zap.Stringer("amount", amount))
	return err
}
