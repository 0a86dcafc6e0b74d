package services

import (
	"context"
	"errors"
	"fmt"

	"prize-escrow/models"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

// GetEventInfo returns the event record without its share table.
func (s *EscrowService) GetEventInfo(ctx context.Context, eventID string) (*models.EscrowEvent, error) {
	var ev models.EscrowEvent
	err := s.DB.WithContext(ctx).First(&ev, "event_id = ?", eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", eventID, err)
	}
	return &ev, nil
}

// QuotePayout returns the share and amount rank would receive. Unknown
// events, unknown ranks and unfinalized events quote (0, 0).
func (s *EscrowService) QuotePayout(ctx context.Context, eventID string, rank uint64) (uint64, models.Amount, error) {
	terms, err := s.loadTerms(ctx, eventID)
	if err != nil {
		return 0, models.Amount{}, err
	}
	if terms == nil || terms.ShareUnitTotal == 0 {
		return 0, models.Amount{}, nil
	}
	share := terms.shareOf(rank)
	if share == 0 {
		return 0, models.Amount{}, nil
	}
	amount, err := payoutFor(terms.FixedPool, share, terms.ShareUnitTotal)
	if err != nil {
		return 0, models.Amount{}, err
	}
	return share, amount, nil
}

// GetStatus reports whether participant is registered for and has claimed
// from the event.
func (s *EscrowService) GetStatus(ctx context.Context, eventID string, participant common.Address) (registered, claimed bool, err error) {
	db := s.DB.WithContext(ctx)

	var n int64
	if err := db.Model(&models.Registration{}).
		Where("event_id = ? AND participant = ?", eventID, participant.Hex()).
		Count(&n).Error; err != nil {
		return false, false, fmt.Errorf("check registration: %w", err)
	}
	registered = n > 0

	if err := db.Model(&models.Claim{}).
		Where("event_id = ? AND participant = ?", eventID, participant.Hex()).
		Count(&n).Error; err != nil {
		return false, false, fmt.Errorf("check claim: %w", err)
	}
	claimed = n > 0

	return registered, claimed, nil
}

// ListRankShares returns the finalized share table ordered by rank.
func (s *EscrowService) ListRankShares(ctx context.Context, eventID string) ([]models.RankShare, error) {
	if _, err := s.GetEventInfo(ctx, eventID); err != nil {
		return nil, err
	}
	var shares []models.RankShare
	if err := s.DB.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("rank ASC").
		Find(&shares).Error; err != nil {
		return nil, fmt.Errorf("list rank shares: %w", err)
	}
	return shares, nil
}

// AuditReport compares the pool with the flows recorded against it.
type AuditReport struct {
	EventID        string        `json:"event_id"`
	PoolBalance    models.Amount `json:"pool_balance"`
	ExpectedPool   models.Amount `json:"expected_pool"`
	TotalSponsored models.Amount `json:"total_sponsored"`
	TotalFees      models.Amount `json:"total_fees"`
	TotalClaimed   models.Amount `json:"total_claimed"`
	TotalSkimmed   models.Amount `json:"total_skimmed"`
	FixedPool      models.Amount `json:"fixed_pool"`
	ClaimsRecorded models.Amount `json:"claims_recorded"`
	Conserved      bool          `json:"conserved"`
	WithinBase     bool          `json:"within_base"`
}

// Audit checks pool == sponsored + fees - claimed - skimmed, that the claim
// rows add up to the claimed counter, and that claims never exceed the
// locked base.
func (s *EscrowService) Audit(ctx context.Context, eventID string) (*AuditReport, error) {
	ev, err := s.GetEventInfo(ctx, eventID)
	if err != nil {
		return nil, err
	}

	var claims []models.Claim
	if err := s.DB.WithContext(ctx).Where("event_id = ?", eventID).Find(&claims).Error; err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	var (
		recorded         models.Amount
		recordedOverflow bool
	)
	for _, c := range claims {
		sum, overflow := recorded.Add(c.Amount)
		if overflow {
			recordedOverflow = true
			break
		}
		recorded = sum
	}

	report := &AuditReport{
		EventID:        eventID,
		PoolBalance:    ev.PoolBalance,
		TotalSponsored: ev.TotalSponsored,
		TotalFees:      ev.TotalFees,
		TotalClaimed:   ev.TotalClaimed,
		TotalSkimmed:   ev.TotalSkimmed,
		FixedPool:      ev.FixedPool,
		ClaimsRecorded: recorded,
	}

	inflow, overflow := ev.TotalSponsored.Add(ev.TotalFees)
	expected, under1 := inflow.Sub(ev.TotalClaimed)
	expected, under2 := expected.Sub(ev.TotalSkimmed)
	report.ExpectedPool = expected
	report.Conserved = !overflow && !under1 && !under2 && !recordedOverflow &&
		expected.Cmp(ev.PoolBalance) == 0 &&
		recorded.Cmp(ev.TotalClaimed) == 0
	report.WithinBase = !ev.Finalized || !ev.TotalClaimed.Gt(ev.FixedPool)

	return report, nil
}

// ListNotifications pages through an event's outbox in sequence order.
func (s *EscrowService) ListNotifications(ctx context.Context, eventID string, afterSeq uint64, limit int) ([]models.LedgerNotification, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []models.LedgerNotification
	if err := s.DB.WithContext(ctx).
		Where("event_id = ? AND seq > ?", eventID, afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// loadTerms returns the cached finalized terms, reading them once from the
// database. It returns nil for unknown or unfinalized events.
func (s *EscrowService) loadTerms(ctx context.Context, eventID string) (*finalizedTerms, error) {
	if terms, ok := s.terms.Load(eventID); ok {
		return terms, nil
	}

	ev, err := s.GetEventInfo(ctx, eventID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !ev.Finalized {
		return nil, nil
	}

	var rows []models.RankShare
	if err := s.DB.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("rank ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load rank shares: %w", err)
	}
	shares := make([]uint64, len(rows))
	for i, r := range rows {
		shares[i] = r.Share
	}

	terms := &finalizedTerms{
		Root:           common.HexToHash(ev.CommitmentRoot),
		Shares:         shares,
		ShareUnitTotal: ev.ShareUnitTotal,
		FixedPool:      ev.FixedPool,
	}
	actual, _ := s.terms.LoadOrStore(eventID, terms)
	return actual, nil
}
