package models

import (
	"time"
)

// EscrowEvent is the ledger record of one competitive event: its asset, fee,
// deadline, pooled balance and (once finalized) its locked payout terms.
// Rows are never deleted.
type EscrowEvent struct {
	EventID              string `json:"event_id" gorm:"primaryKey;type:varchar(128)"`
	Name                 string `json:"name"`
	AssetID              string `json:"asset_id" gorm:"type:varchar(42);not null;index"`
	EntryFee             Amount `json:"entry_fee" gorm:"not null"`
	RegistrationDeadline int64  `json:"registration_deadline" gorm:"not null;default:0"` // unix seconds, 0 = open until finalized
	CreatedBy            string `json:"created_by" gorm:"type:varchar(42)"`

	// Pool is spendable balance; FixedPool is the payout base locked at finalization.
	PoolBalance    Amount `json:"pool_balance" gorm:"not null"`
	FixedPool      Amount `json:"fixed_pool" gorm:"not null"`
	CommitmentRoot string `json:"commitment_root" gorm:"type:varchar(66);not null"`
	ShareUnitTotal uint64 `json:"share_unit_total" gorm:"not null;default:0"`
	Finalized      bool   `json:"finalized" gorm:"not null;default:false"`

	// Audit counters
	TotalSponsored  Amount `json:"total_sponsored" gorm:"not null"`
	TotalFees       Amount `json:"total_fees" gorm:"not null"`
	TotalClaimed    Amount `json:"total_claimed" gorm:"not null"`
	TotalSkimmed    Amount `json:"total_skimmed" gorm:"not null"`
	RegisteredCount int64  `json:"registered_count" gorm:"not null;default:0"`
	ClaimedCount    int64  `json:"claimed_count" gorm:"not null;default:0"`

	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	Shares []RankShare `json:"shares,omitempty" gorm:"foreignKey:EventID"`
}

// RankShare is one row of an event's rank → share table, written once at finalization.
type RankShare struct {
	EventID string `json:"event_id" gorm:"primaryKey;type:varchar(128)"`
	Rank    uint64 `json:"rank" gorm:"primaryKey;autoIncrement:false"`
	Share   uint64 `json:"share" gorm:"not null"`
}

// Registration marks a participant as having paid the entry fee.
type Registration struct {
	ID          uint64    `json:"-" gorm:"primaryKey;autoIncrement"`
	EventID     string    `json:"event_id" gorm:"type:varchar(128);not null;uniqueIndex:idx_registration_event_participant"`
	Participant string    `json:"participant" gorm:"type:varchar(42);not null;uniqueIndex:idx_registration_event_participant"`
	FeePaid     Amount    `json:"fee_paid" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// Claim marks a participant as paid out. At most one per (event, participant).
type Claim struct {
	ID          uint64    `json:"-" gorm:"primaryKey;autoIncrement"`
	EventID     string    `json:"event_id" gorm:"type:varchar(128);not null;uniqueIndex:idx_claim_event_participant"`
	Participant string    `json:"participant" gorm:"type:varchar(42);not null;uniqueIndex:idx_claim_event_participant"`
	Rank        uint64    `json:"rank" gorm:"not null"`
	Amount      Amount    `json:"amount" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}
