package models

import (
	"time"
)

// NotificationKind names a ledger transition.
type NotificationKind string

const (
	NotificationEventCreated NotificationKind = "event.created"
	NotificationSponsored    NotificationKind = "event.sponsored"
	NotificationRegistered   NotificationKind = "event.registered"
	NotificationFinalized    NotificationKind = "event.finalized"
	NotificationClaimed      NotificationKind = "event.claimed"
	NotificationSkimmed      NotificationKind = "event.skimmed"
)

// LedgerNotification is an outbox row written in the same transaction as the
// transition it describes. Seq gives a total order for relaying.
type LedgerNotification struct {
	Seq          uint64           `json:"seq" gorm:"primaryKey;autoIncrement"`
	ID           string           `json:"id" gorm:"type:varchar(36);uniqueIndex;not null"`
	EventID      string           `json:"event_id" gorm:"type:varchar(128);not null;index"`
	Kind         NotificationKind `json:"kind" gorm:"type:varchar(32);not null"`
	Actor        string           `json:"actor" gorm:"type:varchar(42)"`
	Counterparty string           `json:"counterparty,omitempty" gorm:"type:varchar(42)"`
	Rank         uint64           `json:"rank,omitempty"`
	Amount       Amount           `json:"amount" gorm:"not null"`
	Detail       string           `json:"detail,omitempty" gorm:"type:text"` // JSON-encoded extra fields
	CreatedAt    time.Time        `json:"created_at" gorm:"autoCreateTime"`
	PublishedAt  *time.Time       `json:"published_at,omitempty" gorm:"index"`
}
