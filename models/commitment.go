package models

import (
	"time"
)

// CommitmentArtifact is the off-ledger output of building a winners tree:
// the root an operator finalizes with, plus every winner's proof. The ledger
// never reads it.
type CommitmentArtifact struct {
	EventID     string    `json:"event_id" gorm:"primaryKey;type:varchar(128)"`
	ID          string    `json:"id" gorm:"type:varchar(36);not null"`
	Root        string    `json:"root" gorm:"type:varchar(66);not null"`
	WinnerCount int       `json:"winner_count" gorm:"not null"`
	ObjectKey   string    `json:"object_key,omitempty"`
	URL         string    `json:"url,omitempty"`
	Payload     string    `json:"-" gorm:"type:text;not null"` // JSON CommitmentDocument
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// CommitmentLeaf is one winner's entry in a CommitmentDocument.
type CommitmentLeaf struct {
	Account string   `json:"account"`
	Rank    uint64   `json:"rank"`
	Leaf    string   `json:"leaf"`
	Proof   []string `json:"proof"`
}

// CommitmentDocument is the published JSON shape of a winners tree.
type CommitmentDocument struct {
	EventID string           `json:"event_id"`
	Root    string           `json:"root"`
	Leaves  []CommitmentLeaf `json:"leaves"`
}
