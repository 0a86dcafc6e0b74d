// models/custody.go
package models

import (
	"time"
)

// CustodyBalance mirrors the funds a holder keeps with the service, per asset.
// Table name: custody_balances
type CustodyBalance struct {
	Asset     string    `gorm:"primaryKey;type:varchar(42)" json:"asset"`
	Holder    string    `gorm:"primaryKey;type:varchar(42)" json:"holder"`
	Balance   Amount    `gorm:"not null" json:"balance"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TransferDirection tells whether value moved into or out of escrow custody.
type TransferDirection string

const (
	TransferPull    TransferDirection = "pull"
	TransferPush    TransferDirection = "push"
	TransferDeposit TransferDirection = "deposit"
)

// CustodyTransfer journals every balance movement.
type CustodyTransfer struct {
	ID        string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Asset     string            `gorm:"type:varchar(42);not null;index" json:"asset"`
	From      string            `gorm:"column:from_holder;type:varchar(42);not null" json:"from"`
	To        string            `gorm:"column:to_holder;type:varchar(42);not null" json:"to"`
	Amount    Amount            `gorm:"not null" json:"amount"`
	Direction TransferDirection `gorm:"type:varchar(16);not null" json:"direction"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

// CustodyDeposit records an external deposit already credited, keyed by the
// sync service's deposit id so replays are ignored.
type CustodyDeposit struct {
	DepositID   string    `gorm:"primaryKey;type:varchar(128)" json:"id"`
	Asset       string    `gorm:"type:varchar(42);not null" json:"asset"`
	Holder      string    `gorm:"type:varchar(42);not null;index" json:"holder"`
	Amount      Amount    `gorm:"not null" json:"amount"`
	ConfirmedAt time.Time `gorm:"not null" json:"confirmed_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
