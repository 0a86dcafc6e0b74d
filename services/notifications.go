package services

import (
	"encoding/json"
	"fmt"

	"prize-escrow/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// notification is one outbox entry waiting to be written.
type notification struct {
	Kind         models.NotificationKind
	EventID      string
	Actor        common.Address
	Counterparty common.Address
	Rank         uint64
	Amount       models.Amount
	Detail       map[string]interface{}
}

// recordNotification appends n to the outbox inside tx, so it commits or
// rolls back together with the transition it describes.
func recordNotification(tx *gorm.DB, n notification) error {
	row := models.LedgerNotification{
		ID:      uuid.NewString(),
		EventID: n.EventID,
		Kind:    n.Kind,
		Actor:   n.Actor.Hex(),
		Rank:    n.Rank,
		Amount:  n.Amount,
	}
	if n.Counterparty != (common.Address{}) {
		row.Counterparty = n.Counterparty.Hex()
	}
	if len(n.Detail) > 0 {
		detail, err := json.Marshal(n.Detail)
		if err != nil {
			return fmt.Errorf("encode %s detail: %w", n.Kind, err)
		}
		row.Detail = string(detail)
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("record %s notification: %w", n.Kind, err)
	}
	return nil
}
