package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/apexrewards/pointsledger/internal/models"
)

// Entry is the kind-shaped presentation of a transaction. Fields that do not
// belong to the entry's kind stay nil and drop out of the JSON encoding.
type Entry struct {
	ID         uuid.UUID   `json:"id"`
	CreatedAt  time.Time   `json:"createdAt"`
	Kind       string      `json:"kind"`
	Issuer     uuid.UUID   `json:"issuer"`
	Remark     string      `json:"remark,omitempty"`
	Promotions []uuid.UUID `json:"promotionIds,omitempty"`

	// purchase
	Spent      *decimal.Decimal `json:"spent,omitempty"`
	Suspicious *bool            `json:"suspicious,omitempty"`

	// redemption
	Redeemed *int64 `json:"redeemed,omitempty"`

	// event
	Awarded *int64 `json:"awarded,omitempty"`

	// transfer
	Sender    *uuid.UUID `json:"sender,omitempty"`
	Recipient *uuid.UUID `json:"recipient,omitempty"`
	Sent      *int64     `json:"sent,omitempty"`

	// purchase/transfer fallback point delta
	Amount *int64 `json:"amount,omitempty"`

	RelatedID *uuid.UUID `json:"relatedId,omitempty"`
}

// Project shapes a transaction for presentation. It is a pure function of
// the record: no lookups, no side effects.
func Project(tr models.Transaction) Entry {
	entry := Entry{
		ID:         tr.ID,
		CreatedAt:  tr.CreatedAt,
		Kind:       tr.Kind,
		Issuer:     tr.IssuerID,
		Remark:     tr.Remark,
		Promotions: tr.PromotionIDs,
	}

	switch tr.Kind {
	case models.KindPurchase:
		spent := tr.Spent
		suspicious := tr.Suspicious
		amount := tr.Amount
		entry.Spent = &spent
		entry.Suspicious = &suspicious
		entry.Amount = &amount

	case models.KindRedemption:
		// Stored positive, displayed as the negative balance effect
		redeemed := -tr.Amount
		entry.Redeemed = &redeemed
		entry.RelatedID = tr.RelatedID
		if tr.ProcessedBy != nil {
			related := *tr.ProcessedBy
			entry.RelatedID = &related
		}

	case models.KindAdjustment:
		amount := tr.Amount
		suspicious := tr.Suspicious
		entry.Amount = &amount
		entry.Suspicious = &suspicious
		entry.RelatedID = tr.RelatedID

	case models.KindEvent:
		awarded := tr.Amount
		recipient := tr.ReceiverID
		entry.Awarded = &awarded
		entry.Recipient = &recipient
		entry.RelatedID = tr.RelatedID

	case models.KindTransfer:
		sender := tr.IssuerID
		sent := tr.Amount
		if sent < 0 {
			sent = -sent
		}
		entry.Sender = &sender
		entry.Sent = &sent

		// The outgoing half stores the counterparty in relatedId,
		// the incoming half is addressed to the recipient directly
		if tr.Amount < 0 {
			entry.Recipient = tr.RelatedID
		} else {
			recipient := tr.ReceiverID
			entry.Recipient = &recipient
		}
	}

	return entry
}
