package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	KindPurchase   = "purchase"
	KindRedemption = "redemption"
	KindTransfer   = "transfer"
	KindAdjustment = "adjustment"
	KindEvent      = "event"
)

// ValidKind reports whether kind is one of the known transaction kinds
func ValidKind(kind string) bool {
	switch kind {
	case KindPurchase, KindRedemption, KindTransfer, KindAdjustment, KindEvent:
		return true
	}
	return false
}

// Transaction is a single immutable ledger fact.
// Only Suspicious and Processed/ProcessedBy may change after creation.
type Transaction struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	Kind       string
	IssuerID   uuid.UUID
	ReceiverID uuid.UUID
	Remark     string

	// Spent is the purchase spend in currency units, zero for other kinds
	Spent decimal.Decimal

	// Amount is the point delta. Stored positive for redemptions;
	// the query projection negates it for display.
	Amount int64

	// RelatedID links a redemption to its processing, an adjustment to the
	// transaction it corrects, or an event award to its event
	RelatedID *uuid.UUID

	Suspicious  bool
	Processed   bool
	ProcessedBy *uuid.UUID

	// PromotionIDs are the promotions applied at creation time (purchase only)
	PromotionIDs []uuid.UUID
}
