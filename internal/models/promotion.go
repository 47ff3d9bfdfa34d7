package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PromotionAutomatic = "automatic"
	PromotionOneTime   = "onetime"
)

// ValidPromotionKind reports whether kind is a known promotion kind
func ValidPromotionKind(kind string) bool {
	return kind == PromotionAutomatic || kind == PromotionOneTime
}

type Promotion struct {
	ID          uuid.UUID
	CreatedAt   time.Time
	Name        string
	Description string
	Kind        string
	StartsAt    time.Time
	EndsAt      time.Time

	// MinSpending is the smallest qualifying spend, zero means no threshold
	MinSpending decimal.Decimal

	// Rate earns ceil(Rate * spend * 100) bonus points on a qualifying spend
	Rate decimal.Decimal

	// Points is a flat bonus granted on top of the rate bonus
	Points int64
}

// Started reports whether the promotion window has opened.
// Mutable fields freeze and deletion is refused once this is true.
func (p Promotion) Started(now time.Time) bool {
	return !now.Before(p.StartsAt)
}

// ActiveAt reports whether now falls inside [StartsAt, EndsAt)
func (p Promotion) ActiveAt(now time.Time) bool {
	return !now.Before(p.StartsAt) && now.Before(p.EndsAt)
}
