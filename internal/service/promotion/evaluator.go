package promotion

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/apexrewards/pointsledger/internal/models"
)

// Evaluation reasons, surfaced to the caller when a purchase is rejected
const (
	ReasonNotActive     = "outside promotion window"
	ReasonNotInWallet   = "promotion not in wallet"
	ReasonBelowMinSpend = "spend below promotion minimum"
	ReasonUnknownKind   = "unknown promotion kind"
)

type Result struct {
	Eligible bool
	Bonus    int64
	Reason   string
}

// pointsPerUnit converts a rate fraction into points: a rate of 0.05 on a
// 20.00 spend earns ceil(0.05 * 20 * 100) = 100 points
var pointsPerUnit = decimal.NewFromInt(100)

// Evaluate decides whether promotion p applies to a purchase of spend at now
// and computes the bonus points it grants. It is pure: wallet consumption is
// the transaction engine's job, after every listed promotion has passed.
//
// inWallet reports whether the receiver currently holds p (one-time kinds
// only; ignored for automatic promotions).
func Evaluate(p models.Promotion, inWallet bool, spend decimal.Decimal, now time.Time) Result {
	if !p.ActiveAt(now) {
		return Result{Reason: ReasonNotActive}
	}

	switch p.Kind {
	case models.PromotionAutomatic:
	case models.PromotionOneTime:
		if !inWallet {
			return Result{Reason: ReasonNotInWallet}
		}
	default:
		return Result{Reason: ReasonUnknownKind}
	}

	if spend.LessThan(p.MinSpending) {
		return Result{Reason: ReasonBelowMinSpend}
	}

	return Result{Eligible: true, Bonus: Bonus(p, spend)}
}

// Bonus computes the points p grants on spend: the flat points plus the rate
// share, rounded up so partial cents never cost the user a point
func Bonus(p models.Promotion, spend decimal.Decimal) int64 {
	rated := p.Rate.Mul(spend).Mul(pointsPerUnit).Ceil().IntPart()
	return p.Points + rated
}

// BasePoints is the promotion-independent earn rate of a purchase:
// ceil(spend * 4), one point per quarter currency unit
func BasePoints(spend decimal.Decimal) int64 {
	return spend.Mul(decimal.NewFromInt(4)).Ceil().IntPart()
}
