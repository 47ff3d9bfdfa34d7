package apperrors

import (
	"errors"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrPromotionNotFound   = errors.New("promotion not found")
	ErrEventNotFound       = errors.New("event not found")

	ErrAmountInvalid = errors.New("amount is out of range")
	ErrRoleInvalid   = errors.New("unknown role")

	ErrBalanceInsufficient   = errors.New("insufficient balance")
	ErrEventPoolInsufficient = errors.New("insufficient event point pool")
	ErrSelfTransfer          = errors.New("transfer to self")
	ErrAlreadyProcessed      = errors.New("redemption already processed")
	ErrNotRedemption         = errors.New("transaction is not a redemption")
	ErrPromotionIneligible   = errors.New("promotion not eligible")
	ErrPromotionInWallet     = errors.New("promotion already in wallet")
	ErrPromotionNotInWallet  = errors.New("promotion not in wallet")
	ErrPromotionConsumed     = errors.New("promotion already used")
	ErrPromotionStarted      = errors.New("promotion already started")
	ErrGuestNotFound         = errors.New("user is not a guest of the event")
	ErrGuestAlreadyAdded     = errors.New("user is already on the event")

	ErrForbidden   = errors.New("operation not permitted for this role")
	ErrNotVerified = errors.New("account is not verified")
)

// Kind groups errors into the categories the caller maps to a response
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindForbidden
)

var kinds = map[Kind][]error{
	KindNotFound: {
		ErrUserNotFound,
		ErrTransactionNotFound,
		ErrPromotionNotFound,
		ErrEventNotFound,
		ErrGuestNotFound,
	},
	KindValidation: {
		ErrAmountInvalid,
		ErrRoleInvalid,
	},
	KindConflict: {
		ErrBalanceInsufficient,
		ErrEventPoolInsufficient,
		ErrSelfTransfer,
		ErrAlreadyProcessed,
		ErrNotRedemption,
		ErrPromotionIneligible,
		ErrPromotionInWallet,
		ErrPromotionNotInWallet,
		ErrPromotionConsumed,
		ErrPromotionStarted,
		ErrGuestAlreadyAdded,
		ErrUserAlreadyExists,
	},
	KindForbidden: {
		ErrForbidden,
		ErrNotVerified,
	},
}

// KindOf classifies err by its sentinel, KindInternal if it matches none
func KindOf(err error) Kind {
	for kind, sentinels := range kinds {
		for _, sentinel := range sentinels {
			if errors.Is(err, sentinel) {
				return kind
			}
		}
	}
	return KindInternal
}
