package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/apexrewards/pointsledger/internal/models"
)

// Storage bundles the per-entity repositories over one database handle.
// InTx runs fn against a Storage bound to a single database transaction;
// every engine operation that touches balances goes through it.
type Storage interface {
	User() UserRepo
	Transaction() TransactionRepo
	Promotion() PromotionRepo
	Event() EventRepo

	InTx(ctx context.Context, fn func(Storage) error) error
}

type CreateUserParams struct {
	Handle   string
	Role     string
	Verified bool
}

type UserRepo interface {
	// Create user
	// If a user with the handle exists already has to return apperrors.ErrUserAlreadyExists
	Create(ctx context.Context, arg CreateUserParams) (models.User, error)

	// Get user by id or handle
	// If the user not found must return apperrors.ErrUserNotFound
	GetByID(ctx context.Context, id uuid.UUID) (models.User, error)
	GetByHandle(ctx context.Context, handle string) (models.User, error)

	// AddPoints applies delta to the user's balance and returns the updated
	// user. The single-row update serializes concurrent balance mutations.
	// A delta that would drive the balance negative returns
	// apperrors.ErrBalanceInsufficient and leaves the balance unchanged.
	AddPoints(ctx context.Context, id uuid.UUID, delta int64) (models.User, error)

	// TransferPoints moves amount from one balance to another. Rows are
	// locked in id order so opposite-direction transfers cannot deadlock.
	TransferPoints(ctx context.Context, fromID uuid.UUID, toID uuid.UUID, amount int64) error

	SetRole(ctx context.Context, id uuid.UUID, role string) (models.User, error)
	SetVerified(ctx context.Context, id uuid.UUID) (models.User, error)
	SetSuspicious(ctx context.Context, id uuid.UUID, suspicious bool) (models.User, error)
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ListFilter narrows a transaction listing. Nil pointer fields are skipped.
type ListFilter struct {
	ReceiverID  *uuid.UUID
	IssuerID    *uuid.UUID
	Kind        string
	RelatedID   *uuid.UUID
	PromotionID *uuid.UUID

	// Amount threshold, AmountOp selects the comparison ("gte" or "lte")
	Amount   *int64
	AmountOp string

	Suspicious    *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time

	// Page is 1-based; Limit caps the page size
	Page  int
	Limit int
}

type TransactionRepo interface {
	// Create stores the fully-formed transaction together with its applied
	// promotion links in one statement sequence
	Create(ctx context.Context, tr models.Transaction) (models.Transaction, error)

	// If the transaction not found must return apperrors.ErrTransactionNotFound
	GetByID(ctx context.Context, id uuid.UUID) (models.Transaction, error)

	// MarkProcessed flips processed false -> true exactly once.
	// An already processed redemption returns apperrors.ErrAlreadyProcessed.
	MarkProcessed(ctx context.Context, id uuid.UUID, processorID uuid.UUID) (models.Transaction, error)

	// SetSuspicious sets the flag and reports whether it actually changed,
	// so the balance effect can never be applied twice
	SetSuspicious(ctx context.Context, id uuid.UUID, suspicious bool) (tr models.Transaction, changed bool, err error)

	// List returns transactions newest first
	List(ctx context.Context, filter ListFilter) ([]models.Transaction, error)
	Count(ctx context.Context, filter ListFilter) (int64, error)
}

// UpdatePromotionParams carries the mutable promotion fields.
// Nil fields keep their stored value.
type UpdatePromotionParams struct {
	Name        *string
	Description *string
	StartsAt    *time.Time
	EndsAt      *time.Time
	MinSpending *decimal.Decimal
	Rate        *decimal.Decimal
	Points      *int64
}

type ListPromotionsFilter struct {
	Kind     string
	ActiveAt *time.Time
	Page     int
	Limit    int
}

type PromotionRepo interface {
	Create(ctx context.Context, p models.Promotion) (models.Promotion, error)

	// If the promotion not found must return apperrors.ErrPromotionNotFound
	GetByID(ctx context.Context, id uuid.UUID) (models.Promotion, error)

	Update(ctx context.Context, id uuid.UUID, arg UpdatePromotionParams) (models.Promotion, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ListPromotionsFilter) ([]models.Promotion, error)

	// AddToWallet inserts wallet membership.
	// Returns apperrors.ErrPromotionInWallet if already held,
	// apperrors.ErrPromotionConsumed if the user has used it before.
	AddToWallet(ctx context.Context, userID uuid.UUID, promotionID uuid.UUID) error

	// RemoveFromWallet deletes an unconsumed membership row.
	// Returns apperrors.ErrPromotionNotInWallet when there is nothing to remove.
	RemoveFromWallet(ctx context.Context, userID uuid.UUID, promotionID uuid.UUID) error

	// InWallet reports current (unconsumed) membership
	InWallet(ctx context.Context, userID uuid.UUID, promotionID uuid.UUID) (bool, error)

	// Consume stamps the membership used. The guarded update returns
	// apperrors.ErrPromotionNotInWallet if the row was never added or was
	// consumed by a concurrent transaction.
	Consume(ctx context.Context, userID uuid.UUID, promotionID uuid.UUID) error
}

type EventRepo interface {
	Create(ctx context.Context, e models.Event) (models.Event, error)

	// GetByID loads the event with its guest and organizer id lists.
	// If the event not found must return apperrors.ErrEventNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (models.Event, error)

	AddGuest(ctx context.Context, eventID uuid.UUID, userID uuid.UUID) error
	RemoveGuest(ctx context.Context, eventID uuid.UUID, userID uuid.UUID) error
	AddOrganizer(ctx context.Context, eventID uuid.UUID, userID uuid.UUID) error

	// TakePoints moves amount from the remaining pool to the awarded total.
	// A pool smaller than amount returns apperrors.ErrEventPoolInsufficient.
	TakePoints(ctx context.Context, eventID uuid.UUID, amount int64) (models.Event, error)
}
