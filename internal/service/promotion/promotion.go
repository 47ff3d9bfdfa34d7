package promotion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/apexrewards/pointsledger/internal/apperrors"
	"github.com/apexrewards/pointsledger/internal/models"
	"github.com/apexrewards/pointsledger/internal/repository"
)

// Service manages the promotion catalog and user wallets
type Service struct {
	storage repository.Storage

	// now is swappable in tests
	now func() time.Time
}

func NewService(storage repository.Storage) *Service {
	return &Service{
		storage: storage,
		now:     time.Now,
	}
}

type CreateParams struct {
	Name        string
	Description string
	Kind        string
	StartsAt    time.Time
	EndsAt      time.Time
	MinSpending decimal.Decimal
	Rate        decimal.Decimal
	Points      int64
}

func (s *Service) Create(ctx context.Context, actor models.Actor, arg CreateParams) (models.Promotion, error) {
	var p models.Promotion

	if !actor.IsAtLeast(models.RoleManager) {
		return p, apperrors.ErrForbidden
	}
	if !models.ValidPromotionKind(arg.Kind) {
		return p, fmt.Errorf("%w: promotion kind %q", apperrors.ErrAmountInvalid, arg.Kind)
	}
	if !arg.EndsAt.After(arg.StartsAt) {
		return p, fmt.Errorf("%w: promotion window is empty", apperrors.ErrAmountInvalid)
	}
	if arg.Points < 0 || arg.Rate.IsNegative() || arg.MinSpending.IsNegative() {
		return p, apperrors.ErrAmountInvalid
	}

	return s.storage.Promotion().Create(ctx, models.Promotion{
		Name:        arg.Name,
		Description: arg.Description,
		Kind:        arg.Kind,
		StartsAt:    arg.StartsAt,
		EndsAt:      arg.EndsAt,
		MinSpending: arg.MinSpending,
		Rate:        arg.Rate,
		Points:      arg.Points,
	})
}

// Update edits mutable promotion fields. They freeze once the promotion
// window has opened.
func (s *Service) Update(ctx context.Context, actor models.Actor, id uuid.UUID, arg repository.UpdatePromotionParams) (models.Promotion, error) {
	var updated models.Promotion

	if !actor.IsAtLeast(models.RoleManager) {
		return updated, apperrors.ErrForbidden
	}

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		p, err := storage.Promotion().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p.Started(s.now()) {
			return apperrors.ErrPromotionStarted
		}

		updated, err = storage.Promotion().Update(ctx, id, arg)
		return err
	})

	return updated, err
}

// Delete removes a promotion that has not started yet
func (s *Service) Delete(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	if !actor.IsAtLeast(models.RoleManager) {
		return apperrors.ErrForbidden
	}

	return s.storage.InTx(ctx, func(storage repository.Storage) error {
		p, err := storage.Promotion().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p.Started(s.now()) {
			return apperrors.ErrPromotionStarted
		}

		return storage.Promotion().Delete(ctx, id)
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.Promotion, error) {
	return s.storage.Promotion().GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter repository.ListPromotionsFilter) ([]models.Promotion, error) {
	return s.storage.Promotion().List(ctx, filter)
}

// AddToWallet puts a one-time promotion into the user's wallet.
// Automatic promotions are never wallet-held.
func (s *Service) AddToWallet(ctx context.Context, userHandle string, promotionID uuid.UUID) error {
	return s.storage.InTx(ctx, func(storage repository.Storage) error {
		user, err := storage.User().GetByHandle(ctx, userHandle)
		if err != nil {
			return err
		}

		p, err := storage.Promotion().GetByID(ctx, promotionID)
		if err != nil {
			return err
		}
		if p.Kind != models.PromotionOneTime {
			return fmt.Errorf("%w: automatic promotions are applied without a wallet", apperrors.ErrPromotionIneligible)
		}
		if !p.ActiveAt(s.now()) {
			return fmt.Errorf("%w: %s", apperrors.ErrPromotionIneligible, ReasonNotActive)
		}

		return storage.Promotion().AddToWallet(ctx, user.ID, promotionID)
	})
}

func (s *Service) RemoveFromWallet(ctx context.Context, userHandle string, promotionID uuid.UUID) error {
	return s.storage.InTx(ctx, func(storage repository.Storage) error {
		user, err := storage.User().GetByHandle(ctx, userHandle)
		if err != nil {
			return err
		}

		return storage.Promotion().RemoveFromWallet(ctx, user.ID, promotionID)
	})
}
