package event

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/apexrewards/pointsledger/internal/apperrors"
	"github.com/apexrewards/pointsledger/internal/models"
	"github.com/apexrewards/pointsledger/internal/repository"
)

// Service manages events, their guest lists and organizers. The point pool
// itself is spent by the transaction engine's award operation.
type Service struct {
	storage repository.Storage
}

func NewService(storage repository.Storage) *Service {
	return &Service{storage: storage}
}

type CreateParams struct {
	Name         string
	Description  string
	StartsAt     time.Time
	EndsAt       time.Time
	PointsBudget int64
}

func (s *Service) Create(ctx context.Context, actor models.Actor, arg CreateParams) (models.Event, error) {
	var event models.Event

	if !actor.IsAtLeast(models.RoleManager) {
		return event, apperrors.ErrForbidden
	}
	if arg.PointsBudget < 0 {
		return event, fmt.Errorf("%w: event point budget must not be negative", apperrors.ErrAmountInvalid)
	}
	if !arg.EndsAt.After(arg.StartsAt) {
		return event, fmt.Errorf("%w: event window is empty", apperrors.ErrAmountInvalid)
	}

	return s.storage.Event().Create(ctx, models.Event{
		Name:         arg.Name,
		Description:  arg.Description,
		StartsAt:     arg.StartsAt,
		EndsAt:       arg.EndsAt,
		PointsRemain: arg.PointsBudget,
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.Event, error) {
	return s.storage.Event().GetByID(ctx, id)
}

// AddGuest registers userHandle as a guest. Organizers of the event and
// managers may edit the guest list.
func (s *Service) AddGuest(ctx context.Context, actor models.Actor, eventID uuid.UUID, userHandle string) error {
	return s.storage.InTx(ctx, func(storage repository.Storage) error {
		event, err := storage.Event().GetByID(ctx, eventID)
		if err != nil {
			return err
		}
		if !actor.IsAtLeast(models.RoleManager) && !event.IsOrganizer(actor.UserID) {
			return apperrors.ErrForbidden
		}

		user, err := storage.User().GetByHandle(ctx, userHandle)
		if err != nil {
			return err
		}

		return storage.Event().AddGuest(ctx, eventID, user.ID)
	})
}

func (s *Service) RemoveGuest(ctx context.Context, actor models.Actor, eventID uuid.UUID, userHandle string) error {
	return s.storage.InTx(ctx, func(storage repository.Storage) error {
		event, err := storage.Event().GetByID(ctx, eventID)
		if err != nil {
			return err
		}
		if !actor.IsAtLeast(models.RoleManager) && !event.IsOrganizer(actor.UserID) {
			return apperrors.ErrForbidden
		}

		user, err := storage.User().GetByHandle(ctx, userHandle)
		if err != nil {
			return err
		}

		return storage.Event().RemoveGuest(ctx, eventID, user.ID)
	})
}

// AddOrganizer grants award rights on the event. Managers only.
func (s *Service) AddOrganizer(ctx context.Context, actor models.Actor, eventID uuid.UUID, userHandle string) error {
	if !actor.IsAtLeast(models.RoleManager) {
		return apperrors.ErrForbidden
	}

	return s.storage.InTx(ctx, func(storage repository.Storage) error {
		user, err := storage.User().GetByHandle(ctx, userHandle)
		if err != nil {
			return err
		}

		return storage.Event().AddOrganizer(ctx, eventID, user.ID)
	})
}
