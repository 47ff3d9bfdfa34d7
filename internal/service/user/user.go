package user

import (
	"context"
	"fmt"
	"time"

	"github.com/apexrewards/pointsledger/internal/apperrors"
	"github.com/apexrewards/pointsledger/internal/models"
	"github.com/apexrewards/pointsledger/internal/repository"
)

// Service covers the profile edits privileged callers perform outside the
// transaction engine: registration, role changes and the account flags.
type Service struct {
	storage repository.Storage
}

func NewService(storage repository.Storage) *Service {
	return &Service{storage: storage}
}

// Register creates a new regular account. Cashiers and above.
// The handle is the permanent identity and cannot change later.
func (s *Service) Register(ctx context.Context, actor models.Actor, handle string) (models.User, error) {
	var user models.User

	if !actor.IsAtLeast(models.RoleCashier) {
		return user, apperrors.ErrForbidden
	}

	user, err := s.storage.User().Create(ctx, repository.CreateUserParams{
		Handle: handle,
		Role:   models.RoleRegular,
	})
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

func (s *Service) Get(ctx context.Context, handle string) (models.User, error) {
	return s.storage.User().GetByHandle(ctx, handle)
}

// SetRole changes a user's role. Superusers may assign any role; managers
// may only move users between regular and cashier.
func (s *Service) SetRole(ctx context.Context, actor models.Actor, handle string, role string) (models.User, error) {
	var user models.User

	if !models.ValidRole(role) {
		return user, fmt.Errorf("%w: %q", apperrors.ErrRoleInvalid, role)
	}

	switch {
	case actor.IsAtLeast(models.RoleSuperuser):
	case actor.IsAtLeast(models.RoleManager) && !models.RoleAtLeast(role, models.RoleManager):
	default:
		return user, apperrors.ErrForbidden
	}

	return s.withUser(ctx, handle, func(storage repository.Storage, u models.User) (models.User, error) {
		return storage.User().SetRole(ctx, u.ID, role)
	})
}

// SetVerified marks the account verified. One-way: there is no unverify.
func (s *Service) SetVerified(ctx context.Context, actor models.Actor, handle string) (models.User, error) {
	if !actor.IsAtLeast(models.RoleManager) {
		return models.User{}, apperrors.ErrForbidden
	}

	return s.withUser(ctx, handle, func(storage repository.Storage, u models.User) (models.User, error) {
		return storage.User().SetVerified(ctx, u.ID)
	})
}

// SetSuspicious toggles the account's suspicious flag. Purchases issued by a
// suspicious cashier are recorded withheld until reviewed.
func (s *Service) SetSuspicious(ctx context.Context, actor models.Actor, handle string, suspicious bool) (models.User, error) {
	if !actor.IsAtLeast(models.RoleManager) {
		return models.User{}, apperrors.ErrForbidden
	}

	return s.withUser(ctx, handle, func(storage repository.Storage, u models.User) (models.User, error) {
		return storage.User().SetSuspicious(ctx, u.ID, suspicious)
	})
}

// RecordLogin stamps the last-login audit field. The gateway calls it with
// the user's own freshly minted token, so only self is accepted.
func (s *Service) RecordLogin(ctx context.Context, actor models.Actor, handle string, at time.Time) error {
	if actor.Handle != handle {
		return apperrors.ErrForbidden
	}

	user, err := s.storage.User().GetByHandle(ctx, handle)
	if err != nil {
		return err
	}

	return s.storage.User().RecordLogin(ctx, user.ID, at)
}

func (s *Service) withUser(ctx context.Context, handle string, fn func(repository.Storage, models.User) (models.User, error)) (models.User, error) {
	var updated models.User

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		u, err := storage.User().GetByHandle(ctx, handle)
		if err != nil {
			return err
		}

		updated, err = fn(storage, u)
		return err
	})

	return updated, err
}
