package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/apexrewards/pointsledger/internal/apperrors"
	"github.com/apexrewards/pointsledger/internal/models"
	"github.com/apexrewards/pointsledger/internal/repository"
)

// Page is one page of projected ledger entries, newest first
type Page struct {
	Count   int64   `json:"count"`
	Results []Entry `json:"results"`
}

// List returns a page of the full ledger. Managers and above only.
func (s *Service) List(ctx context.Context, actor models.Actor, filter repository.ListFilter) (Page, error) {
	if !actor.IsAtLeast(models.RoleManager) {
		return Page{}, apperrors.ErrForbidden
	}

	return s.list(ctx, filter)
}

// ListOwn returns a page of the acting user's own ledger entries.
// The receiver filter is forced to the actor regardless of input.
func (s *Service) ListOwn(ctx context.Context, actor models.Actor, filter repository.ListFilter) (Page, error) {
	userID := actor.UserID
	filter.ReceiverID = &userID

	return s.list(ctx, filter)
}

// Get returns one transaction by id, shaped. Managers and above only.
func (s *Service) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (Entry, error) {
	if !actor.IsAtLeast(models.RoleManager) {
		return Entry{}, apperrors.ErrForbidden
	}

	tr, err := s.storage.Transaction().GetByID(ctx, id)
	if err != nil {
		return Entry{}, err
	}

	return Project(tr), nil
}

func (s *Service) list(ctx context.Context, filter repository.ListFilter) (Page, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}

	count, err := s.storage.Transaction().Count(ctx, filter)
	if err != nil {
		return Page{}, err
	}

	transactions, err := s.storage.Transaction().List(ctx, filter)
	if err != nil {
		return Page{}, err
	}

	entries := make([]Entry, 0, len(transactions))
	for _, tr := range transactions {
		entries = append(entries, Project(tr))
	}

	return Page{Count: count, Results: entries}, nil
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)
