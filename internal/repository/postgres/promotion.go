package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/apexrewards/pointsledger/internal/apperrors"
	"github.com/apexrewards/pointsledger/internal/models"
	"github.com/apexrewards/pointsledger/internal/repository"
)

type PromotionRepo struct {
	DB DBTX
}

const promotionColumns = `id, created_at, name, description, kind, starts_at, ends_at, min_spending, rate, points`

const createPromotion = `-- name: CreatePromotion
INSERT INTO promotions (id, name, description, kind, starts_at, ends_at, min_spending, rate, points)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + promotionColumns

func (r *PromotionRepo) Create(ctx context.Context, p models.Promotion) (models.Promotion, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createPromotion,
		p.ID, p.Name, p.Description, p.Kind, p.StartsAt, p.EndsAt, p.MinSpending, p.Rate, p.Points,
	)
	created, err := pgx.CollectOneRow(rows, rowToPromotion)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getPromotionByID = `-- name: GetPromotionByID
SELECT ` + promotionColumns + `
FROM promotions
WHERE id = $1
`

func (r *PromotionRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Promotion, error) {
	rows, _ := r.DB.Query(ctx, getPromotionByID, id)
	return collectPromotion(rows)
}

const updatePromotion = `-- name: UpdatePromotion
UPDATE promotions
SET name         = COALESCE($2, name),
    description  = COALESCE($3, description),
    starts_at    = COALESCE($4, starts_at),
    ends_at      = COALESCE($5, ends_at),
    min_spending = COALESCE($6, min_spending),
    rate         = COALESCE($7, rate),
    points       = COALESCE($8, points)
WHERE id = $1
RETURNING ` + promotionColumns

func (r *PromotionRepo) Update(ctx context.Context, id uuid.UUID, arg repository.UpdatePromotionParams) (models.Promotion, error) {
	rows, _ := r.DB.Query(ctx, updatePromotion,
		id, arg.Name, arg.Description, arg.StartsAt, arg.EndsAt, arg.MinSpending, arg.Rate, arg.Points,
	)
	return collectPromotion(rows)
}

const deletePromotion = `-- name: DeletePromotion
DELETE FROM promotions
WHERE id = $1
`

func (r *PromotionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, deletePromotion, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrPromotionNotFound
	}
	return nil
}

func (r *PromotionRepo) List(ctx context.Context, filter repository.ListPromotionsFilter) ([]models.Promotion, error) {
	var conds []string
	var args []any

	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.ActiveAt != nil {
		args = append(args, *filter.ActiveAt)
		conds = append(conds, fmt.Sprintf("starts_at <= $%d AND ends_at > $%d", len(args), len(args)))
	}

	query := `SELECT ` + promotionColumns + ` FROM promotions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY starts_at, id"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))

		page := filter.Page
		if page < 1 {
			page = 1
		}
		args = append(args, (page-1)*filter.Limit)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, _ := r.DB.Query(ctx, query, args...)
	promotions, err := pgx.CollectRows(rows, rowToPromotion)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return promotions, nil
}

const addToWallet = `-- name: AddToWallet
INSERT INTO user_promotions (user_id, promotion_id)
VALUES ($1, $2)
`

func (r *PromotionRepo) AddToWallet(ctx context.Context, userID uuid.UUID, promotionID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, addToWallet, userID, promotionID)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation:
		// Row exists: still held or already consumed
		used, usedErr := r.wasConsumed(ctx, userID, promotionID)
		switch {
		case usedErr != nil:
			return usedErr
		case used:
			return apperrors.ErrPromotionConsumed
		default:
			return apperrors.ErrPromotionInWallet
		}
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation:
		if strings.Contains(pgErr.ConstraintName, "promotion_id") {
			return apperrors.ErrPromotionNotFound
		}
		return apperrors.ErrUserNotFound
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

const removeFromWallet = `-- name: RemoveFromWallet
DELETE FROM user_promotions
WHERE user_id = $1 AND promotion_id = $2 AND used_at IS NULL
`

func (r *PromotionRepo) RemoveFromWallet(ctx context.Context, userID uuid.UUID, promotionID uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, removeFromWallet, userID, promotionID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	used, err := r.wasConsumed(ctx, userID, promotionID)
	switch {
	case err != nil:
		return err
	case used:
		return apperrors.ErrPromotionConsumed
	default:
		return apperrors.ErrPromotionNotInWallet
	}
}

const inWallet = `-- name: InWallet
SELECT EXISTS (
	SELECT 1 FROM user_promotions
	WHERE user_id = $1 AND promotion_id = $2 AND used_at IS NULL
)
`

func (r *PromotionRepo) InWallet(ctx context.Context, userID uuid.UUID, promotionID uuid.UUID) (bool, error) {
	var held bool
	err := r.DB.QueryRow(ctx, inWallet, userID, promotionID).Scan(&held)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return held, nil
}

const consumePromotion = `-- name: ConsumePromotion
UPDATE user_promotions
SET used_at = now()
WHERE user_id = $1 AND promotion_id = $2 AND used_at IS NULL
`

func (r *PromotionRepo) Consume(ctx context.Context, userID uuid.UUID, promotionID uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, consumePromotion, userID, promotionID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrPromotionNotInWallet
	}
	return nil
}

const promotionWasConsumed = `-- name: PromotionWasConsumed
SELECT used_at IS NOT NULL FROM user_promotions
WHERE user_id = $1 AND promotion_id = $2
`

func (r *PromotionRepo) wasConsumed(ctx context.Context, userID uuid.UUID, promotionID uuid.UUID) (bool, error) {
	var used bool
	err := r.DB.QueryRow(ctx, promotionWasConsumed, userID, promotionID).Scan(&used)

	switch {
	case err == nil:
		return used, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("db error: %w", err)
	}
}

func collectPromotion(rows pgx.Rows) (models.Promotion, error) {
	p, err := pgx.CollectOneRow(rows, rowToPromotion)

	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, pgx.ErrNoRows):
		return p, apperrors.ErrPromotionNotFound
	default:
		return p, fmt.Errorf("db error: %w", err)
	}
}

func rowToPromotion(row pgx.CollectableRow) (models.Promotion, error) {
	var p models.Promotion
	err := row.Scan(
		&p.ID, &p.CreatedAt, &p.Name, &p.Description, &p.Kind,
		&p.StartsAt, &p.EndsAt, &p.MinSpending, &p.Rate, &p.Points,
	)
	return p, err
}
