package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/apexrewards/pointsledger/internal/apperrors"
	"github.com/apexrewards/pointsledger/internal/models"
	"github.com/apexrewards/pointsledger/internal/repository"
)

type TransactionRepo struct {
	DB DBTX
}

const transactionColumns = `id, created_at, kind, issuer_id, receiver_id, remark, spent, amount, related_id, suspicious, processed, processed_by`

const createTransaction = `-- name: CreateTransaction
INSERT INTO transactions (id, created_at, kind, issuer_id, receiver_id, remark, spent, amount, related_id, suspicious, processed, processed_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + transactionColumns

const linkPromotion = `-- name: LinkPromotion
INSERT INTO transaction_promotions (transaction_id, promotion_id)
VALUES ($1, $2)
`

func (r *TransactionRepo) Create(ctx context.Context, tr models.Transaction) (models.Transaction, error) {
	// Transaction with defaults
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createTransaction,
		tr.ID, tr.CreatedAt, tr.Kind, tr.IssuerID, tr.ReceiverID, tr.Remark,
		tr.Spent, tr.Amount, tr.RelatedID, tr.Suspicious, tr.Processed, tr.ProcessedBy,
	)
	created, err := pgx.CollectOneRow(rows, rowToTransaction)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return created, apperrors.ErrUserNotFound
		}
		return created, fmt.Errorf("db error: %w", err)
	}

	for _, promotionID := range tr.PromotionIDs {
		if _, err := r.DB.Exec(ctx, linkPromotion, created.ID, promotionID); err != nil {
			return created, fmt.Errorf("db error linking promotion: %w", err)
		}
	}
	created.PromotionIDs = tr.PromotionIDs

	return created, nil
}

const getTransactionByID = `-- name: GetTransactionByID
SELECT ` + transactionColumns + `
FROM transactions
WHERE id = $1
`

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, getTransactionByID, id)
	tr, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		return tr, apperrors.ErrTransactionNotFound
	default:
		return tr, fmt.Errorf("db error: %w", err)
	}

	tr.PromotionIDs, err = r.promotionIDs(ctx, tr.ID)
	return tr, err
}

const markProcessed = `-- name: MarkProcessed
UPDATE transactions
SET processed = true, processed_by = $2
WHERE id = $1 AND kind = 'redemption' AND processed = false
RETURNING ` + transactionColumns

func (r *TransactionRepo) MarkProcessed(ctx context.Context, id uuid.UUID, processorID uuid.UUID) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, markProcessed, id, processorID)
	tr, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return tr, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Guard rejected the update, figure out why
		existing, getErr := r.GetByID(ctx, id)
		switch {
		case getErr != nil:
			return tr, getErr
		case existing.Kind != models.KindRedemption:
			return tr, apperrors.ErrNotRedemption
		default:
			return tr, apperrors.ErrAlreadyProcessed
		}
	default:
		return tr, fmt.Errorf("db error: %w", err)
	}
}

const setTransactionSuspicious = `-- name: SetTransactionSuspicious
UPDATE transactions
SET suspicious = $2
WHERE id = $1 AND suspicious <> $2
RETURNING ` + transactionColumns

func (r *TransactionRepo) SetSuspicious(ctx context.Context, id uuid.UUID, suspicious bool) (models.Transaction, bool, error) {
	rows, _ := r.DB.Query(ctx, setTransactionSuspicious, id, suspicious)
	tr, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return tr, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Flag already has the requested value (or the transaction is gone)
		tr, err = r.GetByID(ctx, id)
		return tr, false, err
	default:
		return tr, false, fmt.Errorf("db error: %w", err)
	}
}

func (r *TransactionRepo) List(ctx context.Context, filter repository.ListFilter) ([]models.Transaction, error) {
	where, args := buildWhere(filter)

	query := `SELECT ` + transactionColumns + ` FROM transactions` + where +
		` ORDER BY created_at DESC, id DESC`

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
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := r.loadPromotionIDs(ctx, transactions); err != nil {
		return nil, err
	}

	return transactions, nil
}

func (r *TransactionRepo) Count(ctx context.Context, filter repository.ListFilter) (int64, error) {
	where, args := buildWhere(filter)

	var count int64
	err := r.DB.QueryRow(ctx, `SELECT count(*) FROM transactions`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}

// buildWhere translates the filter into a WHERE clause with positional args
func buildWhere(filter repository.ListFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.ReceiverID != nil {
		add("receiver_id = $%d", *filter.ReceiverID)
	}
	if filter.IssuerID != nil {
		add("issuer_id = $%d", *filter.IssuerID)
	}
	if filter.Kind != "" {
		add("kind = $%d", filter.Kind)
	}
	if filter.RelatedID != nil {
		add("related_id = $%d", *filter.RelatedID)
	}
	if filter.PromotionID != nil {
		add("EXISTS (SELECT 1 FROM transaction_promotions tp WHERE tp.transaction_id = transactions.id AND tp.promotion_id = $%d)", *filter.PromotionID)
	}
	if filter.Amount != nil {
		if filter.AmountOp == "lte" {
			add("amount <= $%d", *filter.Amount)
		} else {
			add("amount >= $%d", *filter.Amount)
		}
	}
	if filter.Suspicious != nil {
		add("suspicious = $%d", *filter.Suspicious)
	}
	if filter.CreatedAfter != nil {
		add("created_at >= $%d", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		add("created_at < $%d", *filter.CreatedBefore)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const listPromotionLinks = `-- name: ListPromotionLinks
SELECT transaction_id, promotion_id FROM transaction_promotions
WHERE transaction_id = ANY($1)
`

func (r *TransactionRepo) loadPromotionIDs(ctx context.Context, transactions []models.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(transactions))
	index := make(map[uuid.UUID]int, len(transactions))
	for i, tr := range transactions {
		ids = append(ids, tr.ID)
		index[tr.ID] = i
	}

	rows, _ := r.DB.Query(ctx, listPromotionLinks, ids)
	_, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (struct{}, error) {
		var transactionID, promotionID uuid.UUID
		if err := row.Scan(&transactionID, &promotionID); err != nil {
			return struct{}{}, err
		}
		i := index[transactionID]
		transactions[i].PromotionIDs = append(transactions[i].PromotionIDs, promotionID)
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *TransactionRepo) promotionIDs(ctx context.Context, transactionID uuid.UUID) ([]uuid.UUID, error) {
	const query = `SELECT promotion_id FROM transaction_promotions WHERE transaction_id = $1`

	rows, _ := r.DB.Query(ctx, query, transactionID)
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (uuid.UUID, error) {
		var id uuid.UUID
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return ids, nil
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID, &t.CreatedAt, &t.Kind, &t.IssuerID, &t.ReceiverID, &t.Remark,
		&t.Spent, &t.Amount, &t.RelatedID, &t.Suspicious, &t.Processed, &t.ProcessedBy,
	)
	return t, err
}
