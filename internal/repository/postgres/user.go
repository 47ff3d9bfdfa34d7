package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/apexrewards/pointsledger/internal/apperrors"
	"github.com/apexrewards/pointsledger/internal/models"
	"github.com/apexrewards/pointsledger/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

const createUser = `-- name: CreateUser
INSERT INTO users (id, handle, role, verified)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at, handle, role, points, verified, suspicious, last_login
`

func (r *UserRepo) Create(ctx context.Context, arg repository.CreateUserParams) (models.User, error) {
	role := arg.Role
	if role == "" {
		role = models.RoleRegular
	}

	rows, _ := r.DB.Query(ctx, createUser, uuid.New(), arg.Handle, role, arg.Verified)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return user, apperrors.ErrUserAlreadyExists
		}
		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT id, created_at, handle, role, points, verified, suspicious, last_login
FROM users
WHERE id = $1
`

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, id)
	return collectUser(rows)
}

const getUserByHandle = `-- name: GetUserByHandle
SELECT id, created_at, handle, role, points, verified, suspicious, last_login
FROM users
WHERE handle = $1
`

func (r *UserRepo) GetByHandle(ctx context.Context, handle string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByHandle, handle)
	return collectUser(rows)
}

const addPoints = `-- name: AddPoints
UPDATE users
SET points = points + $2
WHERE id = $1
RETURNING id, created_at, handle, role, points, verified, suspicious, last_login
`

func (r *UserRepo) AddPoints(ctx context.Context, id uuid.UUID, delta int64) (models.User, error) {
	rows, _ := r.DB.Query(ctx, addPoints, id, delta)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	case isCheckViolation(err):
		return user, apperrors.ErrBalanceInsufficient
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func (r *UserRepo) TransferPoints(ctx context.Context, fromID uuid.UUID, toID uuid.UUID, amount int64) error {
	type step struct {
		id    uuid.UUID
		delta int64
	}

	// Update in id order so opposite-direction transfers take row locks
	// in the same sequence and cannot deadlock
	steps := []step{{fromID, -amount}, {toID, amount}}
	if bytes.Compare(toID[:], fromID[:]) < 0 {
		steps[0], steps[1] = steps[1], steps[0]
	}

	for _, s := range steps {
		if _, err := r.AddPoints(ctx, s.id, s.delta); err != nil {
			return err
		}
	}

	return nil
}

const setUserRole = `-- name: SetUserRole
UPDATE users
SET role = $2
WHERE id = $1
RETURNING id, created_at, handle, role, points, verified, suspicious, last_login
`

func (r *UserRepo) SetRole(ctx context.Context, id uuid.UUID, role string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, setUserRole, id, role)
	return collectUser(rows)
}

const setUserVerified = `-- name: SetUserVerified
UPDATE users
SET verified = true
WHERE id = $1
RETURNING id, created_at, handle, role, points, verified, suspicious, last_login
`

func (r *UserRepo) SetVerified(ctx context.Context, id uuid.UUID) (models.User, error) {
	rows, _ := r.DB.Query(ctx, setUserVerified, id)
	return collectUser(rows)
}

const setUserSuspicious = `-- name: SetUserSuspicious
UPDATE users
SET suspicious = $2
WHERE id = $1
RETURNING id, created_at, handle, role, points, verified, suspicious, last_login
`

func (r *UserRepo) SetSuspicious(ctx context.Context, id uuid.UUID, suspicious bool) (models.User, error) {
	rows, _ := r.DB.Query(ctx, setUserSuspicious, id, suspicious)
	return collectUser(rows)
}

const recordLogin = `-- name: RecordLogin
UPDATE users
SET last_login = $2
WHERE id = $1
`

func (r *UserRepo) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.DB.Exec(ctx, recordLogin, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func collectUser(rows pgx.Rows) (models.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Handle, &u.Role, &u.Points, &u.Verified, &u.Suspicious, &u.LastLogin)
	return u, err
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation
}
