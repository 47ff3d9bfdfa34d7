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
)

type EventRepo struct {
	DB DBTX
}

const eventColumns = `id, created_at, name, description, starts_at, ends_at, points_remain, points_awarded`

const createEvent = `-- name: CreateEvent
INSERT INTO events (id, name, description, starts_at, ends_at, points_remain, points_awarded)
VALUES ($1, $2, $3, $4, $5, $6, 0)
RETURNING ` + eventColumns

func (r *EventRepo) Create(ctx context.Context, e models.Event) (models.Event, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createEvent, e.ID, e.Name, e.Description, e.StartsAt, e.EndsAt, e.PointsRemain)
	created, err := pgx.CollectOneRow(rows, rowToEvent)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getEventByID = `-- name: GetEventByID
SELECT ` + eventColumns + `
FROM events
WHERE id = $1
`

func (r *EventRepo) GetByID(ctx context.Context, id uuid.UUID) (models.Event, error) {
	rows, _ := r.DB.Query(ctx, getEventByID, id)
	event, err := pgx.CollectOneRow(rows, rowToEvent)

	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		return event, apperrors.ErrEventNotFound
	default:
		return event, fmt.Errorf("db error: %w", err)
	}

	event.GuestIDs, err = r.memberIDs(ctx, "event_guests", id)
	if err != nil {
		return event, err
	}
	event.OrganizerIDs, err = r.memberIDs(ctx, "event_organizers", id)
	return event, err
}

func (r *EventRepo) AddGuest(ctx context.Context, eventID uuid.UUID, userID uuid.UUID) error {
	return r.addMember(ctx, "event_guests", eventID, userID)
}

const removeGuest = `-- name: RemoveGuest
DELETE FROM event_guests
WHERE event_id = $1 AND user_id = $2
`

func (r *EventRepo) RemoveGuest(ctx context.Context, eventID uuid.UUID, userID uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, removeGuest, eventID, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrGuestNotFound
	}
	return nil
}

func (r *EventRepo) AddOrganizer(ctx context.Context, eventID uuid.UUID, userID uuid.UUID) error {
	return r.addMember(ctx, "event_organizers", eventID, userID)
}

const takePoints = `-- name: TakePoints
UPDATE events
SET points_remain = points_remain - $2, points_awarded = points_awarded + $2
WHERE id = $1 AND points_remain >= $2
RETURNING ` + eventColumns

func (r *EventRepo) TakePoints(ctx context.Context, eventID uuid.UUID, amount int64) (models.Event, error) {
	rows, _ := r.DB.Query(ctx, takePoints, eventID, amount)
	event, err := pgx.CollectOneRow(rows, rowToEvent)

	switch {
	case err == nil:
		return event, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Guard rejected the update: either the pool is short or no such event
		if _, getErr := r.GetByID(ctx, eventID); getErr != nil {
			return event, getErr
		}
		return event, apperrors.ErrEventPoolInsufficient
	default:
		return event, fmt.Errorf("db error: %w", err)
	}
}

func (r *EventRepo) addMember(ctx context.Context, table string, eventID uuid.UUID, userID uuid.UUID) error {
	query := fmt.Sprintf(`INSERT INTO %s (event_id, user_id) VALUES ($1, $2)`, table)

	_, err := r.DB.Exec(ctx, query, eventID, userID)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation:
		return apperrors.ErrGuestAlreadyAdded
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation:
		if strings.Contains(pgErr.ConstraintName, "event_id") {
			return apperrors.ErrEventNotFound
		}
		return apperrors.ErrUserNotFound
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

func (r *EventRepo) memberIDs(ctx context.Context, table string, eventID uuid.UUID) ([]uuid.UUID, error) {
	query := fmt.Sprintf(`SELECT user_id FROM %s WHERE event_id = $1 ORDER BY user_id`, table)

	rows, _ := r.DB.Query(ctx, query, eventID)
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

func rowToEvent(row pgx.CollectableRow) (models.Event, error) {
	var e models.Event
	err := row.Scan(
		&e.ID, &e.CreatedAt, &e.Name, &e.Description,
		&e.StartsAt, &e.EndsAt, &e.PointsRemain, &e.PointsAwarded,
	)
	return e, err
}
