package reservation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
	"github.com/semanticallynull/bikeshare-backend/internal/store"
)

type Repository struct {
	db sqlx.ExtContext
}

func NewRepository(db sqlx.ExtContext) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, res Reservation) (Reservation, error) {
	var out Reservation
	err := sqlx.GetContext(ctx, r.db, &out, insertReservation,
		res.ID, res.CustomerID, res.BikeID, res.DockID, res.HoldAmount, res.Status, res.StartAt, res.ExpiresAt)
	switch {
	case store.IsUniqueViolation(err, "reservations_active_bike"):
		return out, apperrors.ErrBikeUnavailable
	case store.IsUniqueViolation(err, "reservations_active_customer"):
		return out, apperrors.ErrActiveReservationExists
	}
	return out, err
}

const insertReservation = `
INSERT INTO reservations (id, customer_id, bike_id, dock_id, hold_amount, status, start_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING *
`

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Reservation, error) {
	return r.get(ctx, getReservation, id)
}

const getReservation = `SELECT * FROM reservations WHERE id = $1`

func (r *Repository) GetForUpdate(ctx context.Context, id uuid.UUID) (Reservation, error) {
	return r.get(ctx, getReservationForUpdate, id)
}

const getReservationForUpdate = `SELECT * FROM reservations WHERE id = $1 FOR UPDATE`

func (r *Repository) ActiveByCustomer(ctx context.Context, customerID uuid.UUID) (Reservation, error) {
	return r.get(ctx, activeByCustomer, customerID)
}

const activeByCustomer = `SELECT * FROM reservations WHERE customer_id = $1 AND status = 'ACTIVE'`

func (r *Repository) ActiveByBike(ctx context.Context, bikeID uuid.UUID) (Reservation, error) {
	return r.get(ctx, activeByBike, bikeID)
}

const activeByBike = `SELECT * FROM reservations WHERE bike_id = $1 AND status = 'ACTIVE'`

func (r *Repository) get(ctx context.Context, query string, arg any) (Reservation, error) {
	var res Reservation
	err := sqlx.GetContext(ctx, r.db, &res, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return res, apperrors.ErrReservationNotFound
	}
	return res, err
}

// HasOpenRide reports whether the customer is riding right now.
func (r *Repository) HasOpenRide(ctx context.Context, customerID uuid.UUID) (bool, error) {
	var open bool
	err := sqlx.GetContext(ctx, r.db, &open, hasOpenRide, customerID)
	return open, err
}

const hasOpenRide = `SELECT EXISTS (SELECT 1 FROM rides WHERE customer_id = $1 AND ended_at IS NULL)`

// DueForExpiry lists ACTIVE reservations whose window closed at or before
// now, oldest first. Unlocked ones are listed once UnlockGrace has also
// passed since the unlock.
func (r *Repository) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	err := sqlx.SelectContext(ctx, r.db, &ids, dueForExpiry, now, now.Add(-UnlockGrace), limit)
	return ids, err
}

const dueForExpiry = `
SELECT id FROM reservations
WHERE status = 'ACTIVE' AND expires_at <= $1
  AND (unlocked_at IS NULL OR unlocked_at <= $2)
ORDER BY expires_at
LIMIT $3
`

func (r *Repository) MarkUnlocked(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, markUnlocked, id, at)
	return err
}

const markUnlocked = `UPDATE reservations SET unlocked_at = $2 WHERE id = $1`

// Close moves an ACTIVE reservation to a terminal status.
func (r *Repository) Close(ctx context.Context, id uuid.UUID, status Status, at time.Time) error {
	res, err := r.db.ExecContext(ctx, closeReservation, id, status, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrReservationNotFound
	}
	return nil
}

const closeReservation = `UPDATE reservations SET status = $2, closed_at = $3 WHERE id = $1 AND status = 'ACTIVE'`
