package bike

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
)

type Repository struct {
	db sqlx.ExtContext
}

// NewRepository works on a plain handle or on a transaction.
func NewRepository(db sqlx.ExtContext) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetBike(ctx context.Context, id uuid.UUID) (Bike, error) {
	var bike Bike
	err := sqlx.GetContext(ctx, r.db, &bike, getBike, id)
	if errors.Is(err, sql.ErrNoRows) {
		return bike, apperrors.ErrBikeNotFound
	}
	return bike, err
}

const getBike = `SELECT * FROM bikes WHERE id = $1`

// GetForUpdate locks the bike row until the surrounding transaction ends.
func (r *Repository) GetForUpdate(ctx context.Context, id uuid.UUID) (Bike, error) {
	var bike Bike
	err := sqlx.GetContext(ctx, r.db, &bike, getBikeForUpdate, id)
	if errors.Is(err, sql.ErrNoRows) {
		return bike, apperrors.ErrBikeNotFound
	}
	return bike, err
}

const getBikeForUpdate = `SELECT * FROM bikes WHERE id = $1 FOR UPDATE`

func (r *Repository) ListAvailable(ctx context.Context) ([]Bike, error) {
	bikes := []Bike{}
	err := sqlx.SelectContext(ctx, r.db, &bikes, listAvailable)
	return bikes, err
}

const listAvailable = `SELECT * FROM bikes WHERE status = 'AVAILABLE' ORDER BY label`

// ListVisible returns every bike that is not in maintenance.
func (r *Repository) ListVisible(ctx context.Context) ([]Bike, error) {
	bikes := []Bike{}
	err := sqlx.SelectContext(ctx, r.db, &bikes, listVisible)
	return bikes, err
}

const listVisible = `SELECT * FROM bikes WHERE status <> 'MAINTENANCE' ORDER BY label`

// Transition applies ev to a bike read under lock. The update is guarded on
// the status that was read, so a stale bike fails instead of overwriting.
func (r *Repository) Transition(ctx context.Context, b Bike, ev Event) (Bike, error) {
	to, err := Next(b.Status, ev)
	if err != nil {
		return b, err
	}
	return r.transitionTo(ctx, b, to)
}

func (r *Repository) transitionTo(ctx context.Context, b Bike, to Status) (Bike, error) {
	res, err := r.db.ExecContext(ctx, transitionBike, b.ID, b.Status, to)
	if err != nil {
		return b, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return b, err
	}
	if n == 0 {
		return b, fmt.Errorf("%w: bike %s is no longer %s", apperrors.ErrInvalidStateTransition, b.ID, b.Status)
	}

	b.Status = to
	return b, nil
}

const transitionBike = `UPDATE bikes SET status = $3 WHERE id = $1 AND status = $2`

// lockHolder locks the ACTIVE reservation and the open ride on a bike, when
// there are any. Call it before locking the bike itself.
func (r *Repository) lockHolder(ctx context.Context, bikeID uuid.UUID) (holder, error) {
	var (
		h          holder
		unlockedAt sql.NullTime
	)
	err := sqlx.GetContext(ctx, r.db, &unlockedAt, lockActiveReservation, bikeID)
	switch {
	case err == nil:
		h.reserved, h.unlocked = true, unlockedAt.Valid
	case !errors.Is(err, sql.ErrNoRows):
		return h, err
	}

	var rideID uuid.UUID
	err = sqlx.GetContext(ctx, r.db, &rideID, lockOpenRide, bikeID)
	switch {
	case err == nil:
		h.riding = true
	case !errors.Is(err, sql.ErrNoRows):
		return h, err
	}
	return h, nil
}

const (
	lockActiveReservation = `SELECT unlocked_at FROM reservations WHERE bike_id = $1 AND status = 'ACTIVE' FOR UPDATE`
	lockOpenRide          = `SELECT id FROM rides WHERE bike_id = $1 AND ended_at IS NULL FOR UPDATE`
)

// Park records where a bike was left. A nil dockID means off-dock.
func (r *Repository) Park(ctx context.Context, id uuid.UUID, dockID *uuid.UUID, loc pgtype.Point, at time.Time) error {
	_, err := r.db.ExecContext(ctx, parkBike, id, dockID, loc, at)
	return err
}

const parkBike = `UPDATE bikes SET dock_id = $2, location = $3, last_seen_at = $4 WHERE id = $1`

// UpdatePosition stores a live position report for a bike in a ride.
func (r *Repository) UpdatePosition(ctx context.Context, id uuid.UUID, loc pgtype.Point, at time.Time) error {
	_, err := r.db.ExecContext(ctx, updatePosition, id, loc, at)
	return err
}

const updatePosition = `UPDATE bikes SET location = $2, last_seen_at = $3 WHERE id = $1`
