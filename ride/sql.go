package ride

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
	"github.com/semanticallynull/bikeshare-backend/internal/store"
)

type Repository struct {
	db sqlx.ExtContext
}

func NewRepository(db sqlx.ExtContext) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) Insert(ctx context.Context, ride Ride) (Ride, error) {
	var out Ride
	err := sqlx.GetContext(ctx, r.db, &out, startRideQuery,
		ride.ID, ride.CustomerID, ride.BikeID, ride.ReservationID, ride.StartDockID, ride.StartLocation, ride.StartedAt)
	switch {
	case store.IsUniqueViolation(err, "rides_open_bike"), store.IsUniqueViolation(err, "rides_open_customer"):
		return out, apperrors.ErrRideInProgress
	case store.IsUniqueViolation(err, "rides_reservation_id_key"):
		return out, apperrors.ErrReservationNotFound
	}
	return out, err
}

const startRideQuery = `
INSERT INTO rides (id, customer_id, bike_id, reservation_id, start_dock_id, start_location, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING *
`

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Ride, error) {
	return r.get(ctx, getRide, id)
}

const getRide = `SELECT * FROM rides WHERE id = $1`

func (r *Repository) GetForUpdate(ctx context.Context, id uuid.UUID) (Ride, error) {
	return r.get(ctx, getRideForUpdate, id)
}

const getRideForUpdate = `SELECT * FROM rides WHERE id = $1 FOR UPDATE`

// Open returns the customer's ride in progress.
func (r *Repository) Open(ctx context.Context, customerID uuid.UUID) (Ride, error) {
	return r.get(ctx, getOpenRide, customerID)
}

const getOpenRide = `SELECT * FROM rides WHERE customer_id = $1 AND ended_at IS NULL`

func (r *Repository) get(ctx context.Context, query string, arg any) (Ride, error) {
	var ride Ride
	err := sqlx.GetContext(ctx, r.db, &ride, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return ride, apperrors.ErrRideNotFound
	}
	return ride, err
}

func (r *Repository) History(ctx context.Context, customerID uuid.UUID) ([]Ride, error) {
	rides := []Ride{}
	err := sqlx.SelectContext(ctx, r.db, &rides, rideHistory, customerID)
	return rides, err
}

const rideHistory = `SELECT * FROM rides WHERE customer_id = $1 ORDER BY started_at DESC`

// Finish writes the end-of-ride fields. It fails with ErrRideAlreadyEnded if
// they were already written.
func (r *Repository) Finish(ctx context.Context, ride Ride) (Ride, error) {
	var out Ride
	err := sqlx.GetContext(ctx, r.db, &out, endRideQuery, ride.ID, ride.EndedAt, ride.EndDockID, ride.EndLocation,
		ride.DurationMin, ride.DistanceKm, ride.Cost, ride.Charged, ride.Unpaid, ride.PricingRuleID)
	if errors.Is(err, sql.ErrNoRows) {
		return out, apperrors.ErrRideAlreadyEnded
	}
	return out, err
}

const endRideQuery = `
UPDATE rides
SET ended_at = $2, end_dock_id = $3, end_location = $4, duration_min = $5, distance_km = $6,
    cost = $7, charged = $8, unpaid = $9, pricing_rule_id = $10
WHERE id = $1 AND ended_at IS NULL
RETURNING *
`
