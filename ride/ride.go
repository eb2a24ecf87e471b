// Package ride runs a ride from the unlocked reservation to final billing.
package ride

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type Ride struct {
	ID            uuid.UUID
	CustomerID    uuid.UUID    `db:"customer_id"`
	BikeID        uuid.UUID    `db:"bike_id"`
	ReservationID uuid.UUID    `db:"reservation_id"`
	StartDockID   *uuid.UUID   `db:"start_dock_id"`
	StartLocation pgtype.Point `db:"start_location"`
	StartedAt     time.Time    `db:"started_at"`

	// Everything below is written once, when the ride ends.
	EndedAt     sql.NullTime `db:"ended_at"`
	EndDockID   *uuid.UUID   `db:"end_dock_id"`
	EndLocation pgtype.Point `db:"end_location"`
	DurationMin *int         `db:"duration_min"`
	// DistanceKm is the straight-line distance between start and end.
	DistanceKm decimal.NullDecimal `db:"distance_km"`
	// Cost is the full price. Charged is what the wallet covered and Unpaid
	// the remainder moved to arrears.
	Cost          decimal.NullDecimal `db:"cost"`
	Charged       decimal.NullDecimal `db:"charged"`
	Unpaid        decimal.NullDecimal `db:"unpaid"`
	PricingRuleID *uuid.UUID          `db:"pricing_rule_id"`
}

func (r Ride) Ended() bool {
	return r.EndedAt.Valid
}

// OffDock reports whether an ended ride left its bike outside a dock.
func (r Ride) OffDock() bool {
	return r.Ended() && r.EndDockID == nil
}

// Estimate is a live price for a ride in progress. It is never persisted.
type Estimate struct {
	DurationMinutes int             `json:"durationMinutes"`
	EstimatedCost   decimal.Decimal `json:"estimatedCost"`
}

// EndRequest says where the bike was left. A nil DockID is an off-dock return.
type EndRequest struct {
	DockID *uuid.UUID
	Lat    float64
	Lng    float64
}

func ChargeKey(id uuid.UUID) string {
	return "ride:" + id.String() + ":charge"
}
