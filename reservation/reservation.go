// Package reservation creates time-bounded holds on bikes and releases the
// ones that are never ridden.
package reservation

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

const (
	MinDuration = 15
	MaxDuration = 480
)

// UnlockGrace is how long an unlocked bike may stand without a ride before
// the reservation is released. It never cuts the reserved window short.
const UnlockGrace = 10 * time.Minute

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

type Reservation struct {
	ID         uuid.UUID
	CustomerID uuid.UUID `db:"customer_id"`
	BikeID     uuid.UUID `db:"bike_id"`
	// DockID is where the bike was parked when it was reserved.
	DockID     *uuid.UUID      `db:"dock_id"`
	HoldAmount decimal.Decimal `db:"hold_amount"`
	Status     Status
	StartAt    time.Time    `db:"start_at"`
	ExpiresAt  time.Time    `db:"expires_at"`
	UnlockedAt sql.NullTime `db:"unlocked_at"`
	ClosedAt   sql.NullTime `db:"closed_at"`
}

// Expired reports whether the reservation window has passed at now.
func (r Reservation) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// ReleaseAt is when the sweeper may release the reservation.
func (r Reservation) ReleaseAt() time.Time {
	if r.UnlockedAt.Valid {
		if grace := r.UnlockedAt.Time.Add(UnlockGrace); grace.After(r.ExpiresAt) {
			return grace
		}
	}
	return r.ExpiresAt
}

// HoldKey identifies the HOLD posted when the reservation was made.
func HoldKey(id uuid.UUID) string {
	return "reservation:" + id.String() + ":hold"
}

// ReleaseKey identifies the REFUND that gives the hold back. Expiry and ride
// end share it so a hold is released at most once.
func ReleaseKey(id uuid.UUID) string {
	return "reservation:" + id.String() + ":release"
}

// UnlockCode is shown to the rider. It is not a secret.
type UnlockCode struct {
	Code          string    `json:"code"`
	BikeID        uuid.UUID `json:"bikeId"`
	ReservationID uuid.UUID `json:"reservationId"`
}

func NewUnlockCode(at time.Time) string {
	return "UNLOCK-" + ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}
