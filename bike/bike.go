// Package bike
package bike

import (
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Type int

const (
	Standard Type = iota
	EBike
)

func (t Type) String() string {
	return [...]string{"STANDARD", "E_BIKE"}[t]
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Type) Scan(i any) error {
	var v string
	switch s := i.(type) {
	case string:
		v = s
	case []byte:
		v = string(s)
	}

	switch v {
	case "STANDARD":
		*t = Standard
		return nil
	case "E_BIKE":
		*t = EBike
		return nil
	}
	return fmt.Errorf("invalid bike type %v", i)
}

func (t Type) Value() (driver.Value, error) {
	return t.String(), nil
}

type Status string

const (
	StatusAvailable   Status = "AVAILABLE"
	StatusReserved    Status = "RESERVED"
	StatusInRide      Status = "IN_RIDE"
	StatusMaintenance Status = "MAINTENANCE"
)

// Bike represents a physical bike in the fleet.
type Bike struct {
	ID uuid.UUID
	// Label is a physical label which is on the bike (e.g. "CARGO-123").
	Label  string
	Type   Type
	Status Status

	// BatteryPct is only reported by e-bikes.
	BatteryPct *int `db:"battery_pct"`

	// Location holds latitude in X and longitude in Y.
	Location pgtype.Point

	// DockID is nil while the bike is off-dock.
	DockID     *uuid.UUID   `db:"dock_id"`
	LastSeenAt sql.NullTime `db:"last_seen_at"`

	// DisplayName is a user-friendly name for the bike model.
	DisplayName *string `db:"display_name"`
}

func (b Bike) Lat() float64 {
	return b.Location.P.X
}

func (b Bike) Lng() float64 {
	return b.Location.P.Y
}

// Point builds a location value from latitude and longitude.
func Point(lat, lng float64) pgtype.Point {
	return pgtype.Point{P: pgtype.Vec2{X: lat, Y: lng}, Valid: true}
}
