package dock

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Type int

const (
	Public Type = iota
	Private
)

// Dock is a fixed parking point. A bike returned anywhere else is off-dock.
type Dock struct {
	ID       uuid.UUID
	Name     string
	Address  string
	Location pgtype.Point
	Capacity int
	Type     Type
}

func (t Type) String() string {
	return [...]string{"public", "private"}[t]
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
	case "public":
		*t = Public
		return nil
	case "private":
		*t = Private
		return nil
	}
	return fmt.Errorf("invalid dock type %v", i)
}

func (t Type) Value() (driver.Value, error) {
	return t.String(), nil
}
