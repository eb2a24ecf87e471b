package customer

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleRider      Role = "RIDER"
	RoleTechnician Role = "TECHNICIAN"
	RoleAdmin      Role = "ADMIN"
)

func (r *Role) Scan(i any) error {
	var v string
	switch s := i.(type) {
	case string:
		v = s
	case []byte:
		v = string(s)
	}

	switch Role(v) {
	case RoleRider, RoleTechnician, RoleAdmin:
		*r = Role(v)
		return nil
	}
	return fmt.Errorf("invalid role %v", i)
}

func (r Role) Value() (driver.Value, error) {
	return string(r), nil
}

// Can reports whether r is at least as privileged as required. Admins may do
// anything a technician can.
func (r Role) Can(required Role) bool {
	rank := map[Role]int{RoleRider: 0, RoleTechnician: 1, RoleAdmin: 2}
	return rank[r] >= rank[required]
}

type Customer struct {
	ID        uuid.UUID
	Auth0ID   string         `db:"auth0_id"`
	Role      Role           `db:"role"`
	StripeID  sql.NullString `db:"stripe_id"`
	Email     sql.NullString `db:"email"`
	Name      sql.NullString `db:"name"`
	CreatedAt time.Time      `db:"created_at"`
}
