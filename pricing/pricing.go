// Package pricing holds the tariff and the cost function applied to rides.
package pricing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
)

// Rule is a set of rates. At most one rule is active at a time.
type Rule struct {
	ID                 uuid.UUID
	PerMinute          decimal.Decimal `db:"per_minute"`
	PerKm              decimal.Decimal `db:"per_km"`
	UnlockFee          decimal.Decimal `db:"unlock_fee"`
	MinBalanceRequired decimal.Decimal `db:"min_balance_required"`
	LatePenaltyPerMin  decimal.Decimal `db:"late_penalty_per_min"`
	OffDockPenalty     decimal.Decimal `db:"off_dock_penalty"`
	Active             bool
	CreatedAt          time.Time `db:"created_at"`
}

func (r Rule) Validate() error {
	rates := []struct {
		name  string
		value decimal.Decimal
	}{
		{"perMinute", r.PerMinute},
		{"perKm", r.PerKm},
		{"unlockFee", r.UnlockFee},
		{"latePenaltyPerMin", r.LatePenaltyPerMin},
		{"offDockPenalty", r.OffDockPenalty},
		{"minBalanceRequired", r.MinBalanceRequired},
	}
	for _, rate := range rates {
		if rate.value.IsNegative() {
			return apperrors.Invalid(rate.name, "must not be negative")
		}
		if !wholeCents(rate.value) {
			return apperrors.Invalid(rate.name, "must not have more than 2 decimal places")
		}
	}

	if !r.MinBalanceRequired.IsPositive() {
		return apperrors.Invalid("minBalanceRequired", "must be positive")
	}
	return nil
}

// Price is the cost of a ride of durationMinutes under rule. Distance is not
// billed.
func Price(durationMinutes int, rule Rule, offDock bool) decimal.Decimal {
	cost := rule.UnlockFee.Add(rule.PerMinute.Mul(decimal.NewFromInt(int64(durationMinutes))))
	if offDock {
		cost = cost.Add(rule.OffDockPenalty)
	}
	return cost
}

// Minutes is the number of whole minutes elapsed between from and to.
func Minutes(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / time.Minute)
}

// Money is stored as NUMERIC(12,2). Anything finer would be rounded away.
func wholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}
