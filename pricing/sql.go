package pricing

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
)

type Repository struct {
	db sqlx.ExtContext
}

func NewRepository(db sqlx.ExtContext) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Active(ctx context.Context) (Rule, error) {
	var rule Rule
	err := sqlx.GetContext(ctx, r.db, &rule, getActive)
	if errors.Is(err, sql.ErrNoRows) {
		return rule, apperrors.ErrNoActivePricingRule
	}
	return rule, err
}

const getActive = `SELECT * FROM pricing_rules WHERE active`

// activate must run inside a transaction. Concurrent activations are
// serialized on an advisory lock and the last one wins.
func (r *Repository) activate(ctx context.Context, rule Rule) (Rule, error) {
	if _, err := r.db.ExecContext(ctx, lockRules); err != nil {
		return Rule{}, err
	}
	if _, err := r.db.ExecContext(ctx, deactivateRules); err != nil {
		return Rule{}, err
	}

	var out Rule
	err := sqlx.GetContext(ctx, r.db, &out, insertRule, uuid.New(),
		rule.PerMinute, rule.PerKm, rule.UnlockFee, rule.MinBalanceRequired, rule.LatePenaltyPerMin, rule.OffDockPenalty)
	return out, err
}

const lockRules = `SELECT pg_advisory_xact_lock(hashtext('pricing_rules'))`

const deactivateRules = `UPDATE pricing_rules SET active = false WHERE active`

const insertRule = `
INSERT INTO pricing_rules
    (id, per_minute, per_km, unlock_fee, min_balance_required, late_penalty_per_min, off_dock_penalty, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, true)
RETURNING *
`
