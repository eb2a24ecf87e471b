package dock

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
	return &Repository{
		db: db,
	}
}

func (r *Repository) GetDocks(ctx context.Context) ([]Dock, error) {
	docks := []Dock{}
	err := sqlx.SelectContext(ctx, r.db, &docks, getDocks)
	return docks, err
}

const getDocks = `SELECT * FROM docks ORDER BY name`

func (r *Repository) GetDock(ctx context.Context, id uuid.UUID) (Dock, error) {
	var dock Dock
	err := sqlx.GetContext(ctx, r.db, &dock, getDock, id)
	if errors.Is(err, sql.ErrNoRows) {
		return dock, apperrors.ErrDockNotFound
	}
	return dock, err
}

const getDock = `SELECT * FROM docks WHERE id = $1`

// GetForUpdate locks the dock so capacity checks and parking are serialized.
func (r *Repository) GetForUpdate(ctx context.Context, id uuid.UUID) (Dock, error) {
	var dock Dock
	err := sqlx.GetContext(ctx, r.db, &dock, getDockForUpdate, id)
	if errors.Is(err, sql.ErrNoRows) {
		return dock, apperrors.ErrDockNotFound
	}
	return dock, err
}

const getDockForUpdate = `SELECT * FROM docks WHERE id = $1 FOR UPDATE`

// Occupancy counts the bikes currently parked at the dock.
func (r *Repository) Occupancy(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, occupancy, id)
	return n, err
}

const occupancy = `SELECT count(*) FROM bikes WHERE dock_id = $1`
