package customer

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

func (r *Repository) GetByAuth0ID(ctx context.Context, auth0ID string) (Customer, error) {
	return r.get(ctx, getCustomerByAuth0IDQuery, auth0ID)
}

const getCustomerByAuth0IDQuery = "SELECT * FROM customers WHERE auth0_id = $1"

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Customer, error) {
	return r.get(ctx, getCustomerByIDQuery, id)
}

const getCustomerByIDQuery = "SELECT * FROM customers WHERE id = $1"

func (r *Repository) get(ctx context.Context, query string, arg any) (Customer, error) {
	var customer Customer
	err := sqlx.GetContext(ctx, r.db, &customer, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return customer, apperrors.ErrCustomerNotFound
	}
	return customer, err
}

func (r *Repository) Create(ctx context.Context, auth0ID string, role Role) (Customer, error) {
	var customer Customer
	err := sqlx.GetContext(ctx, r.db, &customer, createCustomerQuery, uuid.New(), auth0ID, role)
	return customer, err
}

const createCustomerQuery = "INSERT INTO customers (id, auth0_id, role) VALUES ($1, $2, $3) RETURNING *"

func (r *Repository) AddStripeID(ctx context.Context, id uuid.UUID, stripeID string) error {
	_, err := r.db.ExecContext(ctx, addStripeIDToCustomerQuery, stripeID, id)
	return err
}

const addStripeIDToCustomerQuery = "UPDATE customers SET stripe_id = $1 WHERE id = $2"

func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, email, name string) error {
	_, err := r.db.ExecContext(ctx, updateProfileQuery, email, name, id)
	return err
}

const updateProfileQuery = `UPDATE customers SET email = NULLIF($1, ''), name = NULLIF($2, '') WHERE id = $3`
