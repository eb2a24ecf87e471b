package customer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
	"github.com/semanticallynull/bikeshare-backend/internal/auth0"
	"github.com/semanticallynull/bikeshare-backend/internal/store"
	"github.com/semanticallynull/bikeshare-backend/wallet"
)

// Resolver maps an authenticated subject to a customer, provisioning the
// customer and their wallet on first sight.
type Resolver struct {
	db       *store.DB
	profiles auth0.Client
	currency string
	logger   *slog.Logger
}

// NewResolver builds a Resolver. profiles may be nil, in which case new
// customers are created without email or name.
func NewResolver(db *store.DB, profiles auth0.Client, currency string, logger *slog.Logger) *Resolver {
	return &Resolver{
		db:       db,
		profiles: profiles,
		currency: currency,
		logger:   logger,
	}
}

func (r *Resolver) Resolve(ctx context.Context, subject, accessToken string) (Customer, error) {
	cust, err := NewRepository(r.db.Reader()).GetByAuth0ID(ctx, subject)
	if err == nil {
		return cust, nil
	}
	if !errors.Is(err, apperrors.ErrCustomerNotFound) {
		return cust, err
	}

	err = r.db.InTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		cust, err = NewRepository(tx).Create(ctx, subject, RoleRider)
		if err != nil {
			return err
		}
		_, err = wallet.NewRepository(tx).Create(ctx, cust.ID, r.currency)
		return err
	})
	if store.IsUniqueViolation(err, "customers_auth0_id_key") {
		// Another request provisioned the same subject first.
		return NewRepository(r.db.Reader()).GetByAuth0ID(ctx, subject)
	}
	if err != nil {
		return cust, err
	}

	r.logger.InfoContext(ctx, "customer provisioned", "customerId", cust.ID)
	r.fillProfile(ctx, &cust, subject, accessToken)
	return cust, nil
}

// fillProfile is best effort. A missing profile does not block the request.
// A profile for another subject is ignored.
func (r *Resolver) fillProfile(ctx context.Context, cust *Customer, subject, accessToken string) {
	if r.profiles == nil || accessToken == "" {
		return
	}

	info, err := r.profiles.Profile(ctx, accessToken)
	if err != nil {
		r.logger.WarnContext(ctx, "fetching profile", "customerId", cust.ID, "error", err)
		return
	}
	if info.Subject != subject {
		r.logger.WarnContext(ctx, "profile belongs to another subject", "customerId", cust.ID)
		return
	}

	if err := NewRepository(r.db.Reader()).UpdateProfile(ctx, cust.ID, info.Email, info.Name); err != nil {
		r.logger.WarnContext(ctx, "saving profile", "customerId", cust.ID, "error", err)
		return
	}
	cust.Email.String, cust.Email.Valid = info.Email, info.Email != ""
	cust.Name.String, cust.Name.Valid = info.Name, info.Name != ""
}
