// Package payment collects wallet top-ups from a card provider.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	stripecustomer "github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/setupintent"

	"github.com/semanticallynull/bikeshare-backend/customer"
	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
	"github.com/semanticallynull/bikeshare-backend/wallet"
)

var ErrNoPaymentMethod = errors.New("no payment method on file")

// Direct credits top-ups without collecting money. It is used when no card
// provider is configured.
type Direct struct{}

func (Direct) Fund(context.Context, wallet.FundRequest) (string, error) {
	return "direct", nil
}

type stripeIDStore interface {
	AddStripeID(ctx context.Context, id uuid.UUID, stripeID string) error
}

// Stripe charges the customer's saved card off-session. stripe.Key must be
// set before use.
type Stripe struct {
	customers stripeIDStore
}

func NewStripe(customers stripeIDStore) *Stripe {
	return &Stripe{customers: customers}
}

func (s *Stripe) Fund(_ context.Context, req wallet.FundRequest) (string, error) {
	if req.PayerRef == "" {
		return "", fmt.Errorf("%w: customer has no stripe account", ErrNoPaymentMethod)
	}

	methods := stripecustomer.ListPaymentMethods(&stripe.CustomerListPaymentMethodsParams{
		Customer: stripe.String(req.PayerRef),
	})
	if !methods.Next() {
		if err := methods.Err(); err != nil {
			return "", err
		}
		return "", ErrNoPaymentMethod
	}

	params := &stripe.PaymentIntentParams{
		Customer:      stripe.String(req.PayerRef),
		PaymentMethod: stripe.String(methods.PaymentMethod().ID),
		Amount:        stripe.Int64(req.Amount.Shift(2).IntPart()),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
	}
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := paymentintent.New(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.Type == stripe.ErrorTypeCard {
			return "", fmt.Errorf("%w: %s", apperrors.ErrPaymentDeclined, serr.Msg)
		}
		return "", err
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return pi.ID, fmt.Errorf("%w: payment intent is %s", apperrors.ErrPaymentDeclined, pi.Status)
	}
	return pi.ID, nil
}

type SetupResult struct {
	CustomerID   string `json:"customerId"`
	ClientSecret string `json:"setupIntent"`
}

// Setup starts saving a card for later top-ups, creating the stripe customer
// on first use.
func (s *Stripe) Setup(ctx context.Context, cust customer.Customer) (SetupResult, error) {
	stripeID := cust.StripeID.String
	if !cust.StripeID.Valid {
		sc, err := stripecustomer.New(&stripe.CustomerParams{
			Email: stripe.String(cust.Email.String),
			Metadata: map[string]string{
				"auth0_id": cust.Auth0ID,
				"id":       cust.ID.String(),
			},
		})
		if err != nil {
			return SetupResult{}, fmt.Errorf("create stripe customer: %w", err)
		}
		if err := s.customers.AddStripeID(ctx, cust.ID, sc.ID); err != nil {
			return SetupResult{}, err
		}
		stripeID = sc.ID
	}

	si, err := setupintent.New(&stripe.SetupIntentParams{
		Customer: stripe.String(stripeID),
		AutomaticPaymentMethods: &stripe.SetupIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	})
	if err != nil {
		return SetupResult{}, fmt.Errorf("create setup intent: %w", err)
	}

	return SetupResult{CustomerID: stripeID, ClientSecret: si.ClientSecret}, nil
}
