package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
	"github.com/semanticallynull/bikeshare-backend/internal/store"
)

const transactionsPageSize = 50

var (
	MinTopUp = decimal.NewFromInt(10)
	MaxTopUp = decimal.NewFromInt(5000)
)

// FundRequest asks a payment provider to collect money for a top-up.
type FundRequest struct {
	// PayerRef is the provider's id for the paying customer.
	PayerRef       string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
}

// Funder collects top-up money. It returns the provider's payment reference.
// A declined payment is reported as apperrors.ErrPaymentDeclined.
type Funder interface {
	Fund(ctx context.Context, req FundRequest) (string, error)
}

type Service struct {
	db     *store.DB
	funder Funder
	logger *slog.Logger
	Now    func() time.Time
}

func NewService(db *store.DB, funder Funder, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		funder: funder,
		logger: logger,
		Now:    time.Now,
	}
}

func (s *Service) Balance(ctx context.Context, customerID uuid.UUID) (Wallet, error) {
	return NewRepository(s.db.Reader()).GetByCustomer(ctx, customerID)
}

// Transactions returns the latest transactions, newest first.
func (s *Service) Transactions(ctx context.Context, customerID uuid.UUID) ([]Transaction, error) {
	repo := NewRepository(s.db.Reader())
	w, err := repo.GetByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return repo.ListTransactions(ctx, w.ID, transactionsPageSize)
}

// TopUpKey identifies a top-up request. The same key is handed to the
// payment provider, so retrying a request never collects twice.
func TopUpKey(requestID uuid.UUID) string {
	return "topup:" + requestID.String()
}

// SettledKey identifies the COMPLETED or FAILED row that closes the PENDING
// top-up posted under key.
func SettledKey(key string) string {
	return key + ":settled"
}

func validateTopUp(amount decimal.Decimal) error {
	if amount.LessThan(MinTopUp) || amount.GreaterThan(MaxTopUp) {
		return apperrors.Invalid("amount", "must be between %s and %s", MinTopUp, MaxTopUp)
	}
	if !amount.Equal(amount.Truncate(2)) {
		return apperrors.Invalid("amount", "must not have more than 2 decimal places")
	}
	return nil
}

// TopUp collects amount through the funder and credits the wallet. Arrears
// left by earlier rides are collected from the new balance in the same unit.
//
// A PENDING row is written before the provider is called and a second row
// settles it. Calling TopUp again with the same requestID resumes the
// request: the provider sees the same idempotency key and the wallet is
// credited once. A zero requestID starts a new request.
func (s *Service) TopUp(ctx context.Context, customerID, requestID uuid.UUID, payerRef string, amount decimal.Decimal) (Transaction, error) {
	ctx, span := otel.Tracer("wallet").Start(ctx, "TopUp")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerID.String()))

	if err := validateTopUp(amount); err != nil {
		return Transaction{}, err
	}
	if requestID == uuid.Nil {
		requestID = uuid.New()
	}
	key := TopUpKey(requestID)

	w, t, err := s.beginTopUp(ctx, customerID, key, amount)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Transaction{}, err
	}
	if t.Status != StatusPending {
		return settled(t)
	}

	ref, fundErr := s.funder.Fund(ctx, FundRequest{
		PayerRef:       payerRef,
		Amount:         amount,
		Currency:       w.Currency,
		IdempotencyKey: key,
	})
	if fundErr != nil && !errors.Is(fundErr, apperrors.ErrPaymentDeclined) {
		// Nothing is settled and the request can be retried.
		span.SetStatus(codes.Error, fundErr.Error())
		return t, fmt.Errorf("fund top-up: %w", fundErr)
	}

	var out Transaction
	err = s.db.InTx(ctx, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)
		locked, err := repo.GetByCustomerForUpdate(ctx, customerID)
		if err != nil {
			return err
		}
		out, err = repo.transactionByKey(ctx, SettledKey(key))
		if err == nil {
			// A concurrent retry settled it first.
			return nil
		}
		if !errors.Is(err, errNoTransaction) {
			return err
		}

		ledger := NewLedger(tx, s.Now)
		outcome := Posting{
			Type:      TypeTopUp,
			Amount:    amount,
			Reference: ref,
			Key:       SettledKey(key),
		}
		if fundErr != nil {
			out, err = ledger.Record(ctx, locked, outcome, StatusFailed)
			return err
		}

		out, err = ledger.Post(ctx, &locked, outcome)
		if err != nil {
			return err
		}
		return s.collectArrears(ctx, tx, ledger, &locked, key)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "top-up funded but not settled",
			"customerId", customerID, "key", key, "reference", ref, "error", err)
		span.SetStatus(codes.Error, err.Error())
		return t, err
	}

	if out.Status == StatusFailed {
		s.logger.InfoContext(ctx, "top-up declined", "customerId", customerID, "amount", amount)
	}
	return settled(out)
}

func settled(t Transaction) (Transaction, error) {
	if t.Status == StatusFailed {
		return t, fmt.Errorf("%w: top-up %s", apperrors.ErrPaymentDeclined, t.IdempotencyKey)
	}
	return t, nil
}

// beginTopUp returns the row that settled key, or the PENDING row an earlier
// attempt left behind, or records a new PENDING row.
func (s *Service) beginTopUp(ctx context.Context, customerID uuid.UUID, key string, amount decimal.Decimal) (Wallet, Transaction, error) {
	var (
		w Wallet
		t Transaction
	)
	err := s.db.InTx(ctx, func(tx *sqlx.Tx) error {
		repo := NewRepository(tx)
		var err error
		w, err = repo.GetByCustomerForUpdate(ctx, customerID)
		if err != nil {
			return err
		}

		for _, k := range []string{SettledKey(key), key} {
			t, err = repo.transactionByKey(ctx, k)
			if errors.Is(err, errNoTransaction) {
				continue
			}
			if err != nil {
				return err
			}
			if t.WalletID != w.ID || t.Type != TypeTopUp || !t.Amount.Equal(amount) {
				return apperrors.Invalid("requestId", "already used for a different top-up")
			}
			return nil
		}

		t, err = NewLedger(tx, s.Now).Record(ctx, w, Posting{
			Type:   TypeTopUp,
			Amount: amount,
			Key:    key,
		}, StatusPending)
		return err
	})
	return w, t, err
}

func (s *Service) collectArrears(ctx context.Context, tx *sqlx.Tx, ledger *Ledger, w *Wallet, key string) error {
	if !w.Arrears.IsPositive() {
		return nil
	}

	collect := decimal.Min(w.Arrears, w.Balance)
	if _, err := ledger.Post(ctx, w, Posting{
		Type:      TypePenalty,
		Amount:    collect,
		Reference: "arrears",
		Key:       key + ":arrears",
	}); err != nil {
		return err
	}

	w.Arrears = w.Arrears.Sub(collect)
	return NewRepository(tx).SetArrears(ctx, w.ID, w.Arrears)
}

// Audit checks the customer's cached balance against the ledger.
func (s *Service) Audit(ctx context.Context, customerID uuid.UUID) (Report, error) {
	w, err := s.Balance(ctx, customerID)
	if err != nil {
		return Report{}, err
	}

	report, err := Audit(ctx, s.db.Reader(), w.ID)
	if err != nil {
		return report, err
	}
	if !report.Consistent() {
		s.logger.ErrorContext(ctx, "wallet ledger mismatch", "walletId", w.ID, "report", report.Dump())
	}
	return report, nil
}
