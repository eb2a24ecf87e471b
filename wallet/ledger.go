package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
)

// Ledger posts transactions inside the caller's unit of work. The wallet
// passed to Post must have been read with a row lock in that same unit.
type Ledger struct {
	repo *Repository
	now  func() time.Time
}

func NewLedger(tx sqlx.ExtContext, now func() time.Time) *Ledger {
	return &Ledger{repo: NewRepository(tx), now: now}
}

// Posting describes one logical money movement. Key identifies the business
// event so that it can be posted at most once.
type Posting struct {
	Type      Type
	Amount    decimal.Decimal
	Reference string
	Key       string
}

// Post appends a COMPLETED transaction and moves the cached balance by its
// effect. w.Balance is updated in place.
func (l *Ledger) Post(ctx context.Context, w *Wallet, p Posting) (Transaction, error) {
	t, err := l.newTransaction(w, p, StatusCompleted)
	if err != nil {
		return Transaction{}, err
	}

	next := w.Balance.Add(t.Effect())
	if next.IsNegative() {
		return Transaction{}, fmt.Errorf("%w: %s %s exceeds balance %s",
			apperrors.ErrInsufficientFunds, p.Type, p.Amount, w.Balance)
	}

	t, err = l.repo.insertTransaction(ctx, t)
	if err != nil {
		return Transaction{}, err
	}

	if err := l.repo.setBalance(ctx, w.ID, next, t.CreatedAt); err != nil {
		return Transaction{}, err
	}
	w.Balance = next

	return t, nil
}

// Record appends a transaction that has no balance effect, such as a
// declined top-up.
func (l *Ledger) Record(ctx context.Context, w Wallet, p Posting, status Status) (Transaction, error) {
	if status == StatusCompleted {
		return Transaction{}, errors.New("completed transactions must be posted")
	}

	t, err := l.newTransaction(&w, p, status)
	if err != nil {
		return Transaction{}, err
	}
	return l.repo.insertTransaction(ctx, t)
}

func (l *Ledger) newTransaction(w *Wallet, p Posting, status Status) (Transaction, error) {
	if !p.Amount.IsPositive() {
		return Transaction{}, apperrors.Invalid("amount", "must be positive, got %s", p.Amount)
	}
	if !p.Amount.Equal(p.Amount.Truncate(2)) {
		return Transaction{}, apperrors.Invalid("amount", "must not have more than 2 decimal places, got %s", p.Amount)
	}
	if p.Key == "" {
		return Transaction{}, apperrors.Invalid("idempotency key", "must be set")
	}

	return Transaction{
		ID:             uuid.New(),
		WalletID:       w.ID,
		Type:           p.Type,
		Amount:         p.Amount,
		Status:         status,
		Reference:      sql.NullString{String: p.Reference, Valid: p.Reference != ""},
		IdempotencyKey: p.Key,
		CreatedAt:      l.now(),
	}, nil
}

// Balance returns the cached balance of a wallet.
func (l *Ledger) Balance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	w, err := l.repo.GetByID(ctx, walletID)
	if err != nil {
		return decimal.Zero, err
	}
	return w.Balance, nil
}
