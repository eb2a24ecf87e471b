// Package wallet keeps prepaid balances and the append-only ledger behind
// them. A wallet's cached balance always equals the summed effect of its
// COMPLETED transactions.
package wallet

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeTopUp   Type = "TOPUP"
	TypeHold    Type = "HOLD"
	TypeCharge  Type = "CHARGE"
	TypeRefund  Type = "REFUND"
	TypePenalty Type = "PENALTY"
)

// Credit reports whether the type adds to the balance.
func (t Type) Credit() bool {
	return t == TypeTopUp || t == TypeRefund
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

type Wallet struct {
	ID         uuid.UUID
	CustomerID uuid.UUID `db:"customer_id"`
	Balance    decimal.Decimal
	// Arrears is ride cost the balance could not cover. It is collected
	// from the next top-up.
	Arrears   decimal.Decimal
	Currency  string
	UpdatedAt time.Time `db:"updated_at"`
}

type Transaction struct {
	ID             uuid.UUID
	Seq            int64
	WalletID       uuid.UUID `db:"wallet_id"`
	Type           Type
	Amount         decimal.Decimal
	Status         Status
	Reference      sql.NullString
	IdempotencyKey string    `db:"idempotency_key"`
	CreatedAt      time.Time `db:"created_at"`
}

// Effect is the signed change the transaction made to its wallet balance.
func (t Transaction) Effect() decimal.Decimal {
	if t.Status != StatusCompleted {
		return decimal.Zero
	}
	if t.Type.Credit() {
		return t.Amount
	}
	return t.Amount.Neg()
}
