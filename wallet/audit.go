package wallet

import (
	"context"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Report compares a wallet's cached balance with its ledger.
type Report struct {
	Wallet       Wallet
	Transactions []Transaction
	LedgerSum    decimal.Decimal
}

func (r Report) Consistent() bool {
	return r.Wallet.Balance.Equal(r.LedgerSum)
}

// Dump renders the full report for logs and test failures.
func (r Report) Dump() string {
	return spew.Sdump(r)
}

// Audit recomputes the balance of a wallet from its transactions.
func Audit(ctx context.Context, db sqlx.ExtContext, walletID uuid.UUID) (Report, error) {
	repo := NewRepository(db)

	w, err := repo.GetByID(ctx, walletID)
	if err != nil {
		return Report{}, err
	}

	txs, err := repo.listAll(ctx, walletID)
	if err != nil {
		return Report{}, err
	}

	sum := decimal.Zero
	for _, t := range txs {
		sum = sum.Add(t.Effect())
	}

	return Report{Wallet: w, Transactions: txs, LedgerSum: sum}, nil
}
