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
	"github.com/semanticallynull/bikeshare-backend/internal/store"
)

type Repository struct {
	db sqlx.ExtContext
}

func NewRepository(db sqlx.ExtContext) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, customerID uuid.UUID, currency string) (Wallet, error) {
	var w Wallet
	err := sqlx.GetContext(ctx, r.db, &w, createWallet, uuid.New(), customerID, currency)
	return w, err
}

const createWallet = `INSERT INTO wallets (id, customer_id, currency) VALUES ($1, $2, $3) RETURNING *`

func (r *Repository) GetByCustomer(ctx context.Context, customerID uuid.UUID) (Wallet, error) {
	return r.get(ctx, getByCustomer, customerID)
}

const getByCustomer = `SELECT * FROM wallets WHERE customer_id = $1`

// GetByCustomerForUpdate locks the wallet row until the transaction ends.
func (r *Repository) GetByCustomerForUpdate(ctx context.Context, customerID uuid.UUID) (Wallet, error) {
	return r.get(ctx, getByCustomerForUpdate, customerID)
}

const getByCustomerForUpdate = `SELECT * FROM wallets WHERE customer_id = $1 FOR UPDATE`

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Wallet, error) {
	return r.get(ctx, getByID, id)
}

const getByID = `SELECT * FROM wallets WHERE id = $1`

func (r *Repository) get(ctx context.Context, query string, arg any) (Wallet, error) {
	var w Wallet
	err := sqlx.GetContext(ctx, r.db, &w, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return w, apperrors.ErrWalletNotFound
	}
	return w, err
}

func (r *Repository) SetArrears(ctx context.Context, id uuid.UUID, arrears decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, setArrears, id, arrears)
	return err
}

const setArrears = `UPDATE wallets SET arrears = $2 WHERE id = $1`

func (r *Repository) setBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, at time.Time) error {
	_, err := r.db.ExecContext(ctx, setBalance, id, balance, at)
	return err
}

const setBalance = `UPDATE wallets SET balance = $2, updated_at = $3 WHERE id = $1`

func (r *Repository) insertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	var out Transaction
	err := sqlx.GetContext(ctx, r.db, &out, insertTransaction,
		t.ID, t.WalletID, t.Type, t.Amount, t.Status, t.Reference, t.IdempotencyKey, t.CreatedAt)
	if store.IsUniqueViolation(err, "wallet_transactions_idempotency_key") {
		return out, fmt.Errorf("%w: %s", apperrors.ErrDuplicatePosting, t.IdempotencyKey)
	}
	return out, err
}

const insertTransaction = `
INSERT INTO wallet_transactions (id, wallet_id, type, amount, status, reference, idempotency_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING *
`

var errNoTransaction = errors.New("no transaction with that key")

// transactionByKey reads the transaction posted under an idempotency key.
// Callers hold the wallet lock, which serializes writers of that key.
func (r *Repository) transactionByKey(ctx context.Context, key string) (Transaction, error) {
	var t Transaction
	err := sqlx.GetContext(ctx, r.db, &t, transactionByKey, key)
	if errors.Is(err, sql.ErrNoRows) {
		return t, errNoTransaction
	}
	return t, err
}

const transactionByKey = `SELECT * FROM wallet_transactions WHERE idempotency_key = $1`

// ListTransactions returns the latest transactions of a wallet, newest first.
func (r *Repository) ListTransactions(ctx context.Context, walletID uuid.UUID, limit int) ([]Transaction, error) {
	txs := []Transaction{}
	err := sqlx.SelectContext(ctx, r.db, &txs, listTransactions, walletID, limit)
	return txs, err
}

const listTransactions = `SELECT * FROM wallet_transactions WHERE wallet_id = $1 ORDER BY seq DESC LIMIT $2`

func (r *Repository) listAll(ctx context.Context, walletID uuid.UUID) ([]Transaction, error) {
	txs := []Transaction{}
	err := sqlx.SelectContext(ctx, r.db, &txs, listAllTransactions, walletID)
	return txs, err
}

const listAllTransactions = `SELECT * FROM wallet_transactions WHERE wallet_id = $1 ORDER BY seq`
