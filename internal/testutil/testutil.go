// Package testutil starts a disposable Postgres and seeds it for tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/semanticallynull/bikeshare-backend/internal/store"
)

// StartPostgres runs postgres in a container, applies migrations and returns
// a connected handle. The container is removed when the test finishes.
// The test is skipped when no container runtime is reachable.
func StartPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("bikeshare-test"),
		postgres.WithUsername("bikeshare"),
		postgres.WithPassword("pwd"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "starting postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "getting connection string from container")

	require.NoError(t, store.Migrate(dsn), "migrating schema")

	db, err := store.Connect(ctx, dsn)
	require.NoError(t, err, "connecting to postgres")
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// Reset empties every table so subtests start from a clean schema.
func Reset(t *testing.T, db *sqlx.DB) {
	t.Helper()
	_, err := db.Exec(`TRUNCATE rides, reservations, pricing_rules, bikes, docks,
		wallet_transactions, wallets, customers`)
	require.NoError(t, err)
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// CreateCustomer inserts a customer with an empty wallet.
func CreateCustomer(t *testing.T, db *sqlx.DB, role string) (customerID, walletID uuid.UUID) {
	t.Helper()
	customerID, walletID = uuid.New(), uuid.New()

	_, err := db.Exec(`INSERT INTO customers (id, auth0_id, role) VALUES ($1, $2, $3)`,
		customerID, "auth0|"+customerID.String(), role)
	require.NoError(t, err, "creating customer")

	_, err = db.Exec(`INSERT INTO wallets (id, customer_id, currency) VALUES ($1, $2, 'EUR')`,
		walletID, customerID)
	require.NoError(t, err, "creating wallet")

	return customerID, walletID
}

// Fund credits a wallet with a completed TOPUP, keeping the ledger consistent.
func Fund(t *testing.T, db *sqlx.DB, walletID uuid.UUID, amount string) {
	t.Helper()
	_, err := db.Exec(`
		WITH t AS (
			INSERT INTO wallet_transactions (id, wallet_id, type, amount, status, idempotency_key, created_at)
			VALUES ($1, $2, 'TOPUP', $3, 'COMPLETED', $4, now())
			RETURNING amount
		)
		UPDATE wallets SET balance = balance + (SELECT amount FROM t) WHERE id = $2`,
		uuid.New(), walletID, amount, "fixture:"+uuid.NewString())
	require.NoError(t, err, "funding wallet")
}

func Balance(t *testing.T, db *sqlx.DB, walletID uuid.UUID) decimal.Decimal {
	t.Helper()
	var balance decimal.Decimal
	require.NoError(t, db.Get(&balance, `SELECT balance FROM wallets WHERE id = $1`, walletID))
	return balance
}

func CreateDock(t *testing.T, db *sqlx.DB, name string, capacity int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(`INSERT INTO docks (id, name, address, location, capacity)
		VALUES ($1, $2, 'Test Address', point(53.34, -6.26), $3)`, id, name, capacity)
	require.NoError(t, err, "creating dock")
	return id
}

// CreateBike parks an AVAILABLE standard bike, at a dock when dockID is set.
func CreateBike(t *testing.T, db *sqlx.DB, label string, dockID *uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(`INSERT INTO bikes (id, label, type, status, location, dock_id)
		VALUES ($1, $2, 'STANDARD', 'AVAILABLE', point(53.34, -6.26), $3)`, id, label, dockID)
	require.NoError(t, err, "creating bike")
	return id
}

func SetBikeStatus(t *testing.T, db *sqlx.DB, bikeID uuid.UUID, status string) {
	t.Helper()
	_, err := db.Exec(`UPDATE bikes SET status = $2 WHERE id = $1`, bikeID, status)
	require.NoError(t, err, "setting bike status")
}

// Rule holds pricing values as decimal strings.
type Rule struct {
	PerMinute          string
	PerKm              string
	UnlockFee          string
	MinBalanceRequired string
	LatePenaltyPerMin  string
	OffDockPenalty     string
}

// StandardRule is the tariff the billing tests are written against.
var StandardRule = Rule{
	PerMinute:          "2",
	PerKm:              "0",
	UnlockFee:          "10",
	MinBalanceRequired: "50",
	LatePenaltyPerMin:  "0",
	OffDockPenalty:     "100",
}

// ActivateRule replaces the active pricing rule.
func ActivateRule(t *testing.T, db *sqlx.DB, r Rule) uuid.UUID {
	t.Helper()
	_, err := db.Exec(`UPDATE pricing_rules SET active = false WHERE active`)
	require.NoError(t, err)

	id := uuid.New()
	_, err = db.Exec(`INSERT INTO pricing_rules
		(id, per_minute, per_km, unlock_fee, min_balance_required, late_penalty_per_min, off_dock_penalty, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true)`,
		id, r.PerMinute, r.PerKm, r.UnlockFee, r.MinBalanceRequired, r.LatePenaltyPerMin, r.OffDockPenalty)
	require.NoError(t, err, "activating pricing rule")
	return id
}
