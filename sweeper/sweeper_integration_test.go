package sweeper_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/bikeshare-backend/bike"
	"github.com/semanticallynull/bikeshare-backend/internal/store"
	"github.com/semanticallynull/bikeshare-backend/internal/testutil"
	"github.com/semanticallynull/bikeshare-backend/reservation"
	"github.com/semanticallynull/bikeshare-backend/sweeper"
	"github.com/semanticallynull/bikeshare-backend/wallet"
)

func TestSweepRestoresBikesAndHolds(t *testing.T) {
	db := testutil.StartPostgres(t)
	testutil.ActivateRule(t, db, testutil.StandardRule)
	ctx := context.Background()

	clock := testutil.NewClock()
	manager := reservation.NewManager(store.New(db), testutil.Logger())
	manager.Now = clock.Now
	s := sweeper.New(manager, testutil.Logger(), prometheus.NewRegistry())

	type rider struct {
		customerID, walletID, bikeID uuid.UUID
	}
	var riders []rider
	for _, label := range []string{"BIKE-1", "BIKE-2", "BIKE-3"} {
		bikeID := testutil.CreateBike(t, db, label, nil)
		customerID, walletID := testutil.CreateCustomer(t, db, "RIDER")
		testutil.Fund(t, db, walletID, "60")
		_, err := manager.Reserve(ctx, customerID, bikeID, 15)
		require.NoError(t, err)
		riders = append(riders, rider{customerID: customerID, walletID: walletID, bikeID: bikeID})
	}

	n, err := s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is due yet")

	// The last rider unlocks and walks away.
	clock.Advance(10 * time.Minute)
	_, err = manager.Unlock(ctx, riders[2].customerID, riders[2].bikeID)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	n, err = s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	clock.Advance(reservation.UnlockGrace)
	n, err = s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "unlocked bike released after the grace")

	for _, r := range riders {
		b, err := bike.NewRepository(db).GetBike(ctx, r.bikeID)
		require.NoError(t, err)
		assert.Equal(t, bike.StatusAvailable, b.Status)

		report, err := wallet.Audit(ctx, db, r.walletID)
		require.NoError(t, err)
		assert.True(t, report.Consistent(), report.Dump())
		assert.Equal(t, "60", report.Wallet.Balance.String())
	}

	n, err = s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
