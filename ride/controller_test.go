package ride_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/semanticallynull/bikeshare-backend/bike"
	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
	"github.com/semanticallynull/bikeshare-backend/internal/store"
	"github.com/semanticallynull/bikeshare-backend/internal/testutil"
	"github.com/semanticallynull/bikeshare-backend/reservation"
	"github.com/semanticallynull/bikeshare-backend/ride"
	"github.com/semanticallynull/bikeshare-backend/wallet"
)

type fixture struct {
	db           *sqlx.DB
	clock        *testutil.Clock
	reservations *reservation.Manager
	rides        *ride.Controller

	customerID uuid.UUID
	walletID   uuid.UUID
	dockID     uuid.UUID
	bikeID     uuid.UUID
}

// setup leaves a rider with 50 in the wallet, a docked bike and the standard
// tariff active.
func setup(t *testing.T, db *sqlx.DB) *fixture {
	t.Helper()
	testutil.Reset(t, db)
	testutil.ActivateRule(t, db, testutil.StandardRule)

	clock := testutil.NewClock()
	s := store.New(db)
	f := &fixture{
		db:           db,
		clock:        clock,
		reservations: reservation.NewManager(s, testutil.Logger()),
		rides:        ride.NewController(s, testutil.Logger()),
	}
	f.reservations.Now = clock.Now
	f.rides.Now = clock.Now

	f.customerID, f.walletID = testutil.CreateCustomer(t, db, "RIDER")
	testutil.Fund(t, db, f.walletID, "50")
	f.dockID = testutil.CreateDock(t, db, "Smithfield", 10)
	f.bikeID = testutil.CreateBike(t, db, "BIKE-1", &f.dockID)
	return f
}

// riding reserves, unlocks and starts a ride on the fixture's bike.
func (f *fixture) riding(t *testing.T) ride.Ride {
	t.Helper()
	ctx := context.Background()

	res, err := f.reservations.Reserve(ctx, f.customerID, f.bikeID, 30)
	require.NoError(t, err)
	_, err = f.reservations.Unlock(ctx, f.customerID, f.bikeID)
	require.NoError(t, err)
	r, err := f.rides.Start(ctx, f.customerID, res.ID)
	require.NoError(t, err)
	return r
}

func (f *fixture) bike(t *testing.T) bike.Bike {
	t.Helper()
	b, err := bike.NewRepository(f.db).GetBike(context.Background(), f.bikeID)
	require.NoError(t, err)
	return b
}

func (f *fixture) wallet(t *testing.T) wallet.Wallet {
	t.Helper()
	w, err := wallet.NewRepository(f.db).GetByID(context.Background(), f.walletID)
	require.NoError(t, err)
	return w
}

// entries lists the wallet's transactions after the fixture top-up, oldest
// first, as "TYPE amount".
func (f *fixture) entries(t *testing.T) []string {
	t.Helper()
	report, err := wallet.Audit(context.Background(), f.db, f.walletID)
	require.NoError(t, err)
	require.True(t, report.Consistent(), report.Dump())

	var out []string
	for _, tx := range report.Transactions[1:] {
		out = append(out, string(tx.Type)+" "+tx.Amount.String())
	}
	return out
}

func TestStart(t *testing.T) {
	db := testutil.StartPostgres(t)
	ctx := context.Background()

	t.Run("after unlock", func(t *testing.T) {
		f := setup(t, db)

		r := f.riding(t)

		assert.Equal(t, f.bikeID, r.BikeID)
		assert.Equal(t, f.dockID, *r.StartDockID)
		assert.True(t, f.clock.Now().Equal(r.StartedAt))
		assert.False(t, r.Ended())

		b := f.bike(t)
		assert.Equal(t, bike.StatusInRide, b.Status)
		assert.Nil(t, b.DockID, "bike left the dock")

		res, err := reservation.NewRepository(db).Get(ctx, r.ReservationID)
		require.NoError(t, err)
		assert.Equal(t, reservation.StatusCompleted, res.Status)

		current, err := f.rides.Current(ctx, f.customerID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, current.ID)
	})

	t.Run("merged with unlock", func(t *testing.T) {
		f := setup(t, db)
		res, err := f.reservations.Reserve(ctx, f.customerID, f.bikeID, 30)
		require.NoError(t, err)

		r, err := f.rides.Start(ctx, f.customerID, res.ID)

		require.NoError(t, err)
		assert.Equal(t, res.ID, r.ReservationID)
		assert.Equal(t, bike.StatusInRide, f.bike(t).Status)
	})

	t.Run("merged start after the window", func(t *testing.T) {
		f := setup(t, db)
		res, err := f.reservations.Reserve(ctx, f.customerID, f.bikeID, 30)
		require.NoError(t, err)
		f.clock.Advance(31 * time.Minute)

		_, err = f.rides.Start(ctx, f.customerID, res.ID)

		assert.ErrorIs(t, err, apperrors.ErrReservationExpired)
		assert.Equal(t, bike.StatusReserved, f.bike(t).Status)
	})

	t.Run("unlocked reservations can start late", func(t *testing.T) {
		f := setup(t, db)
		res, err := f.reservations.Reserve(ctx, f.customerID, f.bikeID, 15)
		require.NoError(t, err)
		_, err = f.reservations.Unlock(ctx, f.customerID, f.bikeID)
		require.NoError(t, err)
		f.clock.Advance(20 * time.Minute)

		_, err = f.rides.Start(ctx, f.customerID, res.ID)

		assert.NoError(t, err)
	})

	t.Run("unlocked bike restored from maintenance", func(t *testing.T) {
		f := setup(t, db)
		fleet := bike.NewFleet(store.New(db))
		res, err := f.reservations.Reserve(ctx, f.customerID, f.bikeID, 30)
		require.NoError(t, err)
		_, err = f.reservations.Unlock(ctx, f.customerID, f.bikeID)
		require.NoError(t, err)
		_, err = fleet.SetMaintenance(ctx, f.bikeID, true)
		require.NoError(t, err)

		restored, err := fleet.SetMaintenance(ctx, f.bikeID, false)
		require.NoError(t, err)
		require.Equal(t, bike.StatusInRide, restored.Status)

		_, err = f.rides.Start(ctx, f.customerID, res.ID)
		assert.NoError(t, err)
	})

	t.Run("someone else's reservation", func(t *testing.T) {
		f := setup(t, db)
		res, err := f.reservations.Reserve(ctx, f.customerID, f.bikeID, 30)
		require.NoError(t, err)
		other, _ := testutil.CreateCustomer(t, db, "RIDER")

		_, err = f.rides.Start(ctx, other, res.ID)

		assert.ErrorIs(t, err, apperrors.ErrNotOwner)
	})

	t.Run("reservation used twice", func(t *testing.T) {
		f := setup(t, db)
		r := f.riding(t)

		_, err := f.rides.Start(ctx, f.customerID, r.ReservationID)

		assert.ErrorIs(t, err, apperrors.ErrReservationNotFound)
	})

	t.Run("unknown reservation", func(t *testing.T) {
		f := setup(t, db)

		_, err := f.rides.Start(ctx, f.customerID, uuid.New())

		assert.ErrorIs(t, err, apperrors.ErrReservationNotFound)
	})

	t.Run("racing the sweeper", func(t *testing.T) {
		for range 5 {
			f := setup(t, db)
			res, err := f.reservations.Reserve(ctx, f.customerID, f.bikeID, 15)
			require.NoError(t, err)
			f.clock.Advance(15 * time.Minute)

			var (
				wg       sync.WaitGroup
				released bool
				sweepErr error
				startErr error
			)
			wg.Add(2)
			go func() {
				defer wg.Done()
				released, sweepErr = f.reservations.Expire(ctx, res.ID)
			}()
			go func() {
				defer wg.Done()
				_, startErr = f.rides.Start(ctx, f.customerID, res.ID)
			}()
			wg.Wait()

			require.NoError(t, sweepErr)
			require.True(t, released, "the window has passed so only expiry can succeed")
			assert.ErrorIs(t, startErr, apperrors.ErrReservationExpired)
			assert.Equal(t, bike.StatusAvailable, f.bike(t).Status)
			assert.Equal(t, "50", f.wallet(t).Balance.String())
		}
	})
}

func TestHeartbeat(t *testing.T) {
	db := testutil.StartPostgres(t)
	ctx := context.Background()

	t.Run("estimates without touching the ledger", func(t *testing.T) {
		f := setup(t, db)
		r := f.riding(t)
		f.clock.Advance(7*time.Minute + 30*time.Second)

		est, err := f.rides.Heartbeat(ctx, f.customerID, r.ID, 53.35, -6.27)

		require.NoError(t, err)
		assert.Equal(t, 7, est.DurationMinutes)
		assert.Equal(t, "24", est.EstimatedCost.String())

		b := f.bike(t)
		assert.InDelta(t, 53.35, b.Lat(), 1e-9)
		assert.InDelta(t, -6.27, b.Lng(), 1e-9)
		assert.True(t, f.clock.Now().Equal(b.LastSeenAt.Time))
		assert.Equal(t, []string{"HOLD 50"}, f.entries(t))
	})

	t.Run("invalid position", func(t *testing.T) {
		f := setup(t, db)
		r := f.riding(t)

		_, err := f.rides.Heartbeat(ctx, f.customerID, r.ID, 91, 0)

		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("not the rider", func(t *testing.T) {
		f := setup(t, db)
		r := f.riding(t)
		other, _ := testutil.CreateCustomer(t, db, "RIDER")

		_, err := f.rides.Heartbeat(ctx, other, r.ID, 53.35, -6.27)

		assert.ErrorIs(t, err, apperrors.ErrNotOwner)
	})

	t.Run("traced", func(t *testing.T) {
		rec := recordSpans(t)
		f := setup(t, db)
		r := f.riding(t)

		_, err := f.rides.Heartbeat(ctx, f.customerID, r.ID, 53.35, -6.27)
		require.NoError(t, err)
		_, err = f.rides.Heartbeat(ctx, f.customerID, r.ID, 91, 0)
		require.Error(t, err)

		var statuses []codes.Code
		for _, span := range rec.Ended() {
			if span.Name() == "Heartbeat" {
				statuses = append(statuses, span.Status().Code)
			}
		}
		assert.Equal(t, []codes.Code{codes.Unset, codes.Error}, statuses)
	})
}

// recordSpans routes spans from the global tracer provider to a recorder.
// The package tracers bind to the first provider set, so call it at most
// once per test binary.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return rec
}

func TestEnd(t *testing.T) {
	db := testutil.StartPostgres(t)
	ctx := context.Background()

	t.Run("docked return refunds the hold and charges the cost", func(t *testing.T) {
		f := setup(t, db)
		r := f.riding(t)
		f.clock.Advance(10 * time.Minute)

		ended, err := f.rides.End(ctx, f.customerID, r.ID, ride.EndRequest{DockID: &f.dockID, Lat: 53.3498, Lng: -6.2603})

		require.NoError(t, err)
		assert.Equal(t, 10, *ended.DurationMin)
		assert.Equal(t, "30", ended.Cost.Decimal.String())
		assert.Equal(t, "30", ended.Charged.Decimal.String())
		assert.True(t, ended.Unpaid.Decimal.IsZero())
		assert.Equal(t, f.dockID, *ended.EndDockID)
		assert.False(t, ended.OffDock())

		assert.Equal(t, []string{"HOLD 50", "REFUND 50", "CHARGE 30"}, f.entries(t))
		w := f.wallet(t)
		assert.Equal(t, "20", w.Balance.String())
		assert.True(t, w.Arrears.IsZero())

		b := f.bike(t)
		assert.Equal(t, bike.StatusAvailable, b.Status)
		assert.Equal(t, f.dockID, *b.DockID)
	})

	t.Run("off-dock return beyond the balance goes to arrears", func(t *testing.T) {
		f := setup(t, db)
		r := f.riding(t)
		f.clock.Advance(10 * time.Minute)

		ended, err := f.rides.End(ctx, f.customerID, r.ID, ride.EndRequest{Lat: 53.36, Lng: -6.25})

		require.NoError(t, err)
		assert.True(t, ended.OffDock())
		assert.Equal(t, "130", ended.Cost.Decimal.String())
		assert.Equal(t, "50", ended.Charged.Decimal.String())
		assert.Equal(t, "80", ended.Unpaid.Decimal.String())

		assert.Equal(t, []string{"HOLD 50", "REFUND 50", "CHARGE 50"}, f.entries(t))
		w := f.wallet(t)
		assert.True(t, w.Balance.IsZero())
		assert.Equal(t, "80", w.Arrears.String())

		b := f.bike(t)
		assert.Equal(t, bike.StatusAvailable, b.Status)
		assert.Nil(t, b.DockID)

		bikeID := testutil.CreateBike(t, db, "BIKE-2", nil)
		testutil.Fund(t, db, f.walletID, "200")
		_, err = f.reservations.Reserve(ctx, f.customerID, bikeID, 30)
		assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance, "arrears block the next reservation")
	})

	t.Run("ending twice", func(t *testing.T) {
		f := setup(t, db)
		r := f.riding(t)
		f.clock.Advance(10 * time.Minute)
		_, err := f.rides.End(ctx, f.customerID, r.ID, ride.EndRequest{DockID: &f.dockID, Lat: 53.34, Lng: -6.26})
		require.NoError(t, err)
		before := f.entries(t)

		f.clock.Advance(time.Minute)
		_, err = f.rides.End(ctx, f.customerID, r.ID, ride.EndRequest{DockID: &f.dockID, Lat: 53.34, Lng: -6.26})

		assert.ErrorIs(t, err, apperrors.ErrRideAlreadyEnded)
		assert.Equal(t, before, f.entries(t))
	})

	t.Run("concurrent ends settle once", func(t *testing.T) {
		f := setup(t, db)
		r := f.riding(t)
		f.clock.Advance(10 * time.Minute)

		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.rides.End(ctx, f.customerID, r.ID, ride.EndRequest{DockID: &f.dockID, Lat: 53.34, Lng: -6.26})
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, apperrors.ErrRideAlreadyEnded)
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, []string{"HOLD 50", "REFUND 50", "CHARGE 30"}, f.entries(t))
	})

	t.Run("full dock", func(t *testing.T) {
		f := setup(t, db)
		small := testutil.CreateDock(t, db, "Tiny", 1)
		testutil.CreateBike(t, db, "BIKE-PARKED", &small)
		r := f.riding(t)

		_, err := f.rides.End(ctx, f.customerID, r.ID, ride.EndRequest{DockID: &small, Lat: 53.34, Lng: -6.26})

		assert.ErrorIs(t, err, apperrors.ErrDockFull)
		assert.Equal(t, bike.StatusInRide, f.bike(t).Status)
		assert.Equal(t, []string{"HOLD 50"}, f.entries(t))
	})

	t.Run("unknown dock", func(t *testing.T) {
		f := setup(t, db)
		r := f.riding(t)
		unknown := uuid.New()

		_, err := f.rides.End(ctx, f.customerID, r.ID, ride.EndRequest{DockID: &unknown, Lat: 53.34, Lng: -6.26})

		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.ErrorIs(t, err, apperrors.ErrDockNotFound)
	})

	t.Run("not the rider", func(t *testing.T) {
		f := setup(t, db)
		r := f.riding(t)
		other, _ := testutil.CreateCustomer(t, db, "RIDER")

		_, err := f.rides.End(ctx, other, r.ID, ride.EndRequest{DockID: &f.dockID, Lat: 53.34, Lng: -6.26})

		assert.ErrorIs(t, err, apperrors.ErrNotOwner)
	})

	t.Run("bike sent to maintenance mid-ride", func(t *testing.T) {
		f := setup(t, db)
		r := f.riding(t)
		_, err := bike.NewFleet(store.New(db)).SetMaintenance(ctx, f.bikeID, true)
		require.NoError(t, err)
		f.clock.Advance(5 * time.Minute)

		ended, err := f.rides.End(ctx, f.customerID, r.ID, ride.EndRequest{DockID: &f.dockID, Lat: 53.34, Lng: -6.26})

		require.NoError(t, err)
		assert.Equal(t, "20", ended.Cost.Decimal.String())
		assert.Equal(t, bike.StatusMaintenance, f.bike(t).Status)
	})

	t.Run("bike restored mid-ride stays with its rider", func(t *testing.T) {
		f := setup(t, db)
		fleet := bike.NewFleet(store.New(db))
		r := f.riding(t)
		_, err := fleet.SetMaintenance(ctx, f.bikeID, true)
		require.NoError(t, err)

		restored, err := fleet.SetMaintenance(ctx, f.bikeID, false)
		require.NoError(t, err)
		assert.Equal(t, bike.StatusInRide, restored.Status)

		other, otherWallet := testutil.CreateCustomer(t, db, "RIDER")
		testutil.Fund(t, db, otherWallet, "50")
		_, err = f.reservations.Reserve(ctx, other, f.bikeID, 30)
		assert.ErrorIs(t, err, apperrors.ErrBikeUnavailable)

		f.clock.Advance(5 * time.Minute)
		_, err = f.rides.End(ctx, f.customerID, r.ID, ride.EndRequest{DockID: &f.dockID, Lat: 53.34, Lng: -6.26})
		require.NoError(t, err)
		assert.Equal(t, bike.StatusAvailable, f.bike(t).Status)
	})

	t.Run("history is newest first", func(t *testing.T) {
		f := setup(t, db)
		testutil.Fund(t, db, f.walletID, "100")
		first := f.riding(t)
		f.clock.Advance(5 * time.Minute)
		_, err := f.rides.End(ctx, f.customerID, first.ID, ride.EndRequest{DockID: &f.dockID, Lat: 53.34, Lng: -6.26})
		require.NoError(t, err)
		f.clock.Advance(time.Hour)
		second := f.riding(t)

		history, err := f.rides.History(ctx, f.customerID)

		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, second.ID, history[0].ID)
		assert.Equal(t, first.ID, history[1].ID)
		assert.True(t, history[1].Ended())
	})
}
