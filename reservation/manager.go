package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/semanticallynull/bikeshare-backend/bike"
	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
	"github.com/semanticallynull/bikeshare-backend/internal/store"
	"github.com/semanticallynull/bikeshare-backend/pricing"
	"github.com/semanticallynull/bikeshare-backend/wallet"
)

var tracer = otel.Tracer("reservation")

type Manager struct {
	db     *store.DB
	logger *slog.Logger
	Now    func() time.Time
}

func NewManager(db *store.DB, logger *slog.Logger) *Manager {
	return &Manager{
		db:     db,
		logger: logger,
		Now:    time.Now,
	}
}

// Reserve holds bikeID for the customer for durationMinutes. The HOLD, the
// bike transition and the reservation row are written in one unit.
func (m *Manager) Reserve(ctx context.Context, customerID, bikeID uuid.UUID, durationMinutes int) (Reservation, error) {
	ctx, span := tracer.Start(ctx, "Reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer.id", customerID.String()),
		attribute.String("bike.id", bikeID.String()),
	)

	if durationMinutes < MinDuration || durationMinutes > MaxDuration {
		return Reservation{}, apperrors.Invalid("durationMinutes", "must be between %d and %d", MinDuration, MaxDuration)
	}

	var out Reservation
	err := m.db.InTx(ctx, func(tx *sqlx.Tx) error {
		w, err := wallet.NewRepository(tx).GetByCustomerForUpdate(ctx, customerID)
		if err != nil {
			return err
		}
		if w.Arrears.IsPositive() {
			return fmt.Errorf("%w: %s in arrears", apperrors.ErrInsufficientBalance, w.Arrears)
		}

		rule, err := pricing.NewRepository(tx).Active(ctx)
		if err != nil {
			return err
		}
		if w.Balance.LessThan(rule.MinBalanceRequired) {
			return fmt.Errorf("%w: balance %s is below %s", apperrors.ErrInsufficientBalance, w.Balance, rule.MinBalanceRequired)
		}

		reservations := NewRepository(tx)
		riding, err := reservations.HasOpenRide(ctx, customerID)
		if err != nil {
			return err
		}
		if riding {
			return apperrors.ErrRideInProgress
		}
		if _, err := reservations.ActiveByCustomer(ctx, customerID); err == nil {
			return apperrors.ErrActiveReservationExists
		} else if !errors.Is(err, apperrors.ErrReservationNotFound) {
			return err
		}

		bikes := bike.NewRepository(tx)
		b, err := bikes.GetForUpdate(ctx, bikeID)
		if err != nil {
			return err
		}
		if b.Status != bike.StatusAvailable {
			return fmt.Errorf("%w: bike is %s", apperrors.ErrBikeUnavailable, b.Status)
		}
		if _, err := bikes.Transition(ctx, b, bike.EventReserve); err != nil {
			return err
		}

		now := m.Now()
		out, err = reservations.Insert(ctx, Reservation{
			ID:         uuid.New(),
			CustomerID: customerID,
			BikeID:     bikeID,
			DockID:     b.DockID,
			HoldAmount: rule.MinBalanceRequired,
			Status:     StatusActive,
			StartAt:    now,
			ExpiresAt:  now.Add(time.Duration(durationMinutes) * time.Minute),
		})
		if err != nil {
			return err
		}

		_, err = wallet.NewLedger(tx, m.Now).Post(ctx, &w, wallet.Posting{
			Type:      wallet.TypeHold,
			Amount:    out.HoldAmount,
			Reference: out.ID.String(),
			Key:       HoldKey(out.ID),
		})
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Reservation{}, err
	}

	m.logger.InfoContext(ctx, "bike reserved",
		"reservationId", out.ID, "bikeId", bikeID, "expiresAt", out.ExpiresAt)
	return out, nil
}

// Unlock moves the customer's reserved bike into a ride and hands out a code
// to show on the bike.
func (m *Manager) Unlock(ctx context.Context, customerID, bikeID uuid.UUID) (UnlockCode, error) {
	ctx, span := tracer.Start(ctx, "Unlock")
	defer span.End()
	span.SetAttributes(attribute.String("bike.id", bikeID.String()))

	var code UnlockCode
	err := m.db.InTx(ctx, func(tx *sqlx.Tx) error {
		reservations := NewRepository(tx)
		res, err := reservations.ActiveByBike(ctx, bikeID)
		if err != nil {
			return err
		}
		if res.CustomerID != customerID {
			return fmt.Errorf("%w: reservation %s", apperrors.ErrNotOwner, res.ID)
		}

		res, err = reservations.GetForUpdate(ctx, res.ID)
		if err != nil {
			return err
		}
		now := m.Now()
		if err := checkUsable(res, now); err != nil {
			return err
		}

		if err := UnlockBike(ctx, tx, res, now); err != nil {
			return err
		}

		code = UnlockCode{
			Code:          NewUnlockCode(now),
			BikeID:        bikeID,
			ReservationID: res.ID,
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return UnlockCode{}, err
	}

	m.logger.InfoContext(ctx, "bike unlocked", "reservationId", code.ReservationID, "bikeId", bikeID)
	return code, nil
}

// UnlockBike transitions the reserved bike to IN_RIDE and stamps the
// reservation. res must be locked by tx.
func UnlockBike(ctx context.Context, tx sqlx.ExtContext, res Reservation, now time.Time) error {
	bikes := bike.NewRepository(tx)
	b, err := bikes.GetForUpdate(ctx, res.BikeID)
	if err != nil {
		return err
	}
	if _, err := bikes.Transition(ctx, b, bike.EventUnlock); err != nil {
		return err
	}
	return NewRepository(tx).MarkUnlocked(ctx, res.ID, now)
}

func checkUsable(res Reservation, now time.Time) error {
	switch {
	case res.Status == StatusExpired:
		return fmt.Errorf("%w: reservation %s", apperrors.ErrReservationExpired, res.ID)
	case res.Status != StatusActive:
		return fmt.Errorf("%w: reservation %s is %s", apperrors.ErrReservationNotFound, res.ID, res.Status)
	case res.UnlockedAt.Valid:
		return fmt.Errorf("%w: reservation %s is already unlocked", apperrors.ErrInvalidStateTransition, res.ID)
	case res.Expired(now):
		return fmt.Errorf("%w: reservation %s expired at %s", apperrors.ErrReservationExpired, res.ID, res.ExpiresAt)
	}
	return nil
}

// Current returns the customer's ACTIVE reservation.
func (m *Manager) Current(ctx context.Context, customerID uuid.UUID) (Reservation, error) {
	return NewRepository(m.db.Reader()).ActiveByCustomer(ctx, customerID)
}

func (m *Manager) DueForExpiry(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return NewRepository(m.db.Reader()).DueForExpiry(ctx, m.Now(), limit)
}

// Expire releases one reservation whose window has passed: the reservation
// becomes EXPIRED, the bike goes back to AVAILABLE and the hold is refunded.
// A bike that was unlocked but never ridden is locked again. It reports
// false when the reservation no longer qualifies, for example because a ride
// started first.
func (m *Manager) Expire(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, span := tracer.Start(ctx, "Expire")
	defer span.End()
	span.SetAttributes(attribute.String("reservation.id", id.String()))

	var released bool
	err := m.db.InTx(ctx, func(tx *sqlx.Tx) error {
		released = false
		reservations := NewRepository(tx)

		res, err := reservations.Get(ctx, id)
		if err != nil {
			return err
		}
		now := m.Now()
		if !due(res, now) {
			return nil
		}

		w, err := wallet.NewRepository(tx).GetByCustomerForUpdate(ctx, res.CustomerID)
		if err != nil {
			return err
		}
		res, err = reservations.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !due(res, now) {
			return nil
		}

		bikes := bike.NewRepository(tx)
		b, err := bikes.GetForUpdate(ctx, res.BikeID)
		if err != nil {
			return err
		}
		ev := bike.EventExpire
		if res.UnlockedAt.Valid {
			ev = bike.EventRelock
		}
		if _, err := bikes.Transition(ctx, b, ev); err != nil {
			return err
		}

		if err := reservations.Close(ctx, id, StatusExpired, now); err != nil {
			return err
		}
		if err := ReleaseHold(ctx, wallet.NewLedger(tx, m.Now), &w, res); err != nil {
			return err
		}

		released = true
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	return released, nil
}

func due(res Reservation, now time.Time) bool {
	return res.Status == StatusActive && !now.Before(res.ReleaseAt())
}

// ReleaseHold refunds the full hold of res to w.
func ReleaseHold(ctx context.Context, ledger *wallet.Ledger, w *wallet.Wallet, res Reservation) error {
	_, err := ledger.Post(ctx, w, wallet.Posting{
		Type:      wallet.TypeRefund,
		Amount:    res.HoldAmount,
		Reference: res.ID.String(),
		Key:       ReleaseKey(res.ID),
	})
	return err
}
