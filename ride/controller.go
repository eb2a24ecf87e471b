package ride

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

	"github.com/semanticallynull/bikeshare-backend/bike"
	"github.com/semanticallynull/bikeshare-backend/dock"
	"github.com/semanticallynull/bikeshare-backend/internal/apperrors"
	"github.com/semanticallynull/bikeshare-backend/internal/store"
	"github.com/semanticallynull/bikeshare-backend/pricing"
	"github.com/semanticallynull/bikeshare-backend/reservation"
	"github.com/semanticallynull/bikeshare-backend/wallet"
)

var tracer = otel.Tracer("ride")

// Controller drives rides. Every mutating call is a single unit of work that
// locks rows in the order wallet, reservation, ride, bike, dock.
type Controller struct {
	db     *store.DB
	logger *slog.Logger
	Now    func() time.Time
}

func NewController(db *store.DB, logger *slog.Logger) *Controller {
	return &Controller{
		db:     db,
		logger: logger,
		Now:    time.Now,
	}
}

// Start consumes the customer's reservation and opens a ride on its bike. A
// reservation that was not unlocked yet is unlocked here.
func (c *Controller) Start(ctx context.Context, customerID, reservationID uuid.UUID) (Ride, error) {
	ctx, span := tracer.Start(ctx, "Start")
	defer span.End()
	span.SetAttributes(attribute.String("reservation.id", reservationID.String()))

	var out Ride
	err := c.db.InTx(ctx, func(tx *sqlx.Tx) error {
		reservations := reservation.NewRepository(tx)
		res, err := reservations.GetForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}
		if res.CustomerID != customerID {
			return fmt.Errorf("%w: reservation %s", apperrors.ErrNotOwner, res.ID)
		}

		now := c.Now()
		switch {
		case res.Status == reservation.StatusExpired:
			return fmt.Errorf("%w: reservation %s", apperrors.ErrReservationExpired, res.ID)
		case res.Status != reservation.StatusActive:
			return fmt.Errorf("%w: reservation %s is %s", apperrors.ErrReservationNotFound, res.ID, res.Status)
		}

		if !res.UnlockedAt.Valid {
			if res.Expired(now) {
				return fmt.Errorf("%w: reservation %s expired at %s", apperrors.ErrReservationExpired, res.ID, res.ExpiresAt)
			}
			if err := reservation.UnlockBike(ctx, tx, res, now); err != nil {
				return err
			}
		}

		bikes := bike.NewRepository(tx)
		b, err := bikes.GetForUpdate(ctx, res.BikeID)
		if err != nil {
			return err
		}
		if b.Status != bike.StatusInRide {
			return fmt.Errorf("%w: bike is %s", apperrors.ErrInvalidStateTransition, b.Status)
		}
		// The bike leaves its dock.
		if err := bikes.Park(ctx, b.ID, nil, b.Location, now); err != nil {
			return err
		}

		if err := reservations.Close(ctx, res.ID, reservation.StatusCompleted, now); err != nil {
			return err
		}

		out, err = NewRepository(tx).Insert(ctx, Ride{
			ID:            uuid.New(),
			CustomerID:    customerID,
			BikeID:        res.BikeID,
			ReservationID: res.ID,
			StartDockID:   res.DockID,
			StartLocation: b.Location,
			StartedAt:     now,
		})
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Ride{}, err
	}

	c.logger.InfoContext(ctx, "ride started", "rideId", out.ID, "bikeId", out.BikeID)
	return out, nil
}

// Heartbeat stores the bike's live position and prices the ride so far. It
// has no wallet effect.
func (c *Controller) Heartbeat(ctx context.Context, customerID, rideID uuid.UUID, lat, lng float64) (Estimate, error) {
	ctx, span := tracer.Start(ctx, "Heartbeat")
	defer span.End()
	span.SetAttributes(attribute.String("ride.id", rideID.String()))

	est, err := c.heartbeat(ctx, customerID, rideID, lat, lng)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return est, err
}

func (c *Controller) heartbeat(ctx context.Context, customerID, rideID uuid.UUID, lat, lng float64) (Estimate, error) {
	if err := validatePosition(lat, lng); err != nil {
		return Estimate{}, err
	}

	r, err := c.ownOpenRide(ctx, NewRepository(c.db.Reader()), customerID, rideID)
	if err != nil {
		return Estimate{}, err
	}

	rule, err := pricing.NewRepository(c.db.Reader()).Active(ctx)
	if err != nil {
		return Estimate{}, err
	}

	now := c.Now()
	if err := bike.NewRepository(c.db.Reader()).UpdatePosition(ctx, r.BikeID, bike.Point(lat, lng), now); err != nil {
		return Estimate{}, err
	}

	minutes := pricing.Minutes(r.StartedAt, now)
	return Estimate{
		DurationMinutes: minutes,
		EstimatedCost:   pricing.Price(minutes, rule, false),
	}, nil
}

// End closes the ride and settles it. The hold is refunded in full and the
// cost is charged against what the wallet then holds. Whatever the balance
// cannot cover becomes arrears.
func (c *Controller) End(ctx context.Context, customerID, rideID uuid.UUID, req EndRequest) (Ride, error) {
	ctx, span := tracer.Start(ctx, "End")
	defer span.End()
	span.SetAttributes(
		attribute.String("ride.id", rideID.String()),
		attribute.Bool("ride.off_dock", req.DockID == nil),
	)

	if err := validatePosition(req.Lat, req.Lng); err != nil {
		return Ride{}, err
	}

	var out Ride
	err := c.db.InTx(ctx, func(tx *sqlx.Tx) error {
		rides := NewRepository(tx)
		r, err := c.ownOpenRide(ctx, rides, customerID, rideID)
		if err != nil {
			return err
		}

		wallets := wallet.NewRepository(tx)
		w, err := wallets.GetByCustomerForUpdate(ctx, customerID)
		if err != nil {
			return err
		}
		res, err := reservation.NewRepository(tx).GetForUpdate(ctx, r.ReservationID)
		if err != nil {
			return err
		}
		r, err = rides.GetForUpdate(ctx, rideID)
		if err != nil {
			return err
		}
		if r.Ended() {
			return apperrors.ErrRideAlreadyEnded
		}

		bikes := bike.NewRepository(tx)
		b, err := bikes.GetForUpdate(ctx, r.BikeID)
		if err != nil {
			return err
		}
		if req.DockID != nil {
			if err := checkDock(ctx, dock.NewRepository(tx), *req.DockID); err != nil {
				return err
			}
		}

		rule, err := pricing.NewRepository(tx).Active(ctx)
		if err != nil {
			return err
		}

		now := c.Now()
		end := bike.Point(req.Lat, req.Lng)
		minutes := pricing.Minutes(r.StartedAt, now)
		cost := pricing.Price(minutes, rule, req.DockID == nil)

		if _, err := bikes.Transition(ctx, b, bike.EventEndRide); err != nil {
			return err
		}
		if err := bikes.Park(ctx, b.ID, req.DockID, end, now); err != nil {
			return err
		}

		ledger := wallet.NewLedger(tx, c.Now)
		if err := reservation.ReleaseHold(ctx, ledger, &w, res); err != nil {
			return err
		}

		charged := decimal.Min(cost, w.Balance)
		unpaid := cost.Sub(charged)
		if charged.IsPositive() {
			if _, err := ledger.Post(ctx, &w, wallet.Posting{
				Type:      wallet.TypeCharge,
				Amount:    charged,
				Reference: r.ID.String(),
				Key:       ChargeKey(r.ID),
			}); err != nil {
				return err
			}
		}
		if unpaid.IsPositive() {
			if err := wallets.SetArrears(ctx, w.ID, w.Arrears.Add(unpaid)); err != nil {
				return err
			}
		}

		r.EndedAt.Time, r.EndedAt.Valid = now, true
		r.EndDockID = req.DockID
		r.EndLocation = end
		r.DurationMin = &minutes
		r.DistanceKm = decimal.NewNullDecimal(decimal.NewFromFloat(distanceKm(r.StartLocation, end)).Round(3))
		r.Cost = decimal.NewNullDecimal(cost)
		r.Charged = decimal.NewNullDecimal(charged)
		r.Unpaid = decimal.NewNullDecimal(unpaid)
		r.PricingRuleID = &rule.ID

		out, err = rides.Finish(ctx, r)
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Ride{}, err
	}

	c.logger.InfoContext(ctx, "ride ended",
		"rideId", out.ID, "durationMin", *out.DurationMin, "cost", out.Cost.Decimal, "unpaid", out.Unpaid.Decimal)
	return out, nil
}

func (c *Controller) ownOpenRide(ctx context.Context, rides *Repository, customerID, rideID uuid.UUID) (Ride, error) {
	r, err := rides.Get(ctx, rideID)
	if err != nil {
		return r, err
	}
	if r.CustomerID != customerID {
		return r, fmt.Errorf("%w: ride %s", apperrors.ErrNotOwner, rideID)
	}
	if r.Ended() {
		return r, apperrors.ErrRideAlreadyEnded
	}
	return r, nil
}

func checkDock(ctx context.Context, docks *dock.Repository, id uuid.UUID) error {
	d, err := docks.GetForUpdate(ctx, id)
	if errors.Is(err, apperrors.ErrDockNotFound) {
		return &apperrors.ValidationError{Field: "endDockId", Reason: "unknown dock " + id.String(), Err: err}
	}
	if err != nil {
		return err
	}

	parked, err := docks.Occupancy(ctx, id)
	if err != nil {
		return err
	}
	if parked >= d.Capacity {
		return fmt.Errorf("%w: %s parks %d of %d", apperrors.ErrDockFull, d.Name, parked, d.Capacity)
	}
	return nil
}

func validatePosition(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return apperrors.Invalid("lat", "must be between -90 and 90")
	}
	if lng < -180 || lng > 180 {
		return apperrors.Invalid("lng", "must be between -180 and 180")
	}
	return nil
}

func (c *Controller) History(ctx context.Context, customerID uuid.UUID) ([]Ride, error) {
	return NewRepository(c.db.Reader()).History(ctx, customerID)
}

func (c *Controller) Current(ctx context.Context, customerID uuid.UUID) (Ride, error) {
	return NewRepository(c.db.Reader()).Open(ctx, customerID)
}
