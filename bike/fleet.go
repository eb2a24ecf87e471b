package bike

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/semanticallynull/bikeshare-backend/internal/store"
)

// Fleet applies technician driven status changes.
type Fleet struct {
	db *store.DB
}

func NewFleet(db *store.DB) *Fleet {
	return &Fleet{db: db}
}

// SetMaintenance moves a bike into maintenance from any status, or restores
// a bike in maintenance. A restored bike that is still reserved or ridden
// goes back to RESERVED or IN_RIDE; otherwise it becomes AVAILABLE.
func (f *Fleet) SetMaintenance(ctx context.Context, id uuid.UUID, on bool) (Bike, error) {
	ctx, span := otel.Tracer("bike").Start(ctx, "SetMaintenance")
	defer span.End()
	span.SetAttributes(attribute.String("bike.id", id.String()), attribute.Bool("bike.maintenance", on))

	var out Bike
	err := f.db.InTx(ctx, func(tx *sqlx.Tx) error {
		bikes := NewRepository(tx)
		if on {
			b, err := bikes.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			out, err = bikes.Transition(ctx, b, EventMaintain)
			return err
		}

		h, err := bikes.lockHolder(ctx, id)
		if err != nil {
			return err
		}
		b, err := bikes.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if _, err := Next(b.Status, EventRestore); err != nil {
			return err
		}
		out, err = bikes.transitionTo(ctx, b, restoredStatus(h))
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}
