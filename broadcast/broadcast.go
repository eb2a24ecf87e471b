// Package broadcast periodically publishes the state of the visible fleet.
package broadcast

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/semanticallynull/bikeshare-backend/bike"
)

const defaultInterval = 10 * time.Second

// BikeState is what riders' maps need to draw a bike.
type BikeState struct {
	ID         uuid.UUID   `json:"id"`
	Label      string      `json:"label"`
	Type       bike.Type   `json:"type"`
	Status     bike.Status `json:"status"`
	BatteryPct *int        `json:"batteryPct,omitempty"`
	Lat        float64     `json:"latitude"`
	Lng        float64     `json:"longitude"`
	DockID     *uuid.UUID  `json:"dockId"`
}

type Snapshot struct {
	At    time.Time   `json:"at"`
	Bikes []BikeState `json:"bikes"`
}

type Source interface {
	ListVisible(ctx context.Context) ([]bike.Bike, error)
}

type Sink interface {
	Publish(ctx context.Context, s Snapshot) error
}

// Feed hands a snapshot of every non-maintenance bike to its sink on each
// tick.
type Feed struct {
	source   Source
	sink     Sink
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	published prometheus.Counter
	failures  prometheus.Counter
}

func NewFeed(source Source, sink Sink, logger *slog.Logger, reg prometheus.Registerer, interval time.Duration) *Feed {
	if interval <= 0 {
		interval = defaultInterval
	}

	f := &Feed{
		source:   source,
		sink:     sink,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bike_broadcasts_total",
			Help: "Total number of fleet snapshots published",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bike_broadcast_failures_total",
			Help: "Total number of fleet snapshots that failed to publish",
		}),
	}
	reg.MustRegister(f.published, f.failures)
	return f
}

func (f *Feed) Run(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				f.logger.Debug("Feed stopped by context")
				return
			case <-ticker.C:
				if err := f.Tick(ctx); err != nil {
					f.logger.Warn("Failed to broadcast bikes", "error", err)
				}
			}
		}
	}()

	return stopped
}

// Tick publishes one snapshot.
func (f *Feed) Tick(ctx context.Context) error {
	bikes, err := f.source.ListVisible(ctx)
	if err != nil {
		f.failures.Inc()
		return err
	}

	if err := f.sink.Publish(ctx, NewSnapshot(f.now(), bikes)); err != nil {
		f.failures.Inc()
		return err
	}

	f.published.Inc()
	return nil
}

func NewSnapshot(at time.Time, bikes []bike.Bike) Snapshot {
	s := Snapshot{At: at, Bikes: make([]BikeState, 0, len(bikes))}
	for _, b := range bikes {
		s.Bikes = append(s.Bikes, BikeState{
			ID:         b.ID,
			Label:      b.Label,
			Type:       b.Type,
			Status:     b.Status,
			BatteryPct: b.BatteryPct,
			Lat:        b.Lat(),
			Lng:        b.Lng(),
			DockID:     b.DockID,
		})
	}
	return s
}
