// Package sweeper releases reservations whose window closed without a ride.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultInterval  = 30 * time.Second
	defaultBatchSize = 100
)

// Releaser lists and expires reservations. Each Expire call is its own unit
// of work.
type Releaser interface {
	DueForExpiry(ctx context.Context, limit int) ([]uuid.UUID, error)
	Expire(ctx context.Context, id uuid.UUID) (bool, error)
}

type metrics struct {
	sweeps   prometheus.Counter
	released prometheus.Counter
	failures prometheus.Counter
	duration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservation_sweeps_total",
			Help: "Total number of expiry sweeps run",
		}),
		released: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservations_released_total",
			Help: "Total number of expired reservations released",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservation_release_failures_total",
			Help: "Total number of reservations that failed to release",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reservation_sweep_duration_seconds",
			Help:    "Expiry sweep duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.sweeps, m.released, m.failures, m.duration)
	return m
}

type Sweeper struct {
	releaser  Releaser
	logger    *slog.Logger
	metrics   *metrics
	interval  time.Duration
	batchSize int
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func New(releaser Releaser, logger *slog.Logger, reg prometheus.Registerer, opts ...Option) *Sweeper {
	s := &Sweeper{
		releaser:  releaser,
		logger:    logger,
		metrics:   newMetrics(reg),
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on every tick until ctx is cancelled. The returned channel is
// closed once the loop has stopped.
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})
	s.logger.Debug("Starting sweeper", "interval", s.interval, "batch_size", s.batchSize)

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Sweeper stopped by context")
				return

			case <-ticker.C:
				n, err := s.SweepExpired(ctx)
				if err != nil {
					s.logger.Error("Failed to list expired reservations", "error", err)
					continue
				}
				if n > 0 {
					s.logger.Info("Released expired reservations", "count", n)
				}
			}
		}
	}()

	return stopped
}

// SweepExpired releases one batch of expired reservations and returns how
// many were released. A reservation that fails is logged and skipped; only a
// failure to list the batch is returned.
func (s *Sweeper) SweepExpired(ctx context.Context) (int, error) {
	start := time.Now()
	s.metrics.sweeps.Inc()
	defer func() {
		s.metrics.duration.Observe(time.Since(start).Seconds())
	}()

	ids, err := s.releaser.DueForExpiry(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		ok, err := s.releaser.Expire(ctx, id)
		if err != nil {
			s.metrics.failures.Inc()
			s.logger.Error("Failed to release reservation", "reservationId", id, "error", err)
			continue
		}
		if ok {
			released++
			s.metrics.released.Inc()
		}
	}

	return released, nil
}
