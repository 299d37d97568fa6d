package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper finalizes in-progress attempts whose deadline passed.
type Sweeper interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// ExpiryWorker closes abandoned attempts on a fixed interval so their
// results and blocks exist even if the student never comes back.
type ExpiryWorker struct {
	sweeper  Sweeper
	interval time.Duration
	batch    int
	log      zerolog.Logger
}

// NewExpiryWorker creates a new ExpiryWorker. An interval of 0 disables it.
func NewExpiryWorker(sweeper Sweeper, interval time.Duration, batch int, log zerolog.Logger) *ExpiryWorker {
	if batch <= 0 {
		batch = 200
	}
	return &ExpiryWorker{
		sweeper:  sweeper,
		interval: interval,
		batch:    batch,
		log:      log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start sweeps until ctx is cancelled.
func (w *ExpiryWorker) Start(ctx context.Context) {
	if w.interval <= 0 {
		w.log.Info().Msg("ExpiryWorker disabled")
		return
	}
	w.log.Info().Dur("interval", w.interval).Int("batch", w.batch).Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpiryWorker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep drains full batches back to back; a short batch means nothing is left.
func (w *ExpiryWorker) sweep(ctx context.Context) {
	total := 0
	for ctx.Err() == nil {
		n, err := w.sweeper.SweepExpired(ctx, w.batch)
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Sweep failed")
			}
			break
		}
		total += n
		if n < w.batch {
			break
		}
	}
	if total > 0 {
		w.log.Info().Int("finalized", total).Msg("Expired attempts finalized")
	}
}
