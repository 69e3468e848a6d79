package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper is the periodic maintenance surface of the reservation coordinator.
type Sweeper interface {
	SweepCompletions(ctx context.Context, now time.Time) (int, error)
	ExpireWaitlistOffers(ctx context.Context, now time.Time) (int, error)
}

// SweepWorker completes elapsed reservations and expires stale waitlist
// offers on a fixed interval.
type SweepWorker struct {
	sweeper  Sweeper
	interval time.Duration
	clock    func() time.Time
	logger   *zerolog.Logger
}

func NewSweepWorker(sweeper Sweeper, interval time.Duration, logger *zerolog.Logger) *SweepWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SweepWorker{
		sweeper:  sweeper,
		interval: interval,
		clock:    time.Now,
		logger:   logger,
	}
}

// Start runs one pass immediately and then every interval until ctx is done.
func (w *SweepWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("Sweep worker started")
	defer w.logger.Info().Msg("Sweep worker stopped")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single completion sweep and offer expiry pass.
func (w *SweepWorker) RunOnce(ctx context.Context) {
	now := w.clock()

	completed, err := w.sweeper.SweepCompletions(ctx, now)
	if err != nil {
		w.logger.Error().Err(err).Msg("Completion sweep failed")
	} else if completed > 0 {
		w.logger.Info().Int("completed", completed).Msg("Completion sweep finished")
	}

	expired, err := w.sweeper.ExpireWaitlistOffers(ctx, now)
	if err != nil {
		w.logger.Error().Err(err).Msg("Waitlist offer expiry failed")
	} else if expired > 0 {
		w.logger.Info().Int("expired", expired).Msg("Waitlist offers expired")
	}
}
