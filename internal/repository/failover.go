package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"reservation-engine/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverLocker prefers the primary (Redis) locker and falls back to the
// in-process one while the primary is failing. The primary is retried after
// recoverAfter.
type FailoverLocker struct {
	primary      domain.ResourceLocker
	fallback     domain.ResourceLocker
	logger       *zerolog.Logger
	isDown       atomic.Bool
	lastCheck    atomic.Int64
	recoverAfter time.Duration
	now          func() time.Time
}

func NewFailoverLocker(primary, fallback domain.ResourceLocker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:      primary,
		fallback:     fallback,
		logger:       logger,
		recoverAfter: time.Minute,
		now:          time.Now,
	}
}

func (l *FailoverLocker) Lock(ctx context.Context, resourceID int64) (func(), error) {
	if l.isDown.Load() && l.now().Sub(time.Unix(0, l.lastCheck.Load())) <= l.recoverAfter {
		return l.fallback.Lock(ctx, resourceID)
	}

	unlock, err := l.primary.Lock(ctx, resourceID)
	if err == nil {
		if l.isDown.CompareAndSwap(true, false) {
			l.logger.Info().Msg("Primary resource locker recovered")
		}
		return unlock, nil
	}
	// Waiting out a held lock is not a primary failure.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	l.logger.Error().Err(err).Int64("resource_id", resourceID).Msg("Primary resource locker failed, falling back to memory")
	l.isDown.Store(true)
	l.lastCheck.Store(l.now().UnixNano())
	return l.fallback.Lock(ctx, resourceID)
}
