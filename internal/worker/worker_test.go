package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNextDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}

	assert.Equal(t, 100*time.Millisecond, p.NextDelay(0))
	assert.Equal(t, 100*time.Millisecond, p.NextDelay(1))
	assert.Equal(t, 200*time.Millisecond, p.NextDelay(2))
	assert.Equal(t, 800*time.Millisecond, p.NextDelay(4))
	assert.Equal(t, time.Second, p.NextDelay(10))

	assert.Equal(t, time.Second, RetryPolicy{}.NextDelay(1))
}

func TestRetryDo(t *testing.T) {
	transient := errors.New("transient")
	fatal := errors.New("fatal")
	p := RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	isTransient := func(err error) bool { return errors.Is(err, transient) }

	t.Run("SucceedsAfterRetries", func(t *testing.T) {
		calls := 0
		err := p.Do(context.Background(), isTransient, func(int) error {
			calls++
			if calls < 3 {
				return transient
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("GivesUp", func(t *testing.T) {
		calls := 0
		err := p.Do(context.Background(), isTransient, func(int) error {
			calls++
			return transient
		})
		assert.ErrorIs(t, err, transient)
		assert.Equal(t, 4, calls)
	})

	t.Run("NonRetryableStopsImmediately", func(t *testing.T) {
		calls := 0
		err := p.Do(context.Background(), isTransient, func(int) error {
			calls++
			return fatal
		})
		assert.ErrorIs(t, err, fatal)
		assert.Equal(t, 1, calls)
	})

	t.Run("ContextCancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		slow := RetryPolicy{MaxRetries: 5, InitialDelay: time.Hour}
		err := slow.Do(ctx, nil, func(int) error {
			calls++
			return transient
		})
		assert.ErrorIs(t, err, transient)
		assert.Equal(t, 1, calls)
	})
}

type mockSweeper struct {
	mock.Mock
}

func (m *mockSweeper) SweepCompletions(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *mockSweeper) ExpireWaitlistOffers(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func TestSweepWorker_RunOnce(t *testing.T) {
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	sweeper := new(mockSweeper)
	sweeper.On("SweepCompletions", mock.Anything, now).Return(2, nil).Once()
	sweeper.On("ExpireWaitlistOffers", mock.Anything, now).Return(0, errors.New("db down")).Once()

	logger := zerolog.Nop()
	w := NewSweepWorker(sweeper, time.Minute, &logger)
	w.clock = func() time.Time { return now }

	w.RunOnce(context.Background())
	sweeper.AssertExpectations(t)
}

type countingSweeper struct {
	sweeps atomic.Int32
}

func (c *countingSweeper) SweepCompletions(context.Context, time.Time) (int, error) {
	c.sweeps.Add(1)
	return 0, nil
}

func (c *countingSweeper) ExpireWaitlistOffers(context.Context, time.Time) (int, error) {
	return 0, nil
}

func TestSweepWorker_StartStops(t *testing.T) {
	sweeper := &countingSweeper{}
	logger := zerolog.Nop()
	w := NewSweepWorker(sweeper, 10*time.Millisecond, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sweeper.sweeps.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep worker did not stop")
	}
}
