package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequesterLimiter(t *testing.T) {
	now := time.Date(2030, 3, 4, 8, 0, 0, 0, time.UTC)

	l := newRequesterLimiter(2, 2)
	assert.True(t, l.Allow(1, now))
	assert.True(t, l.Allow(1, now))
	assert.False(t, l.Allow(1, now))
	assert.True(t, l.Allow(2, now), "requesters have separate budgets")
	assert.True(t, l.Allow(1, now.Add(time.Minute)))

	var disabled *requesterLimiter
	assert.Nil(t, newRequesterLimiter(0, 5))
	for i := 0; i < 100; i++ {
		assert.True(t, disabled.Allow(1, now))
	}
}
