package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedBurstThenDeny(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	k := NewKeyed(10, 5)
	k.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		d := k.Allow("user:1")
		assert.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 5, d.Limit)
		assert.Equal(t, 4-i, d.Remaining)
	}

	denied := k.Allow("user:1")
	assert.False(t, denied.Allowed)
	assert.Equal(t, 0, denied.Remaining)
	assert.InDelta(t, 6*time.Second, denied.RetryAfter, float64(time.Millisecond))

	assert.True(t, k.Allow("user:2").Allowed, "keys are independent")

	now = now.Add(6 * time.Second)
	assert.True(t, k.Allow("user:1").Allowed, "token refilled")
}

func TestKeyedZeroLimitDeniesAll(t *testing.T) {
	k := NewKeyed(0, 0)

	d := k.Allow("free")

	assert.False(t, d.Allowed)
	assert.Zero(t, d.RetryAfter)
}

func TestKeyedPrunesIdle(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	k := NewKeyed(60, 1)
	k.now = func() time.Time { return now }

	k.Allow("a")
	k.Allow("b")
	assert.Equal(t, 2, k.Len())

	now = now.Add(defaultIdleTTL + time.Minute)
	k.Allow("c")
	assert.Equal(t, 1, k.Len())
}
