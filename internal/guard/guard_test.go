package guard_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkrasnove/lockbox/internal/config"
	"github.com/dkrasnove/lockbox/internal/events"
	"github.com/dkrasnove/lockbox/internal/guard"
	"github.com/dkrasnove/lockbox/internal/models"
	"github.com/dkrasnove/lockbox/internal/store"
)

func testGuardConfig() config.LockoutConfig {
	return config.LockoutConfig{
		Threshold:   5,
		Duration:    5 * time.Minute,
		BackoffCap:  30 * time.Second,
		BackoffBase: time.Second,
		ResetWindow: 30 * time.Minute,
	}
}

// clock is a manual time source for the guard.
type clock struct {
	now time.Time
}

func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestGuard(t *testing.T) (*guard.Guard, *clock, *store.MemStore) {
	t.Helper()

	st := store.NewMemStore()
	g := guard.New(st, testGuardConfig(), events.Discard())

	c := &clock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	g.SetClock(func() time.Time { return c.now })

	return g, c, st
}

func TestGuard_CleanStateAllows(t *testing.T) {
	g, _, _ := newTestGuard(t)

	remaining, err := g.Check()
	require.NoError(t, err)
	assert.Equal(t, uint32(5), remaining)
}

func TestGuard_LockoutAfterThreshold(t *testing.T) {
	g, c, _ := newTestGuard(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, g.RecordFailure())
		c.advance(time.Second)
	}

	_, err := g.Check()
	var lockErr *models.LockoutError
	require.ErrorAs(t, err, &lockErr)

	// Locked roughly five minutes from the fifth failure.
	assert.InDelta(t, (5 * time.Minute).Seconds(), lockErr.Remaining.Seconds(), 2)
}

func TestGuard_LockoutExpiryPreservesCount(t *testing.T) {
	g, c, st := newTestGuard(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, g.RecordFailure())
	}

	// Before expiry: denied.
	c.advance(4 * time.Minute)
	_, err := g.Check()
	assert.ErrorAs(t, err, new(*models.LockoutError))

	// After expiry: allowed again, lock cleared, count retained.
	c.advance(2 * time.Minute)
	remaining, err := g.Check()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), remaining)

	data, err := st.Get(store.KeyLoginAttempts)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"count":5`)
	assert.NotContains(t, string(data), "locked_until")
}

func TestGuard_ResetWindowWipesHistory(t *testing.T) {
	g, c, st := newTestGuard(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, g.RecordFailure())
	}

	// The reset window beats an active lockout check.
	c.advance(31 * time.Minute)
	remaining, err := g.Check()
	require.NoError(t, err)
	assert.Equal(t, uint32(5), remaining)

	_, err = st.Get(store.KeyLoginAttempts)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGuard_Backoff(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  time.Duration
	}{
		{"single failure has no delay", 1, 0},
		{"second failure waits 1s", 2, time.Second},
		{"third failure waits 2s", 3, 2 * time.Second},
		{"fifth failure hits lockout first", 4, 4 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, c, _ := newTestGuard(t)

			for i := 0; i < tt.count; i++ {
				require.NoError(t, g.RecordFailure())
			}

			if tt.want == 0 {
				_, err := g.Check()
				assert.NoError(t, err)
				return
			}

			_, err := g.Check()
			var backoff *models.BackoffError
			require.ErrorAs(t, err, &backoff)
			assert.InDelta(t, tt.want.Seconds(), backoff.Remaining.Seconds(), 0.01)

			// Once the delay has elapsed the attempt is allowed.
			c.advance(tt.want)
			_, err = g.Check()
			assert.NoError(t, err)
		})
	}
}

func TestGuard_BackoffCap(t *testing.T) {
	g, c, st := newTestGuard(t)
	cfg := testGuardConfig()

	// Seed a high count directly; with no active lock the delay must
	// still be capped.
	rec := models.AttemptRecord{
		Count:          10,
		FirstAttemptAt: c.now.Add(-time.Minute),
		LastAttemptAt:  c.now,
	}
	data, err := json.Marshal(&rec)
	require.NoError(t, err)
	require.NoError(t, st.Set(store.KeyLoginAttempts, data))

	_, err = g.Check()
	var backoff *models.BackoffError
	require.ErrorAs(t, err, &backoff)
	assert.Equal(t, cfg.BackoffCap, backoff.Remaining)
}

func TestGuard_ClearDeletesRecord(t *testing.T) {
	g, _, st := newTestGuard(t)

	require.NoError(t, g.RecordFailure())
	require.NoError(t, g.Clear())

	_, err := st.Get(store.KeyLoginAttempts)
	assert.ErrorIs(t, err, store.ErrNotFound)

	remaining, err := g.Check()
	require.NoError(t, err)
	assert.Equal(t, uint32(5), remaining)
}

func TestGuard_CorruptRecordTreatedAsClean(t *testing.T) {
	g, _, st := newTestGuard(t)

	require.NoError(t, st.Set(store.KeyLoginAttempts, []byte("not-json")))

	remaining, err := g.Check()
	require.NoError(t, err)
	assert.Equal(t, uint32(5), remaining)
}
