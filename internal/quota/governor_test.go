package quota

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// testClock is a controllable wall clock for rollover tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGovernor(t *testing.T, perMinute, perDay int) (*Governor, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)}
	g, err := NewGovernor(
		map[string]Limits{"gemini": {PerMinute: perMinute, PerDay: perDay}},
		"ollama",
		"UTC",
		testLogger(),
		WithClock(clock.Now),
	)
	require.NoError(t, err)
	return g, clock
}

func TestAdmitWithinLimits(t *testing.T) {
	g, _ := newTestGovernor(t, 15, 1500)

	for i := 0; i < 15; i++ {
		d := g.Admit("gemini")
		assert.Equal(t, VerdictAllow, d.Verdict)
		assert.Equal(t, "gemini", d.Provider)
	}
}

func TestAdmitDeniesBeyondPerMinute(t *testing.T) {
	g, _ := newTestGovernor(t, 15, 1500)

	for i := 0; i < 15; i++ {
		require.Equal(t, VerdictAllow, g.Admit("gemini").Verdict)
	}

	// The 16th call in the same window is deferred, not failed.
	d := g.Admit("gemini")
	assert.Equal(t, VerdictDeny, d.Verdict)
	assert.Empty(t, d.Provider)
}

func TestAdmitAllowsAfterWindowRollover(t *testing.T) {
	g, clock := newTestGovernor(t, 15, 1500)

	for i := 0; i < 15; i++ {
		require.Equal(t, VerdictAllow, g.Admit("gemini").Verdict)
	}
	require.Equal(t, VerdictDeny, g.Admit("gemini").Verdict)

	clock.Advance(61 * time.Second)

	assert.Equal(t, VerdictAllow, g.Admit("gemini").Verdict)
}

func TestAdmitReroutesOnDailyQuota(t *testing.T) {
	g, clock := newTestGovernor(t, 10, 25)

	admitted := 0
	for admitted < 25 {
		d := g.Admit("gemini")
		if d.Verdict == VerdictDeny {
			clock.Advance(61 * time.Second)
			continue
		}
		require.Equal(t, VerdictAllow, d.Verdict)
		admitted++
	}

	// Daily quota spent, minute window fresh: the call must be rerouted
	// to the fallback, never denied.
	clock.Advance(61 * time.Second)
	d := g.Admit("gemini")
	assert.Equal(t, VerdictReroute, d.Verdict)
	assert.Equal(t, "ollama", d.Provider)
}

func TestAdmitResetsOnDayRollover(t *testing.T) {
	g, clock := newTestGovernor(t, 1000, 3)

	for i := 0; i < 3; i++ {
		require.Equal(t, VerdictAllow, g.Admit("gemini").Verdict)
	}
	require.Equal(t, VerdictReroute, g.Admit("gemini").Verdict)

	// Crossing midnight resets the daily counter even though nothing ran
	// at the boundary itself.
	clock.Advance(13 * time.Hour)

	assert.Equal(t, VerdictAllow, g.Admit("gemini").Verdict)
}

func TestAdmitUngoverned(t *testing.T) {
	g, _ := newTestGovernor(t, 1, 1)

	// The fallback provider carries no limits and is always admitted.
	for i := 0; i < 100; i++ {
		d := g.Admit("ollama")
		assert.Equal(t, VerdictAllow, d.Verdict)
	}
}

func TestAdmitNeverExceedsLimitUnderContention(t *testing.T) {
	g, _ := newTestGovernor(t, 50, 1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Admit("gemini").Verdict == VerdictAllow {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestCurrentUsage(t *testing.T) {
	g, _ := newTestGovernor(t, 15, 1500)

	for i := 0; i < 4; i++ {
		require.Equal(t, VerdictAllow, g.Admit("gemini").Verdict)
	}

	usages := g.CurrentUsage()
	require.Len(t, usages, 1)
	assert.Equal(t, "gemini", usages[0].Provider)
	assert.Equal(t, 4, usages[0].WindowCount)
	assert.Equal(t, 4, usages[0].DayCount)
	assert.Equal(t, 11, usages[0].WindowRemaining)
	assert.Equal(t, 1496, usages[0].DayRemaining)
}

func TestNewGovernorRejectsBadTimezone(t *testing.T) {
	_, err := NewGovernor(nil, "ollama", "Mars/Olympus", testLogger())
	assert.Error(t, err)
}
