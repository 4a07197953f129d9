package quota

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Verdict is the admission decision for one provider call.
type Verdict string

// Possible admission verdicts.
const (
	// VerdictAllow admits the call against the provider's quota.
	VerdictAllow Verdict = "allow"

	// VerdictReroute redirects the call to the fallback provider because
	// the daily quota is spent. This is a designed degradation path, not
	// an error.
	VerdictReroute Verdict = "reroute"

	// VerdictDeny refuses the call because the per-minute window is full.
	// Callers must treat this as a deferral and requeue without consuming
	// retry budget.
	VerdictDeny Verdict = "deny"
)

// Decision is the outcome of an admission request. Provider names the
// provider the caller should use: the requested one on allow, the fallback
// on reroute, and empty on deny.
type Decision struct {
	Verdict  Verdict
	Provider string
}

// Limits holds the configured admission limits for one provider.
type Limits struct {
	PerMinute int
	PerDay    int
}

// Usage is a point-in-time snapshot of one provider's consumption.
type Usage struct {
	Provider        string `json:"provider"`
	WindowCount     int    `json:"window_count"`
	PerMinute       int    `json:"per_minute"`
	DayCount        int    `json:"day_count"`
	PerDay          int    `json:"per_day"`
	WindowRemaining int    `json:"window_remaining"`
	DayRemaining    int    `json:"day_remaining"`
}

// counters tracks one provider's consumption. Window and day boundaries are
// rolled over lazily on the first check after the boundary has passed, so
// correctness does not depend on the governor running exactly on a boundary.
type counters struct {
	windowStart time.Time
	windowCount int
	dayStart    time.Time
	dayCount    int
}

// Governor enforces per-minute and per-day admission limits for external AI
// providers and routes overflow to a configured fallback. All counter
// updates happen under a single mutex so concurrent workers can never under-
// or over-count.
type Governor struct {
	mu       sync.Mutex
	limits   map[string]Limits
	state    map[string]*counters
	fallback string
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// Option customizes Governor construction.
type Option func(*Governor)

// WithClock overrides the wall-clock source, used by tests to control
// window and day rollover.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) {
		g.now = now
	}
}

// NewGovernor creates a quota governor for the given per-provider limits.
// Daily counters reset at midnight in the named timezone. Providers without
// configured limits (such as a locally hosted fallback) are always admitted.
func NewGovernor(
	limits map[string]Limits,
	fallbackProvider string,
	timezone string,
	logger *slog.Logger,
	opts ...Option,
) (*Governor, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid quota timezone %q: %w", timezone, err)
	}

	g := &Governor{
		limits:   limits,
		state:    make(map[string]*counters, len(limits)),
		fallback: fallbackProvider,
		loc:      loc,
		now:      time.Now,
		logger:   logger.With("component", "quota_governor"),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Admit requests admission for one call to the named provider. On allow the
// call is counted against both the minute window and the daily quota; the
// other verdicts consume nothing.
func (g *Governor) Admit(provider string) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	limits, governed := g.limits[provider]
	if !governed {
		return Decision{Verdict: VerdictAllow, Provider: provider}
	}

	now := g.now().In(g.loc)
	c := g.counterFor(provider)
	g.rollover(c, now)

	if c.windowCount+1 > limits.PerMinute {
		g.logger.Warn("per-minute limit reached, deferring call",
			"provider", provider,
			"window_count", c.windowCount,
			"per_minute", limits.PerMinute)
		return Decision{Verdict: VerdictDeny}
	}

	if c.dayCount+1 > limits.PerDay {
		g.logger.Warn("daily quota exhausted, rerouting to fallback",
			"provider", provider,
			"day_count", c.dayCount,
			"per_day", limits.PerDay,
			"fallback", g.fallback)
		return Decision{Verdict: VerdictReroute, Provider: g.fallback}
	}

	c.windowCount++
	c.dayCount++

	g.logger.Debug("call admitted",
		"provider", provider,
		"window_count", c.windowCount,
		"day_count", c.dayCount)

	return Decision{Verdict: VerdictAllow, Provider: provider}
}

// CurrentUsage reports the consumption of every governed provider without
// incrementing any counter.
func (g *Governor) CurrentUsage() []Usage {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().In(g.loc)
	usages := make([]Usage, 0, len(g.limits))

	for provider, limits := range g.limits {
		c := g.counterFor(provider)
		g.rollover(c, now)

		usages = append(usages, Usage{
			Provider:        provider,
			WindowCount:     c.windowCount,
			PerMinute:       limits.PerMinute,
			DayCount:        c.dayCount,
			PerDay:          limits.PerDay,
			WindowRemaining: max(0, limits.PerMinute-c.windowCount),
			DayRemaining:    max(0, limits.PerDay-c.dayCount),
		})
	}

	return usages
}

// counterFor returns the counters for a provider, creating them on first use.
// Callers must hold g.mu.
func (g *Governor) counterFor(provider string) *counters {
	c, ok := g.state[provider]
	if !ok {
		now := g.now().In(g.loc)
		c = &counters{windowStart: now, dayStart: now}
		g.state[provider] = c
	}
	return c
}

// rollover resets expired window and day counters. Callers must hold g.mu.
func (g *Governor) rollover(c *counters, now time.Time) {
	if now.Sub(c.windowStart) >= time.Minute {
		c.windowStart = now
		c.windowCount = 0
	}

	y1, m1, d1 := c.dayStart.Date()
	y2, m2, d2 := now.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		c.dayStart = now
		c.dayCount = 0
	}
}
