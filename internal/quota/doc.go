// Package quota implements admission control for external AI providers:
// a per-minute request window, a calendar-day quota with lazy rollover, and
// rerouting to a fallback provider once the daily quota is spent.
package quota
