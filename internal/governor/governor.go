// Package governor decides whether an action of a given kind may execute
// right now: hourly per-kind caps with a single coarse reset, plus a
// configured active-hours window.
package governor

import (
	"sync"
	"time"

	"petrel/internal/config"
	"petrel/internal/logging"
	"petrel/internal/model"
)

// Counters tracks actions performed since the last reset. All kinds reset
// together once an hour has elapsed, not on independent rolling windows; a
// burst right after a reset can exceed the steady-state rate.
type Counters struct {
	Replies       int
	Likes         int
	Retweets      int
	Quotes        int
	LastResetTime time.Time
}

// Governor gates actions behind hourly caps and active hours.
type Governor struct {
	mu       sync.Mutex
	counters Counters
	cfg      config.ActionsConfig
	hours    config.ActiveHoursConfig
	loc      *time.Location
	nowFn    func() time.Time
}

func New(actions config.ActionsConfig, hours config.ActiveHoursConfig, nowFn func() time.Time) *Governor {
	if nowFn == nil {
		nowFn = time.Now
	}
	loc := time.UTC
	if hours.Timezone != "" {
		if l, err := time.LoadLocation(hours.Timezone); err == nil {
			loc = l
		} else {
			logging.Warn("bad_timezone", map[string]any{"timezone": hours.Timezone})
		}
	}
	return &Governor{
		counters: Counters{LastResetTime: nowFn()},
		cfg:      actions,
		hours:    hours,
		loc:      loc,
		nowFn:    nowFn,
	}
}

// CanPerform reports whether an action of kind may run now. It first
// applies the coarse hourly reset, then the active-hours window, then the
// kind's cap. Retweets are rejected outright when disabled.
func (g *Governor) CanPerform(kind string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.nowFn()
	g.maybeReset(now)
	if !g.activeAt(now) {
		return false
	}
	switch kind {
	case model.KindReply:
		return g.cfg.MaxRepliesPerHour <= 0 || g.counters.Replies < g.cfg.MaxRepliesPerHour
	case model.KindLike:
		return g.cfg.MaxLikesPerHour <= 0 || g.counters.Likes < g.cfg.MaxLikesPerHour
	case model.KindRetweet:
		if !g.cfg.EnableRetweets {
			return false
		}
		return g.cfg.MaxRetweetsPerHour <= 0 || g.counters.Retweets < g.cfg.MaxRetweetsPerHour
	case model.KindQuote:
		return g.cfg.MaxQuotesPerHour <= 0 || g.counters.Quotes < g.cfg.MaxQuotesPerHour
	default:
		return true
	}
}

// RecordPerformed increments the counter for kind. Unknown kinds are a
// no-op.
func (g *Governor) RecordPerformed(kind string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeReset(g.nowFn())
	switch kind {
	case model.KindReply:
		g.counters.Replies++
	case model.KindLike:
		g.counters.Likes++
	case model.KindRetweet:
		g.counters.Retweets++
	case model.KindQuote:
		g.counters.Quotes++
	}
}

// Snapshot returns a copy of the current counters.
func (g *Governor) Snapshot() Counters {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counters
}

func (g *Governor) maybeReset(now time.Time) {
	if now.Sub(g.counters.LastResetTime) >= time.Hour {
		g.counters = Counters{LastResetTime: now}
	}
}

// Active reports whether now falls inside the active-hours window.
func (g *Governor) Active(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activeAt(now)
}

func (g *Governor) activeAt(now time.Time) bool {
	start, end := g.hours.Start, g.hours.End
	if start < 0 || end < 0 {
		return true
	}
	h := now.In(g.loc).Hour()
	if start > end {
		// overnight window, e.g. 23-6
		return h >= start || h <= end
	}
	return h >= start && h <= end
}

// TimeUntilActive returns how long until the window next opens. Zero when
// already active. Callers should still cap any single sleep (5 minutes)
// so shutdown stays responsive.
func (g *Governor) TimeUntilActive(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.activeAt(now) {
		return 0
	}
	local := now.In(g.loc)
	start := g.hours.Start
	next := time.Date(local.Year(), local.Month(), local.Day(), start, 0, 0, 0, g.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(local)
}
