package governor

import (
	"testing"
	"time"

	"petrel/internal/config"
	"petrel/internal/model"
)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestHourlyCapAndCoarseReset(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	g := New(config.ActionsConfig{MaxRepliesPerHour: 5}, config.ActiveHoursConfig{Start: -1, End: -1}, fixedClock(&now))

	for i := 0; i < 5; i++ {
		if !g.CanPerform(model.KindReply) {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
		g.RecordPerformed(model.KindReply)
	}
	if g.CanPerform(model.KindReply) {
		t.Fatal("6th reply within the hour should be rejected")
	}
	// 61 minutes later all counters reset together
	now = now.Add(61 * time.Minute)
	if !g.CanPerform(model.KindReply) {
		t.Fatal("reply should be allowed after reset")
	}
	if c := g.Snapshot(); c.Replies != 0 {
		t.Fatalf("expected counter reset, got %d", c.Replies)
	}
}

func TestResetClearsAllKindsTogether(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	g := New(config.ActionsConfig{MaxRepliesPerHour: 1, MaxLikesPerHour: 1, MaxQuotesPerHour: 1}, config.ActiveHoursConfig{Start: -1, End: -1}, fixedClock(&now))
	g.RecordPerformed(model.KindReply)
	g.RecordPerformed(model.KindLike)
	g.RecordPerformed(model.KindQuote)
	now = now.Add(time.Hour)
	_ = g.CanPerform(model.KindReply) // triggers reset
	c := g.Snapshot()
	if c.Replies != 0 || c.Likes != 0 || c.Quotes != 0 {
		t.Fatalf("expected full reset, got %+v", c)
	}
}

func TestRetweetsDisabled(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	g := New(config.ActionsConfig{EnableRetweets: false}, config.ActiveHoursConfig{Start: -1, End: -1}, fixedClock(&now))
	if g.CanPerform(model.KindRetweet) {
		t.Fatal("retweet should be rejected when disabled")
	}
	g2 := New(config.ActionsConfig{EnableRetweets: true}, config.ActiveHoursConfig{Start: -1, End: -1}, fixedClock(&now))
	if !g2.CanPerform(model.KindRetweet) {
		t.Fatal("retweet should be allowed when enabled")
	}
}

func TestUnknownKindRecordedAsNoop(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	g := New(config.ActionsConfig{}, config.ActiveHoursConfig{Start: -1, End: -1}, fixedClock(&now))
	g.RecordPerformed("mystery")
	if c := g.Snapshot(); c.Replies+c.Likes+c.Retweets+c.Quotes != 0 {
		t.Fatalf("unknown kind should not count, got %+v", c)
	}
	if !g.CanPerform("mystery") {
		t.Fatal("unknown kind should be allowed")
	}
}

func TestOvernightActiveHours(t *testing.T) {
	hours := config.ActiveHoursConfig{Start: 23, End: 6, Timezone: "UTC"}
	at := func(h int) time.Time { return time.Date(2025, 1, 1, h, 0, 0, 0, time.UTC) }
	now := at(2)
	g := New(config.ActionsConfig{}, hours, fixedClock(&now))

	if !g.Active(at(2)) {
		t.Fatal("hour 2 should be inside the overnight window")
	}
	if !g.Active(at(23)) {
		t.Fatal("hour 23 should be inside the overnight window")
	}
	if g.Active(at(12)) {
		t.Fatal("hour 12 should be outside the overnight window")
	}
	if got := g.TimeUntilActive(at(12)); got != 11*time.Hour {
		t.Fatalf("expected 11h until window opens, got %v", got)
	}
	if got := g.TimeUntilActive(at(2)); got != 0 {
		t.Fatalf("expected 0 while active, got %v", got)
	}
}

func TestNormalActiveHours(t *testing.T) {
	hours := config.ActiveHoursConfig{Start: 9, End: 17, Timezone: "UTC"}
	at := func(h int) time.Time { return time.Date(2025, 1, 1, h, 0, 0, 0, time.UTC) }
	now := at(10)
	g := New(config.ActionsConfig{}, hours, fixedClock(&now))

	if !g.Active(at(9)) || !g.Active(at(17)) {
		t.Fatal("boundary hours are inclusive")
	}
	if g.Active(at(8)) || g.Active(at(18)) {
		t.Fatal("outside hours should be inactive")
	}
	// 18:00 -> next 09:00 is 15h away
	if got := g.TimeUntilActive(at(18)); got != 15*time.Hour {
		t.Fatalf("expected 15h, got %v", got)
	}
}

func TestUnsetWindowAlwaysActive(t *testing.T) {
	now := time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC)
	g := New(config.ActionsConfig{}, config.ActiveHoursConfig{Start: -1, End: -1}, fixedClock(&now))
	if !g.Active(now) {
		t.Fatal("unset window should always be active")
	}
	if g.TimeUntilActive(now) != 0 {
		t.Fatal("unset window should report zero wait")
	}
}
