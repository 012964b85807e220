package analytics

import (
	"testing"
	"time"

	"petrel/internal/store/agentstore"
)

func TestHourlyActions(t *testing.T) {
	base := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	actions := []agentstore.Action{
		{TS: base.Add(5 * time.Minute), Kind: "like", Target: "p1"},
		{TS: base.Add(40 * time.Minute), Kind: "like", Target: "p2"},
		{TS: base.Add(50 * time.Minute), Kind: "reply", Target: "p3"},
		{TS: base.Add(90 * time.Minute), Kind: "like", Target: "p4"},
	}
	buckets := HourlyActions(actions)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 hour buckets, got %d", len(buckets))
	}
	h14 := buckets[base]
	if h14["like"] != 2 || h14["reply"] != 1 {
		t.Fatalf("unexpected 14:00 bucket: %v", h14)
	}
	if buckets[base.Add(time.Hour)]["like"] != 1 {
		t.Fatalf("unexpected 15:00 bucket: %v", buckets[base.Add(time.Hour)])
	}

	keys := SortedBucketKeys(buckets)
	if len(keys) != 2 || !keys[0].Before(keys[1]) {
		t.Fatalf("keys not sorted: %v", keys)
	}
}
