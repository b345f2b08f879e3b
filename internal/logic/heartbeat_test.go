package logic

import (
	"testing"
	"time"
)

func TestHeartbeatDisabled(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(0, start)

	if hb := h.Check(start.Add(24*time.Hour), Counts{}); hb != nil {
		t.Error("heartbeat with zero interval should be disabled")
	}
}

func TestHeartbeatBeforeInterval(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(15*time.Minute, start)

	if hb := h.Check(start.Add(14*time.Minute), Counts{}); hb != nil {
		t.Error("should not return heartbeat before interval")
	}
}

func TestHeartbeatAtInterval(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(15*time.Minute, start)

	checkTime := start.Add(15 * time.Minute)
	hb := h.Check(checkTime, Counts{Warnings: 2, Recalibrations: 3})
	if hb == nil {
		t.Fatal("should return heartbeat at interval")
	}
	if !hb.Timestamp.Equal(checkTime) {
		t.Errorf("expected timestamp %v, got %v", checkTime, hb.Timestamp)
	}
	if hb.Uptime != 15*time.Minute {
		t.Errorf("expected uptime 15m, got %v", hb.Uptime)
	}
	if hb.Counts.Warnings != 2 || hb.Counts.Recalibrations != 3 {
		t.Errorf("unexpected counts: %+v", hb.Counts)
	}
}

func TestHeartbeatUpdatesLastTime(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHeartbeat(15*time.Minute, start)

	t1 := start.Add(15 * time.Minute)
	if h.Check(t1, Counts{}) == nil {
		t.Fatal("should return first heartbeat")
	}
	if h.Check(t1.Add(time.Second), Counts{}) != nil {
		t.Error("should not return heartbeat immediately after previous")
	}
	hb := h.Check(t1.Add(15*time.Minute), Counts{})
	if hb == nil {
		t.Fatal("should return second heartbeat")
	}
	if hb.Uptime != 30*time.Minute {
		t.Errorf("expected uptime 30m, got %v", hb.Uptime)
	}
}
