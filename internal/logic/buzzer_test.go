package logic

import (
	"testing"
	"time"

	"github.com/sweeney/co2-monitor/internal/clock"
)

func TestBuzzerInactiveByDefault(t *testing.T) {
	b := NewBuzzerPattern(0, 0)
	on, changed := b.Tick(1000)
	if on || changed {
		t.Errorf("inactive buzzer: got on=%v changed=%v", on, changed)
	}
}

func TestBuzzerPattern(t *testing.T) {
	b := NewBuzzerPattern(500*time.Millisecond, 50*time.Millisecond)
	b.Start(1000)
	if !b.On() {
		t.Fatal("pattern should start in the on phase")
	}

	steps := []struct {
		at      clock.Millis
		on      bool
		changed bool
	}{
		{1020, true, false},
		{1499, true, false},
		{1500, false, true},
		{1520, false, false},
		{1550, true, true},
		{2049, true, false},
		{2050, false, true},
	}
	for _, s := range steps {
		on, changed := b.Tick(s.at)
		if on != s.on || changed != s.changed {
			t.Errorf("at %d: got on=%v changed=%v, want on=%v changed=%v", s.at, on, changed, s.on, s.changed)
		}
	}
}

func TestBuzzerStop(t *testing.T) {
	b := NewBuzzerPattern(0, 0)
	b.Start(0)
	b.Stop()

	if b.Active() || b.On() {
		t.Error("stopped pattern should be inactive and off")
	}
	if on, changed := b.Tick(10000); on || changed {
		t.Errorf("stopped pattern ticked: on=%v changed=%v", on, changed)
	}
}
