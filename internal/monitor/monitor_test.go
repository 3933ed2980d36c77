package monitor

import (
	"testing"
	"time"
)

func TestPeriodTsFor(t *testing.T) {
	cases := []struct {
		unix int64
		want int64
	}{
		{1767707100, 1767707100}, // exactly on a boundary
		{1767707101, 1767707100},
		{1767707999, 1767707100},
		{1767708000, 1767708000}, // next window
	}
	for _, c := range cases {
		got := PeriodTsFor(time.Unix(c.unix, 0))
		if got != c.want {
			t.Errorf("PeriodTsFor(%d) = %d, want %d", c.unix, got, c.want)
		}
	}
}

func TestSnapshotTimeRemaining(t *testing.T) {
	m := New(nil, nil, nil)
	m.periodTs = 1767707100

	snap := m.Snapshot(time.Unix(1767707100+60, 0))
	if snap.Elapsed != time.Minute {
		t.Errorf("elapsed = %s, want 1m", snap.Elapsed)
	}
	if want := 14 * time.Minute; snap.TimeRemaining != want {
		t.Errorf("remaining = %s, want %s", snap.TimeRemaining, want)
	}

	// Past the window end the remaining time clamps at zero
	snap = m.Snapshot(time.Unix(1767707100+1000, 0))
	if snap.TimeRemaining != 0 {
		t.Errorf("remaining = %s, want 0", snap.TimeRemaining)
	}
}
