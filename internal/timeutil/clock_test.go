package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	d := clock.Since(past)

	if d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClock_After(t *testing.T) {
	clock := RealClock{}
	select {
	case <-clock.After(10 * time.Millisecond):
		// fired as expected
	case <-time.After(time.Second):
		t.Error("After() channel did not fire")
	}
}

func TestMockClock_NowAndSet(t *testing.T) {
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if got := clock.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	later := start.Add(time.Hour)
	clock.Set(later)
	if got := clock.Now(); !got.Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", got, later)
	}
}

func TestMockClock_AdvanceAndSince(t *testing.T) {
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Advance(90 * time.Second)
	if got := clock.Since(start); got != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", got)
	}
}

func TestMockClock_SleepRecords(t *testing.T) {
	clock := NewMockClock(time.Now())
	clock.Sleep(5 * time.Second)
	clock.Sleep(time.Minute)

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 5*time.Second || sleeps[1] != time.Minute {
		t.Errorf("Sleeps() = %v, want [5s 1m0s]", sleeps)
	}
}

func TestMockClock_AfterFiresOnAdvance(t *testing.T) {
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	ch := clock.After(time.Minute)

	select {
	case <-ch:
		t.Fatal("After() fired before the clock advanced")
	default:
	}

	clock.Advance(30 * time.Second)
	select {
	case <-ch:
		t.Fatal("After() fired before its deadline")
	default:
	}

	clock.Advance(30 * time.Second)
	select {
	case got := <-ch:
		want := start.Add(time.Minute)
		if !got.Equal(want) {
			t.Errorf("After() delivered %v, want %v", got, want)
		}
	default:
		t.Fatal("After() did not fire at its deadline")
	}
}
