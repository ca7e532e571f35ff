package downsample

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func makeSeries(n int) []Point {
	points := make([]Point, n)
	for i := range points {
		t := float64(i) / 10.0
		points[i] = Point{
			TimestampMs: int64(i * 100),
			Values:      []float64{math.Sin(t), math.Cos(t), 0.1 * t},
		}
	}
	return points
}

func TestLTTBBounds(t *testing.T) {
	points := makeSeries(1000)

	for _, k := range []int{3, 10, 50, 333, 999} {
		out := LTTB(points, k)
		if len(out) > k {
			t.Errorf("threshold %d: got %d points, want <= %d", k, len(out), k)
		}
		if diff := cmp.Diff(points[0], out[0]); diff != "" {
			t.Errorf("threshold %d: first point changed (-want +got):\n%s", k, diff)
		}
		if diff := cmp.Diff(points[len(points)-1], out[len(out)-1]); diff != "" {
			t.Errorf("threshold %d: last point changed (-want +got):\n%s", k, diff)
		}
	}
}

func TestLTTBNoOp(t *testing.T) {
	points := makeSeries(20)

	// Threshold at or above the input length returns the input unchanged.
	for _, k := range []int{20, 21, 1000} {
		out := LTTB(points, k)
		if diff := cmp.Diff(points, out); diff != "" {
			t.Errorf("threshold %d should be a no-op (-want +got):\n%s", k, diff)
		}
	}

	// Degenerate thresholds are also no-ops.
	for _, k := range []int{0, 1, 2, -5} {
		out := LTTB(points, k)
		if diff := cmp.Diff(points, out); diff != "" {
			t.Errorf("threshold %d should be a no-op (-want +got):\n%s", k, diff)
		}
	}
}

func TestLTTBDeterministic(t *testing.T) {
	points := makeSeries(500)
	a := LTTB(points, 47)
	b := LTTB(points, 47)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("LTTB is not deterministic (-first +second):\n%s", diff)
	}
}

func TestLTTBDoesNotMutateInput(t *testing.T) {
	points := makeSeries(100)
	orig := make([]Point, len(points))
	copy(orig, points)

	LTTB(points, 10)

	if diff := cmp.Diff(orig, points); diff != "" {
		t.Errorf("input mutated (-orig +after):\n%s", diff)
	}
}

func TestLTTBPreservesSpike(t *testing.T) {
	// Flat series with a single large spike on the second channel. The spike
	// must survive aggressive downsampling because the driving value is the
	// cross-channel magnitude.
	points := make([]Point, 200)
	for i := range points {
		points[i] = Point{TimestampMs: int64(i * 10), Values: []float64{1, 0, 0}}
	}
	points[117].Values = []float64{1, 50, 0}

	out := LTTB(points, 20)

	found := false
	for _, p := range out {
		if p.TimestampMs == 1170 {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("spike at t=1170 lost after downsampling to %d points", len(out))
	}
}

func TestLTTBTimestampsMonotonic(t *testing.T) {
	points := makeSeries(777)
	out := LTTB(points, 63)
	for i := 1; i < len(out); i++ {
		if out[i].TimestampMs <= out[i-1].TimestampMs {
			t.Fatalf("output timestamps not strictly increasing at index %d: %d then %d",
				i, out[i-1].TimestampMs, out[i].TimestampMs)
		}
	}
}
