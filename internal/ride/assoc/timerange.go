// Package assoc decides whether two independently clocked, independently
// sampled time series describe the same physical ride. It computes time-range
// overlap, coverage, drift and a weighted confidence score, and renders an
// accept/reject/review verdict.
package assoc

import (
	"time"

	"github.com/ridesync-data/ridesync/internal/ride"
)

// TimeRange is a half-open time interval [Start, End) derived from the
// min/max timestamp of a point set. It is computed, never stored.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Duration returns the span of the range. Negative spans are reported as
// zero so malformed input degrades to a degenerate range rather than
// producing negative coverage downstream.
func (r TimeRange) Duration() time.Duration {
	if r.End.Before(r.Start) {
		return 0
	}
	return r.End.Sub(r.Start)
}

// Midpoint returns the centre of the range.
func (r TimeRange) Midpoint() time.Time {
	return r.Start.Add(r.Duration() / 2)
}

// IsDegenerate reports whether the range has no usable span.
func (r TimeRange) IsDegenerate() bool {
	return r.Duration() <= 0
}

// RangeOfMs derives the TimeRange covering a set of millisecond timestamps.
// Returns false for an empty set.
func RangeOfMs(tsMs []int64) (TimeRange, bool) {
	if len(tsMs) == 0 {
		return TimeRange{}, false
	}
	minMs, maxMs := tsMs[0], tsMs[0]
	for _, ts := range tsMs[1:] {
		if ts < minMs {
			minMs = ts
		}
		if ts > maxMs {
			maxMs = ts
		}
	}
	return RangeFromMs(minMs, maxMs), true
}

// RangeFromMs builds a TimeRange from millisecond epoch bounds.
func RangeFromMs(startMs, endMs int64) TimeRange {
	return TimeRange{Start: ride.MsToTime(startMs), End: ride.MsToTime(endMs)}
}

// Overlap is the intersection of two time ranges plus the fraction of each
// source's own duration that falls inside it.
type Overlap struct {
	Start time.Time
	End   time.Time

	// The source ranges the overlap was computed from. Validation needs
	// them to reject degenerate sources.
	RangeA TimeRange
	RangeB TimeRange

	CoverageA float64
	CoverageB float64
}

// Duration returns the span of the overlap window.
func (o Overlap) Duration() time.Duration {
	return TimeRange{Start: o.Start, End: o.End}.Duration()
}

// CalculateOverlap intersects two time ranges. The second return value is
// false when the ranges do not intersect; that is a normal negative outcome,
// not an error. Coverage against a degenerate (zero-duration) source is
// reported as zero; Validate rejects such overlaps outright.
func CalculateOverlap(a, b TimeRange) (Overlap, bool) {
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	if !start.Before(end) {
		return Overlap{}, false
	}

	o := Overlap{Start: start, End: end, RangeA: a, RangeB: b}
	d := o.Duration()
	if da := a.Duration(); da > 0 {
		o.CoverageA = float64(d) / float64(da)
	}
	if db := b.Duration(); db > 0 {
		o.CoverageB = float64(d) / float64(db)
	}
	return o, true
}

// Drift returns the absolute offset between the two ranges' midpoints. It is
// a sanity bound for automatic association, not a scoring input.
func Drift(a, b TimeRange) time.Duration {
	d := a.Midpoint().Sub(b.Midpoint())
	if d < 0 {
		d = -d
	}
	return d
}
