package assoc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRange(t *testing.T, start, end string) TimeRange {
	t.Helper()
	s, err := time.Parse(time.RFC3339, start)
	require.NoError(t, err)
	e, err := time.Parse(time.RFC3339, end)
	require.NoError(t, err)
	return TimeRange{Start: s, End: e}
}

func TestCalculateOverlapSymmetry(t *testing.T) {
	a := mustRange(t, "2025-06-01T10:00:00Z", "2025-06-01T10:45:00Z")
	b := mustRange(t, "2025-06-01T10:05:00Z", "2025-06-01T10:50:00Z")

	oab, ok := CalculateOverlap(a, b)
	require.True(t, ok)
	oba, ok := CalculateOverlap(b, a)
	require.True(t, ok)

	assert.Equal(t, oab.Start, oba.Start)
	assert.Equal(t, oab.End, oba.End)
	assert.Equal(t, oab.Duration(), oba.Duration())
	assert.Equal(t, oab.CoverageA, oba.CoverageB)
	assert.Equal(t, oab.CoverageB, oba.CoverageA)
}

func TestCalculateOverlapContainment(t *testing.T) {
	cases := []struct {
		name string
		a, b TimeRange
	}{
		{"partial", mustRange(t, "2025-06-01T10:00:00Z", "2025-06-01T11:00:00Z"),
			mustRange(t, "2025-06-01T10:30:00Z", "2025-06-01T12:00:00Z")},
		{"nested", mustRange(t, "2025-06-01T08:00:00Z", "2025-06-01T14:00:00Z"),
			mustRange(t, "2025-06-01T09:00:00Z", "2025-06-01T10:00:00Z")},
		{"identical", mustRange(t, "2025-06-01T10:00:00Z", "2025-06-01T11:00:00Z"),
			mustRange(t, "2025-06-01T10:00:00Z", "2025-06-01T11:00:00Z")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, ok := CalculateOverlap(tc.a, tc.b)
			require.True(t, ok)
			assert.False(t, o.Start.Before(tc.a.Start))
			assert.False(t, o.Start.Before(tc.b.Start))
			assert.False(t, o.End.After(tc.a.End))
			assert.False(t, o.End.After(tc.b.End))
		})
	}
}

func TestCalculateOverlapNone(t *testing.T) {
	// A = [0, 10] minutes, B = [20, 30] minutes.
	a := mustRange(t, "2025-06-01T10:00:00Z", "2025-06-01T10:10:00Z")
	b := mustRange(t, "2025-06-01T10:20:00Z", "2025-06-01T10:30:00Z")

	_, ok := CalculateOverlap(a, b)
	assert.False(t, ok, "disjoint ranges must not overlap")

	// Touching endpoints do not overlap either (half-open intervals).
	c := mustRange(t, "2025-06-01T10:10:00Z", "2025-06-01T10:20:00Z")
	_, ok = CalculateOverlap(a, c)
	assert.False(t, ok)
}

func TestRangeOfMs(t *testing.T) {
	r, ok := RangeOfMs([]int64{5000, 1000, 9000, 3000})
	require.True(t, ok)
	assert.Equal(t, int64(1000), r.Start.UnixMilli())
	assert.Equal(t, int64(9000), r.End.UnixMilli())

	_, ok = RangeOfMs(nil)
	assert.False(t, ok)
}

func TestConfidenceMonotonicInCoverage(t *testing.T) {
	// Hold duration and balance fixed, sweep average coverage.
	base := mustRange(t, "2025-06-01T10:00:00Z", "2025-06-01T10:40:00Z")
	prev := -1.0
	for cov := 0.05; cov <= 1.0; cov += 0.05 {
		o := Overlap{
			Start:     base.Start,
			End:       base.End,
			RangeA:    base,
			RangeB:    base,
			CoverageA: cov,
			CoverageB: cov,
		}
		s := Score(o)
		assert.GreaterOrEqual(t, s, prev, "confidence decreased at coverage %.2f", cov)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
		prev = s
	}
}

func TestAssociationAcceptScenario(t *testing.T) {
	// Sensor [10:00, 10:45], activity [10:05, 10:50]: 45-minute durations,
	// 40-minute overlap, coverage ~0.89 on both sides.
	sensor := mustRange(t, "2025-06-01T10:00:00Z", "2025-06-01T10:45:00Z")
	activity := mustRange(t, "2025-06-01T10:05:00Z", "2025-06-01T10:50:00Z")

	o, ok := CalculateOverlap(sensor, activity)
	require.True(t, ok)
	assert.InDelta(t, 40*time.Minute.Minutes(), o.Duration().Minutes(), 0.01)
	assert.InDelta(t, 0.889, o.CoverageA, 0.001)
	assert.InDelta(t, 0.889, o.CoverageB, 0.001)

	conf := Score(o)
	assert.GreaterOrEqual(t, conf, 0.8, "expected at least the very-good band")
	assert.Equal(t, "excellent", Band(conf))

	v := Validate(o, DefaultAutomaticConfig())
	assert.True(t, v.Accepted)
	assert.Empty(t, v.Errors)
}

func TestAssociationRejectOnDrift(t *testing.T) {
	// Same durations, activity shifted to [11:30, 12:15]: no overlap at all.
	sensor := mustRange(t, "2025-06-01T10:00:00Z", "2025-06-01T10:45:00Z")
	activity := mustRange(t, "2025-06-01T11:30:00Z", "2025-06-01T12:15:00Z")

	_, ok := CalculateOverlap(sensor, activity)
	assert.False(t, ok)

	_, found := SelectBest(sensor, []Candidate{{ID: "act-1", Range: activity}}, DefaultAutomaticConfig())
	assert.False(t, found, "non-overlapping candidate must not match")
}

func TestValidateDegenerateRange(t *testing.T) {
	point := mustRange(t, "2025-06-01T10:00:00Z", "2025-06-01T10:00:00Z")
	full := mustRange(t, "2025-06-01T09:00:00Z", "2025-06-01T11:00:00Z")

	// A degenerate range never even overlaps (half-open, zero span).
	_, ok := CalculateOverlap(point, full)
	assert.False(t, ok)

	// And validation rejects any overlap claiming a degenerate source.
	o := Overlap{Start: full.Start, End: full.End, RangeA: point, RangeB: full}
	v := Validate(o, DefaultInteractiveConfig())
	assert.False(t, v.Accepted)
	assert.NotEmpty(t, v.Errors)
}

func TestValidateWarnings(t *testing.T) {
	// 10-hour source A, 20-minute source B fully inside it: A coverage is
	// ~3%, imbalance ~97%.
	a := mustRange(t, "2025-06-01T00:00:00Z", "2025-06-01T10:00:00Z")
	b := mustRange(t, "2025-06-01T05:00:00Z", "2025-06-01T05:20:00Z")

	o, ok := CalculateOverlap(a, b)
	require.True(t, ok)

	v := Validate(o, DefaultAutomaticConfig())
	assert.True(t, v.Accepted, "warnings alone must not reject")
	assert.Len(t, v.Warnings, 2)
}

func TestValidateMinOverlap(t *testing.T) {
	a := mustRange(t, "2025-06-01T10:00:00Z", "2025-06-01T10:03:00Z")
	b := mustRange(t, "2025-06-01T10:01:00Z", "2025-06-01T10:04:00Z")

	o, ok := CalculateOverlap(a, b)
	require.True(t, ok)

	v := Validate(o, DefaultAutomaticConfig())
	assert.False(t, v.Accepted, "2-minute overlap is below the 5-minute automatic floor")
}

func TestDrift(t *testing.T) {
	a := mustRange(t, "2025-06-01T10:00:00Z", "2025-06-01T11:00:00Z")
	b := mustRange(t, "2025-06-01T10:30:00Z", "2025-06-01T11:30:00Z")

	assert.Equal(t, 30*time.Minute, Drift(a, b))
	assert.Equal(t, 30*time.Minute, Drift(b, a))
	assert.Equal(t, time.Duration(0), Drift(a, a))
}

func TestSelectBestPicksHighestConfidence(t *testing.T) {
	target := mustRange(t, "2025-06-01T10:00:00Z", "2025-06-01T11:00:00Z")
	candidates := []Candidate{
		{ID: "short", Range: mustRange(t, "2025-06-01T10:50:00Z", "2025-06-01T11:40:00Z")},
		{ID: "good", Range: mustRange(t, "2025-06-01T10:02:00Z", "2025-06-01T11:01:00Z")},
		{ID: "disjoint", Range: mustRange(t, "2025-06-01T13:00:00Z", "2025-06-01T14:00:00Z")},
	}

	m, found := SelectBest(target, candidates, DefaultAutomaticConfig())
	require.True(t, found)
	assert.Equal(t, "good", m.Candidate.ID)
	assert.True(t, m.Acceptable(DefaultAutomaticConfig()))
}

func TestSelectBestTieBreak(t *testing.T) {
	target := mustRange(t, "2025-06-01T10:00:00Z", "2025-06-01T11:00:00Z")

	// Two candidates with identical ranges: identical confidence and drift,
	// so the lexicographically smaller ID must win, in either input order.
	r := mustRange(t, "2025-06-01T10:05:00Z", "2025-06-01T11:05:00Z")
	forward := []Candidate{{ID: "b", Range: r}, {ID: "a", Range: r}}
	backward := []Candidate{{ID: "a", Range: r}, {ID: "b", Range: r}}

	m1, found := SelectBest(target, forward, DefaultAutomaticConfig())
	require.True(t, found)
	m2, found := SelectBest(target, backward, DefaultAutomaticConfig())
	require.True(t, found)

	assert.Equal(t, "a", m1.Candidate.ID)
	assert.Equal(t, "a", m2.Candidate.ID)
}

func TestAcceptableEnforcesThresholdAndDrift(t *testing.T) {
	target := mustRange(t, "2025-06-01T10:00:00Z", "2025-06-01T11:00:00Z")

	// Overlapping but mostly disjoint: passes validation, low confidence.
	weak := Candidate{ID: "weak", Range: mustRange(t, "2025-06-01T10:52:00Z", "2025-06-01T13:00:00Z")}
	m, ok := Evaluate(target, weak, DefaultAutomaticConfig())
	require.True(t, ok)
	assert.False(t, m.Acceptable(DefaultAutomaticConfig()))
}
