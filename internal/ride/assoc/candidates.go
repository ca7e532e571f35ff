package assoc

import "time"

// Candidate is one potential counterpart for association: a log identifier
// plus its extracted time range.
type Candidate struct {
	ID    string
	Range TimeRange
}

// Match is the winning candidate with everything the caller needs to commit
// or explain the decision.
type Match struct {
	Candidate  Candidate
	Overlap    Overlap
	Confidence float64
	Drift      time.Duration
	Verdict    VerdictResult
}

// SearchBuffer is the slack added around a target range when querying for
// candidate counterparts, so a counterpart whose clock drifted slightly
// outside the target window is still considered.
const SearchBuffer = 2 * time.Hour

// SelectBest scores every candidate against the target range and returns
// the single best match, validated under cfg. Candidates with no overlap
// are discarded; the caller decides what to do with a match that fails
// Acceptable (queue for review, or reject).
//
// Ties on confidence break on smaller drift, then on lexicographically
// smaller candidate ID, so selection is deterministic regardless of input
// order.
func SelectBest(target TimeRange, candidates []Candidate, cfg Config) (Match, bool) {
	var best Match
	found := false

	for _, c := range candidates {
		m, ok := Evaluate(target, c, cfg)
		if !ok {
			continue
		}
		if !found || better(m, best) {
			best = m
			found = true
		}
	}

	return best, found
}

// Evaluate scores a single candidate pair and runs validation under cfg,
// returning a complete Match whether or not it would be accepted. The
// second return value is false when the ranges do not overlap at all.
func Evaluate(target TimeRange, c Candidate, cfg Config) (Match, bool) {
	o, ok := CalculateOverlap(target, c.Range)
	if !ok {
		return Match{}, false
	}
	return Match{
		Candidate:  c,
		Overlap:    o,
		Confidence: Score(o),
		Drift:      Drift(target, c.Range),
		Verdict:    Validate(o, cfg),
	}, true
}

// Acceptable reports whether a match clears the bar for unattended
// association under cfg: validation passed, confidence at or above the
// threshold, and drift within tolerance.
func (m Match) Acceptable(cfg Config) bool {
	if !m.Verdict.Accepted {
		return false
	}
	if m.Confidence < cfg.ConfidenceThreshold {
		return false
	}
	if cfg.MaxTimeDriftMinutes > 0 && m.Drift.Minutes() > cfg.MaxTimeDriftMinutes {
		return false
	}
	return true
}

func better(a, b Match) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.Drift != b.Drift {
		return a.Drift < b.Drift
	}
	return a.Candidate.ID < b.Candidate.ID
}
