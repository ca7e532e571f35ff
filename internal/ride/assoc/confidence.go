package assoc

// Confidence score weights. Coverage dominates; duration and balance are
// independent correctives so a short or lopsided overlap cannot score well
// on mutual coverage alone.
const (
	weightCoverage = 0.6
	weightDuration = 0.2
	weightBalance  = 0.2
)

// Score computes the association confidence for an overlap, in [0,1].
func Score(o Overlap) float64 {
	avg := (o.CoverageA + o.CoverageB) / 2
	minutes := o.Duration().Minutes()

	s := weightCoverage*coverageScore(avg) +
		weightDuration*durationScore(minutes) +
		weightBalance*balanceScore(o.CoverageA, o.CoverageB)
	if s > 1 {
		s = 1
	}
	if s < 0 {
		s = 0
	}
	return s
}

// coverageScore is piecewise linear in the average of the two coverage
// fractions. Balanced near-total overlap saturates at 1.0.
func coverageScore(avg float64) float64 {
	switch {
	case avg >= 0.9:
		return 1.0
	case avg >= 0.7:
		return 0.8 + (avg - 0.7)
	case avg >= 0.5:
		return 0.6 + (avg - 0.5)
	case avg >= 0.25:
		return 0.3 + (avg-0.25)*1.2
	case avg > 0:
		return avg * 1.2
	default:
		return 0
	}
}

// durationScore is piecewise linear in absolute overlap minutes. A
// 30-second overlap is rarely meaningful even at full mutual coverage, so
// the score stays near zero below two minutes and saturates beyond an hour.
func durationScore(minutes float64) float64 {
	switch {
	case minutes >= 60:
		return 1.0
	case minutes >= 15:
		return 0.6 + (minutes-15)/45*0.4
	case minutes >= 5:
		return 0.3 + (minutes-5)/10*0.3
	case minutes >= 2:
		return 0.1 + (minutes-2)/3*0.2
	case minutes > 0:
		return minutes / 2 * 0.1
	default:
		return 0
	}
}

// balanceScore penalizes lopsided coverage without ever zeroing confidence
// from imbalance alone.
func balanceScore(coverageA, coverageB float64) float64 {
	diff := coverageA - coverageB
	if diff < 0 {
		diff = -diff
	}
	s := 1 - 0.8*diff
	if s < 0.2 {
		s = 0.2
	}
	return s
}

// Band names the qualitative confidence band a score falls in.
func Band(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return "excellent"
	case confidence >= 0.8:
		return "very good"
	case confidence >= 0.65:
		return "good"
	case confidence >= 0.5:
		return "fair"
	default:
		return "poor"
	}
}
