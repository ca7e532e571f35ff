package assoc

import (
	"fmt"
	"time"
)

// Config is the tunable surface for association decisions.
type Config struct {
	// MinOverlapMinutes is the hard floor on overlap duration; shorter
	// overlaps are rejected outright.
	MinOverlapMinutes float64
	// MaxTimeDriftMinutes bounds the midpoint offset tolerated by
	// automatic association.
	MaxTimeDriftMinutes float64
	// ConfidenceThreshold is the minimum score an automatic caller may
	// accept without human review.
	ConfidenceThreshold float64

	// Recognized extension points; currently no-ops. Kept on the config so
	// callers setting them get a stable surface rather than a silent drop.
	EnableGPSValidation   bool
	EnablePatternMatching bool
}

// DefaultAutomaticConfig returns the config for unattended association.
// Stricter than interactive because there is no human fallback behind an
// automatic accept.
func DefaultAutomaticConfig() Config {
	return Config{
		MinOverlapMinutes:   5,
		MaxTimeDriftMinutes: 30,
		ConfidenceThreshold: 0.8,
	}
}

// DefaultInteractiveConfig returns the config for preview/manual flows,
// where a human confirms the final pairing.
func DefaultInteractiveConfig() Config {
	return Config{
		MinOverlapMinutes:   2,
		MaxTimeDriftMinutes: 120,
		ConfidenceThreshold: 0.5,
	}
}

// VerdictResult is the outcome of validating an overlap. Errors reject the
// association; warnings flag it for review but do not reject.
type VerdictResult struct {
	Accepted bool     `json:"accepted"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validate applies the hard gate that must pass before a confidence score
// is trusted. It is deliberately separate from scoring: a high score on a
// structurally unsound overlap (degenerate source, sub-minimum duration)
// must not slip through.
func Validate(o Overlap, cfg Config) VerdictResult {
	var res VerdictResult

	if o.RangeA.IsDegenerate() {
		res.Errors = append(res.Errors, "source A has zero duration")
	}
	if o.RangeB.IsDegenerate() {
		res.Errors = append(res.Errors, "source B has zero duration")
	}

	minutes := o.Duration().Minutes()
	if minutes < cfg.MinOverlapMinutes {
		res.Errors = append(res.Errors,
			fmt.Sprintf("overlap %.1f min below minimum %.1f min", minutes, cfg.MinOverlapMinutes))
	}

	if o.CoverageA < 0.10 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("source A coverage %.0f%% is very low", o.CoverageA*100))
	}
	if o.CoverageB < 0.10 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("source B coverage %.0f%% is very low", o.CoverageB*100))
	}

	imbalance := o.CoverageA - o.CoverageB
	if imbalance < 0 {
		imbalance = -imbalance
	}
	if imbalance > 0.5 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("coverage imbalance %.0f%% exceeds 50%%", imbalance*100))
	}

	if o.Duration() < 2*time.Minute {
		res.Warnings = append(res.Warnings, "overlap is under 2 minutes")
	}

	res.Accepted = len(res.Errors) == 0
	return res
}
