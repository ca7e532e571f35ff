package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ridesync-data/ridesync/internal/db"
	"github.com/ridesync-data/ridesync/internal/httputil"
	"github.com/ridesync-data/ridesync/internal/ride"
	"github.com/ridesync-data/ridesync/internal/ride/assoc"
)

// methodTimeRange labels associations made by time-range correlation in the
// audit history.
const methodTimeRange = "time_range"

type associateRequest struct {
	SensorLogID string `json:"sensor_log_id"`
	// ActivityLogID restricts matching to one specific counterpart. When
	// empty, every unassociated activity near the log's time range is
	// considered.
	ActivityLogID string `json:"activity_log_id,omitempty"`
	// Mode selects the validation gate: "automatic" (strict, the default)
	// or "interactive" (looser, for operator-confirmed matches).
	Mode string `json:"mode,omitempty"`
}

type matchView struct {
	ActivityLogID    string   `json:"activity_log_id"`
	Confidence       float64  `json:"confidence"`
	Band             string   `json:"band"`
	DriftMs          int64    `json:"drift_ms"`
	OverlapStartMs   int64    `json:"overlap_start_ms"`
	OverlapEndMs     int64    `json:"overlap_end_ms"`
	OverlapDurationS float64  `json:"overlap_duration_s"`
	SensorCoverage   float64  `json:"sensor_coverage"`
	ActivityCoverage float64  `json:"activity_coverage"`
	Accepted         bool     `json:"accepted"`
	Errors           []string `json:"errors,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
}

type associateResponse struct {
	Matched   bool       `json:"matched"`
	Committed bool       `json:"committed"`
	Reason    string     `json:"reason,omitempty"`
	Match     *matchView `json:"match,omitempty"`
}

func matchToView(m assoc.Match) *matchView {
	return &matchView{
		ActivityLogID:    m.Candidate.ID,
		Confidence:       m.Confidence,
		Band:             assoc.Band(m.Confidence),
		DriftMs:          m.Drift.Milliseconds(),
		OverlapStartMs:   m.Overlap.Start.UnixMilli(),
		OverlapEndMs:     m.Overlap.End.UnixMilli(),
		OverlapDurationS: m.Overlap.Duration().Seconds(),
		SensorCoverage:   m.Overlap.CoverageA,
		ActivityCoverage: m.Overlap.CoverageB,
		Accepted:         m.Verdict.Accepted,
		Errors:           m.Verdict.Errors,
		Warnings:         m.Verdict.Warnings,
	}
}

func configForMode(mode string) (assoc.Config, error) {
	switch mode {
	case "", "automatic":
		return assoc.DefaultAutomaticConfig(), nil
	case "interactive":
		return assoc.DefaultInteractiveConfig(), nil
	default:
		return assoc.Config{}, fmt.Errorf("unknown mode %q", mode)
	}
}

// findMatch resolves the best counterpart for a ready sensor log under cfg.
func (s *Server) findMatch(ctx context.Context, lg *ride.SensorLog, onlyActivity string, cfg assoc.Config) (assoc.Match, bool, error) {
	target := assoc.RangeFromMs(lg.StartMs, lg.EndMs)

	var candidates []assoc.Candidate
	if onlyActivity != "" {
		act, err := s.activities.Get(ctx, onlyActivity)
		if err != nil {
			return assoc.Match{}, false, err
		}
		if act.OwnerID != lg.OwnerID {
			return assoc.Match{}, false, db.ErrNotFound
		}
		if act.Status != ride.StatusReady {
			return assoc.Match{}, false, fmt.Errorf("activity %s is not ready", act.ID)
		}
		candidates = []assoc.Candidate{{ID: act.ID, Range: assoc.RangeFromMs(act.StartMs, act.EndMs)}}
	} else {
		windowStart := lg.StartMs - assoc.SearchBuffer.Milliseconds()
		windowEnd := lg.EndMs + assoc.SearchBuffer.Milliseconds()
		acts, err := s.activities.ListUnassociatedInWindow(ctx, lg.OwnerID, windowStart, windowEnd)
		if err != nil {
			return assoc.Match{}, false, err
		}
		candidates = make([]assoc.Candidate, len(acts))
		for i, a := range acts {
			candidates[i] = assoc.Candidate{ID: a.ID, Range: assoc.RangeFromMs(a.StartMs, a.EndMs)}
		}
	}

	m, ok := assoc.SelectBest(target, candidates, cfg)
	return m, ok, nil
}

func (s *Server) loadReadySensorLog(w http.ResponseWriter, r *http.Request, id string) (*ride.SensorLog, bool) {
	if id == "" {
		httputil.BadRequest(w, "sensor_log_id is required")
		return nil, false
	}
	lg, err := s.logs.Get(r.Context(), id)
	if err != nil {
		s.writeLogLookupError(w, id, err)
		return nil, false
	}
	if lg.OwnerID != ownerID(r) {
		httputil.NotFound(w, fmt.Sprintf("log %s not found", id))
		return nil, false
	}
	if lg.Status != ride.StatusReady {
		httputil.Conflict(w, fmt.Sprintf("log %s is %s, not ready", id, lg.Status))
		return nil, false
	}
	return lg, true
}

// associate finds the best counterpart for a sensor log and commits the
// association when it passes the validation gate. A failed gate still
// records the attempt in the audit history.
func (s *Server) associate(w http.ResponseWriter, r *http.Request) {
	var req associateRequest
	if err := httputil.DecodeJSONBody(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	cfg, err := configForMode(req.Mode)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	lg, ok := s.loadReadySensorLog(w, r, req.SensorLogID)
	if !ok {
		return
	}
	if lg.ActivityLogID != nil {
		httputil.Conflict(w, fmt.Sprintf("log %s is already associated with activity %s", lg.ID, *lg.ActivityLogID))
		return
	}

	m, found, err := s.findMatch(r.Context(), lg, req.ActivityLogID, cfg)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			httputil.NotFound(w, fmt.Sprintf("activity %s not found", req.ActivityLogID))
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("find match: %v", err))
		return
	}
	if !found {
		httputil.WriteJSONOK(w, associateResponse{
			Matched: false,
			Reason:  "no overlapping activity found",
		})
		return
	}

	view := matchToView(m)
	if !m.Acceptable(cfg) {
		detail := strings.Join(append(m.Verdict.Errors, m.Verdict.Warnings...), "; ")
		if detail == "" {
			detail = fmt.Sprintf("confidence %.3f below threshold %.2f", m.Confidence, cfg.ConfidenceThreshold)
		}
		if err := s.assocs.RecordRejection(r.Context(), lg.ID, m.Candidate.ID, methodTimeRange,
			m.Confidence, m.Overlap.Start.UnixMilli(), m.Overlap.End.UnixMilli(), detail); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("record rejection: %v", err))
			return
		}
		httputil.WriteJSONOK(w, associateResponse{
			Matched: true,
			Reason:  detail,
			Match:   view,
		})
		return
	}

	err = s.assocs.Commit(r.Context(), lg.ID, m.Candidate.ID, methodTimeRange,
		m.Confidence, m.Overlap.Start.UnixMilli(), m.Overlap.End.UnixMilli())
	if err != nil {
		if errors.Is(err, db.ErrAlreadyAssociated) {
			httputil.Conflict(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("commit association: %v", err))
		return
	}

	httputil.WriteJSONOK(w, associateResponse{
		Matched:   true,
		Committed: true,
		Match:     view,
	})
}

// previewAssociation scores a match without writing anything.
func (s *Server) previewAssociation(w http.ResponseWriter, r *http.Request) {
	var req associateRequest
	if err := httputil.DecodeJSONBody(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	cfg, err := configForMode(req.Mode)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	lg, ok := s.loadReadySensorLog(w, r, req.SensorLogID)
	if !ok {
		return
	}

	m, found, err := s.findMatch(r.Context(), lg, req.ActivityLogID, cfg)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			httputil.NotFound(w, fmt.Sprintf("activity %s not found", req.ActivityLogID))
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("find match: %v", err))
		return
	}
	if !found {
		httputil.WriteJSONOK(w, associateResponse{Matched: false, Reason: "no overlapping activity found"})
		return
	}
	httputil.WriteJSONOK(w, associateResponse{Matched: true, Match: matchToView(m)})
}
