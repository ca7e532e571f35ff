package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ridesync-data/ridesync/internal/db"
	"github.com/ridesync-data/ridesync/internal/httputil"
	"github.com/ridesync-data/ridesync/internal/ride"
	"github.com/ridesync-data/ridesync/internal/ride/activity"
	"github.com/ridesync-data/ridesync/internal/units"
)

type activityLogView struct {
	ID           string   `json:"id"`
	Filename     string   `json:"filename"`
	Sport        string   `json:"sport,omitempty"`
	Status       string   `json:"status"`
	StartMs      int64    `json:"start_ms,omitempty"`
	EndMs        int64    `json:"end_ms,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
	SensorLogID  *string  `json:"sensor_log_id,omitempty"`
	Confidence   *float64 `json:"association_confidence,omitempty"`
	CreatedAt    string   `json:"created_at"`
}

func activityLogToView(l *ride.ActivityLog) activityLogView {
	v := activityLogView{
		ID:           l.ID,
		Filename:     l.Filename,
		Sport:        l.Sport,
		Status:       string(l.Status),
		StartMs:      l.StartMs,
		EndMs:        l.EndMs,
		ErrorMessage: l.ErrorMessage,
		SensorLogID:  l.SensorLogID,
		CreatedAt:    l.CreatedAt.UTC().Format(time.RFC3339),
	}
	if l.Assoc != nil {
		c := l.Assoc.Confidence
		v.Confidence = &c
	}
	return v
}

// uploadActivity accepts a FIT file, decodes it synchronously (activity
// files are small next to IMU logs) and stores its point series.
func (s *Server) uploadActivity(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)

	if err := r.ParseMultipartForm(maxUploadChunk); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("parse multipart form: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "missing 'file' form field")
		return
	}
	defer file.Close()

	id, err := s.activities.Create(r.Context(), owner, header.Filename)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("create activity: %v", err))
		return
	}

	decoded, err := activity.Decode(file)
	if err != nil {
		msg := fmt.Sprintf("decode activity: %v", err)
		if ferr := s.activities.MarkFailed(r.Context(), id, msg); ferr != nil {
			log.Printf("[api] mark activity %s failed: %v", id, ferr)
		}
		httputil.WriteJSONError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	if err := s.activities.InsertPoints(r.Context(), id, decoded.Points); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("store activity points: %v", err))
		return
	}
	if err := s.activities.MarkReady(r.Context(), id, decoded.Sport, decoded.StartMs, decoded.EndMs); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("finalize activity: %v", err))
		return
	}
	log.Printf("[api] uploaded activity %s (%s, %d points)", id, header.Filename, len(decoded.Points))

	lg, err := s.activities.Get(r.Context(), id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("load activity: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, activityLogToView(lg))
}

func (s *Server) listActivities(w http.ResponseWriter, r *http.Request) {
	logs, err := s.activities.ListByOwner(r.Context(), ownerID(r))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list activities: %v", err))
		return
	}
	views := make([]activityLogView, len(logs))
	for i, l := range logs {
		views[i] = activityLogToView(l)
	}
	httputil.WriteJSONOK(w, views)
}

func (s *Server) showActivity(w http.ResponseWriter, r *http.Request) {
	lg, ok := s.loadOwnedActivity(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, activityLogToView(lg))
}

type activityPointView struct {
	TimestampMs int64   `json:"ts_ms"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	EleM        float64 `json:"ele_m"`
	PowerW      float64 `json:"power_w"`
	HrBpm       float64 `json:"hr_bpm"`
	CadenceRpm  float64 `json:"cadence_rpm"`
	Speed       float64 `json:"speed"`
}

type activityPointsResponse struct {
	LogID      string              `json:"log_id"`
	SpeedUnits string              `json:"speed_units"`
	Points     []activityPointView `json:"points"`
}

// showActivityPoints returns the decoded point series. Speeds are stored
// in m/s and converted on the way out when ?units= asks for something else.
func (s *Server) showActivityPoints(w http.ResponseWriter, r *http.Request) {
	lg, ok := s.loadOwnedActivity(w, r)
	if !ok {
		return
	}

	speedUnits := r.URL.Query().Get("units")
	if speedUnits == "" {
		speedUnits = units.MPS
	}
	if !units.IsValid(speedUnits) {
		httputil.BadRequest(w, fmt.Sprintf("unknown units %q, want one of: %s", speedUnits, units.GetValidUnitsString()))
		return
	}

	points, err := s.activities.GetPoints(r.Context(), lg.ID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("load activity points: %v", err))
		return
	}
	views := make([]activityPointView, len(points))
	for i, p := range points {
		views[i] = activityPointView{
			TimestampMs: p.TimestampMs,
			Lat:         p.Lat,
			Lon:         p.Lon,
			EleM:        p.EleM,
			PowerW:      p.PowerW,
			HrBpm:       p.HrBpm,
			CadenceRpm:  p.CadenceRpm,
			Speed:       units.ConvertSpeed(p.SpeedMps, speedUnits),
		}
	}
	httputil.WriteJSONOK(w, activityPointsResponse{LogID: lg.ID, SpeedUnits: speedUnits, Points: views})
}

func (s *Server) loadOwnedActivity(w http.ResponseWriter, r *http.Request) (*ride.ActivityLog, bool) {
	id := r.PathValue("id")
	lg, err := s.activities.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			httputil.NotFound(w, fmt.Sprintf("activity %s not found", id))
			return nil, false
		}
		httputil.InternalServerError(w, fmt.Sprintf("load activity: %v", err))
		return nil, false
	}
	if lg.OwnerID != ownerID(r) {
		httputil.NotFound(w, fmt.Sprintf("activity %s not found", id))
		return nil, false
	}
	return lg, true
}
