package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/ridesync-data/ridesync/internal/db"
	"github.com/ridesync-data/ridesync/internal/httputil"
	"github.com/ridesync-data/ridesync/internal/ride"
)

// maxUploadChunk caps a single uploaded chunk. Large recordings arrive as
// multiple chunks and are reassembled at ingest time.
const maxUploadChunk = 256 << 20

type sensorLogView struct {
	ID             string   `json:"id"`
	Filename       string   `json:"filename"`
	Status         string   `json:"status"`
	SizeBytes      int64    `json:"size_bytes"`
	ProcessedCount int64    `json:"processed_count"`
	DeclaredCount  int64    `json:"declared_count,omitempty"`
	Progress       float64  `json:"progress"`
	StartMs        int64    `json:"start_ms,omitempty"`
	EndMs          int64    `json:"end_ms,omitempty"`
	DurationS      float64  `json:"duration_s,omitempty"`
	SampleRateHz   float64  `json:"sample_rate_hz,omitempty"`
	ErrorMessage   string   `json:"error_message,omitempty"`
	ActivityLogID  *string  `json:"activity_log_id,omitempty"`
	Confidence     *float64 `json:"association_confidence,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

func sensorLogToView(l *ride.SensorLog) sensorLogView {
	v := sensorLogView{
		ID:             l.ID,
		Filename:       l.Filename,
		Status:         string(l.Status),
		SizeBytes:      l.SizeBytes,
		ProcessedCount: l.ProcessedCount,
		DeclaredCount:  l.DeclaredCount,
		Progress:       l.Progress(),
		StartMs:        l.StartMs,
		EndMs:          l.EndMs,
		DurationS:      l.DurationS,
		SampleRateHz:   l.SampleRateHz,
		ErrorMessage:   l.ErrorMessage,
		ActivityLogID:  l.ActivityLogID,
		CreatedAt:      l.CreatedAt.UTC().Format(time.RFC3339),
	}
	if l.Assoc != nil {
		c := l.Assoc.Confidence
		v.Confidence = &c
	}
	return v
}

// uploadSensorLog accepts the first (often only) chunk of an IMU CSV as
// multipart form data and registers the log.
func (s *Server) uploadSensorLog(w http.ResponseWriter, r *http.Request) {
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

	var declared int64
	if d := r.FormValue("declared_count"); d != "" {
		declared, err = strconv.ParseInt(d, 10, 64)
		if err != nil || declared < 0 {
			httputil.BadRequest(w, "invalid 'declared_count' form field")
			return
		}
	}

	id, err := s.logs.Create(r.Context(), owner, header.Filename, 0, declared)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("create log: %v", err))
		return
	}

	written, err := s.blobs.WriteChunk(owner, id, 0, file)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("store upload: %v", err))
		return
	}
	log.Printf("[api] uploaded log %s (%s, %d bytes)", id, header.Filename, written)

	lg, err := s.logs.Get(r.Context(), id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("load log: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sensorLogToView(lg))
}

// uploadSensorChunk stores one additional raw chunk for an existing log.
func (s *Server) uploadSensorChunk(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	id := r.PathValue("id")

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		httputil.BadRequest(w, "invalid chunk index")
		return
	}

	lg, err := s.logs.Get(r.Context(), id)
	if err != nil {
		s.writeLogLookupError(w, id, err)
		return
	}
	if lg.OwnerID != owner {
		httputil.NotFound(w, fmt.Sprintf("log %s not found", id))
		return
	}
	if lg.Status == ride.StatusReady || lg.Status == ride.StatusParsing {
		httputil.Conflict(w, fmt.Sprintf("log %s is %s; chunks are immutable now", id, lg.Status))
		return
	}

	written, err := s.blobs.WriteChunk(owner, id, index, http.MaxBytesReader(w, r.Body, maxUploadChunk))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("store chunk: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"id": id, "chunk": index, "bytes": written})
}

// startIngest kicks off (or resumes) background ingestion for a log.
func (s *Server) startIngest(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	id := r.PathValue("id")

	lg, err := s.logs.Get(r.Context(), id)
	if err != nil {
		s.writeLogLookupError(w, id, err)
		return
	}
	if lg.OwnerID != owner {
		httputil.NotFound(w, fmt.Sprintf("log %s not found", id))
		return
	}
	if lg.Status == ride.StatusReady {
		httputil.WriteJSONOK(w, sensorLogToView(lg))
		return
	}

	s.mu.Lock()
	if s.inFlight[id] {
		s.mu.Unlock()
		httputil.Conflict(w, fmt.Sprintf("ingestion already running for log %s", id))
		return
	}
	s.inFlight[id] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, id)
			s.mu.Unlock()
		}()
		if err := s.runner.Run(context.Background(), id); err != nil {
			log.Printf("[api] ingestion of log %s failed: %v", id, err)
		}
	}()

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(ride.StatusParsing)})
}

func (s *Server) listSensorLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.logs.ListByOwner(r.Context(), ownerID(r))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list logs: %v", err))
		return
	}
	views := make([]sensorLogView, len(logs))
	for i, l := range logs {
		views[i] = sensorLogToView(l)
	}
	httputil.WriteJSONOK(w, views)
}

func (s *Server) showSensorLog(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	lg, err := s.logs.Get(r.Context(), id)
	if err != nil {
		s.writeLogLookupError(w, id, err)
		return
	}
	if lg.OwnerID != ownerID(r) {
		httputil.NotFound(w, fmt.Sprintf("log %s not found", id))
		return
	}
	httputil.WriteJSONOK(w, sensorLogToView(lg))
}

func (s *Server) showHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	lg, err := s.logs.Get(r.Context(), id)
	if err != nil {
		s.writeLogLookupError(w, id, err)
		return
	}
	if lg.OwnerID != ownerID(r) {
		httputil.NotFound(w, fmt.Sprintf("log %s not found", id))
		return
	}

	entries, err := s.assocs.History(r.Context(), id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("load history: %v", err))
		return
	}

	type historyView struct {
		ActivityLogID  string  `json:"activity_log_id"`
		Method         string  `json:"method"`
		Confidence     float64 `json:"confidence"`
		OverlapStartMs int64   `json:"overlap_start_ms"`
		OverlapEndMs   int64   `json:"overlap_end_ms"`
		Accepted       bool    `json:"accepted"`
		Detail         string  `json:"detail,omitempty"`
		CreatedAt      string  `json:"created_at"`
	}
	views := make([]historyView, len(entries))
	for i, e := range entries {
		views[i] = historyView{
			ActivityLogID:  e.ActivityLogID,
			Method:         e.Method,
			Confidence:     e.Confidence,
			OverlapStartMs: e.OverlapStartMs,
			OverlapEndMs:   e.OverlapEndMs,
			Accepted:       e.Accepted,
			Detail:         e.Detail,
			CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	httputil.WriteJSONOK(w, views)
}

func (s *Server) writeLogLookupError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, fmt.Sprintf("log %s not found", id))
		return
	}
	httputil.InternalServerError(w, fmt.Sprintf("load log: %v", err))
}
