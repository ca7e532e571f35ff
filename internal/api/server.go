// Package api exposes the HTTP surface of the ride telemetry service:
// uploads, ingestion control, association and series queries.
package api

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ridesync-data/ridesync/internal/blob"
	"github.com/ridesync-data/ridesync/internal/db"
	"github.com/ridesync-data/ridesync/internal/ride/ingest"
	"github.com/ridesync-data/ridesync/internal/timeutil"
)

// ANSI escape codes for request log lines
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// defaultOwner is used when a request carries no X-Owner-ID header.
// Single-user deployments never need to set the header.
const defaultOwner = "default"

type Server struct {
	logs       *db.SensorLogStore
	activities *db.ActivityLogStore
	samples    *db.SampleStore
	assocs     *db.AssociationStore
	blobs      *blob.Store
	runner     *ingest.Runner
	clock      timeutil.Clock

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewServer(database *db.DB, blobs *blob.Store) *Server {
	logs := db.NewSensorLogStore(database)
	samples := db.NewSampleStore(database)
	s := &Server{
		logs:       logs,
		activities: db.NewActivityLogStore(database),
		samples:    samples,
		assocs:     db.NewAssociationStore(database),
		blobs:      blobs,
		runner: &ingest.Runner{
			Logs:    logs,
			Samples: samples,
			Blobs:   blobs,
		},
		clock:    timeutil.RealClock{},
		inFlight: make(map[string]bool),
	}
	return s
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/logs/upload", s.uploadSensorLog)
	mux.HandleFunc("PUT /api/logs/{id}/chunks/{index}", s.uploadSensorChunk)
	mux.HandleFunc("POST /api/logs/{id}/ingest", s.startIngest)
	mux.HandleFunc("GET /api/logs", s.listSensorLogs)
	mux.HandleFunc("GET /api/logs/{id}", s.showSensorLog)
	mux.HandleFunc("GET /api/logs/{id}/series", s.showSeries)
	mux.HandleFunc("GET /api/logs/{id}/chart", s.showChart)
	mux.HandleFunc("GET /api/logs/{id}/export.parquet", s.exportParquet)
	mux.HandleFunc("GET /api/logs/{id}/history", s.showHistory)

	mux.HandleFunc("POST /api/activities/upload", s.uploadActivity)
	mux.HandleFunc("GET /api/activities", s.listActivities)
	mux.HandleFunc("GET /api/activities/{id}", s.showActivity)
	mux.HandleFunc("GET /api/activities/{id}/points", s.showActivityPoints)

	mux.HandleFunc("POST /api/associate", s.associate)
	mux.HandleFunc("POST /api/associate/preview", s.previewAssociation)

	return mux
}

// ownerID scopes a request to one rider's data.
func ownerID(r *http.Request) string {
	if o := r.Header.Get("X-Owner-ID"); o != "" {
		return o
	}
	return defaultOwner
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}
