// Package db provides the SQLite persistence layer: sensor logs, activity
// logs, their samples, and the association audit trail. Schema changes are
// managed with golang-migrate; admin debugging routes expose a live SQL
// browser and on-demand backups.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

// DB wraps the sql.DB handle for the ride database.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and applies
// connection pragmas. It does not run migrations; callers decide when to
// migrate.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	// WAL keeps readers unblocked during batch ingestion; the busy timeout
	// covers checkpoint writes racing concurrent pipelines.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	return &DB{sqlDB}, nil
}

// AttachAdminRoutes mounts debugging endpoints on mux: a tailsql live SQL
// browser and a gzip backup download. These are admin-only surfaces; the
// caller is responsible for putting them behind an appropriate network
// boundary.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://ridesync.db", db.DB, &tailsql.DBOptions{
		Label: "RideSync DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		defer os.Remove(backupPath)

		f, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup: %v", err), http.StatusInternalServerError)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", "application/gzip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", backupPath))
		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := io.Copy(gz, f); err != nil {
			log.Printf("backup download aborted: %v", err)
		}
	}))
}

// nullString converts an empty string to a SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullInt64 converts a zero value to a SQL NULL.
func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}
