// Command ridesync runs the ride telemetry service: it stores uploaded IMU
// recordings and FIT activities, ingests them into SQLite, and correlates
// the two by time range.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ridesync-data/ridesync/internal/api"
	"github.com/ridesync-data/ridesync/internal/blob"
	"github.com/ridesync-data/ridesync/internal/db"
	"github.com/ridesync-data/ridesync/internal/version"
)

var (
	dbPath      = flag.String("db", "ridesync.db", "SQLite database path")
	blobDir     = flag.String("blob", "blobs", "directory for raw upload chunks")
	listen      = flag.String("listen", ":8080", "Listen address")
	devMode     = flag.Bool("dev", false, "Run in dev mode (verbose request logging)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("ridesync %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	// Subcommands run against the database directly and exit.
	if args := flag.Args(); len(args) > 0 {
		if err := runCommand(args, *dbPath, *blobDir); err != nil {
			log.Fatalf("%s: %v", args[0], err)
		}
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	blobs, err := blob.NewStore(*blobDir)
	if err != nil {
		log.Fatalf("Failed to open blob store: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		database.AttachAdminRoutes(mux)

		apiServer := api.NewServer(database, blobs)
		mux.Handle("/api/", apiServer.ServeMux())
		mux.HandleFunc("/", homeHandler)

		var handler http.Handler = mux
		if *devMode {
			handler = api.LoggingMiddleware(mux)
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: handler,
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
