package main

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/ridesync-data/ridesync/internal/blob"
	"github.com/ridesync-data/ridesync/internal/db"
	"github.com/ridesync-data/ridesync/internal/ride"
	"github.com/ridesync-data/ridesync/internal/ride/assoc"
	"github.com/ridesync-data/ridesync/internal/ride/ingest"
)

const commandsUsage = `subcommands:
  migrate up|down|version|force <v>   manage the database schema
  ingest <log-id>                     run ingestion for an uploaded log
  associate <log-id> [interactive]    match a ready log against activities
  logs <owner-id>                     list an owner's sensor logs`

// runCommand dispatches CLI subcommands that operate on the database
// directly, without a running server.
func runCommand(args []string, dbPath, blobDir string) error {
	database, err := db.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	switch args[0] {
	case "migrate":
		return runMigrate(database, args[1:])
	case "ingest":
		if len(args) != 2 {
			return fmt.Errorf("usage: ingest <log-id>")
		}
		return runIngest(database, blobDir, args[1])
	case "associate":
		if len(args) < 2 {
			return fmt.Errorf("usage: associate <log-id> [interactive]")
		}
		interactive := len(args) > 2 && args[2] == "interactive"
		return runAssociate(database, args[1], interactive)
	case "logs":
		if len(args) != 2 {
			return fmt.Errorf("usage: logs <owner-id>")
		}
		return runListLogs(database, args[1])
	case "help":
		fmt.Println(commandsUsage)
		return nil
	default:
		return fmt.Errorf("unknown subcommand %q\n%s", args[0], commandsUsage)
	}
}

func runMigrate(database *db.DB, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: migrate up|down|version|force <v>")
	}
	switch args[0] {
	case "up":
		return database.MigrateUp()
	case "down":
		return database.MigrateDown()
	case "version":
		version, dirty, err := database.MigrateVersion()
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%v\n", version, dirty)
		return nil
	case "force":
		if len(args) != 2 {
			return fmt.Errorf("usage: migrate force <version>")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[1])
		}
		return database.MigrateForce(v)
	default:
		return fmt.Errorf("unknown migrate action %q", args[0])
	}
}

func runIngest(database *db.DB, blobDir, logID string) error {
	blobs, err := blob.NewStore(blobDir)
	if err != nil {
		return err
	}
	runner := &ingest.Runner{
		Logs:    db.NewSensorLogStore(database),
		Samples: db.NewSampleStore(database),
		Blobs:   blobs,
	}
	start := time.Now()
	if err := runner.Run(context.Background(), logID); err != nil {
		return err
	}
	log.Printf("ingested log %s in %s", logID, time.Since(start).Round(time.Millisecond))
	return nil
}

func runAssociate(database *db.DB, logID string, interactive bool) error {
	ctx := context.Background()
	logs := db.NewSensorLogStore(database)
	activities := db.NewActivityLogStore(database)
	assocs := db.NewAssociationStore(database)

	lg, err := logs.Get(ctx, logID)
	if err != nil {
		return err
	}
	if lg.Status != ride.StatusReady {
		return fmt.Errorf("log %s is %s, not ready", logID, lg.Status)
	}
	if lg.ActivityLogID != nil {
		return fmt.Errorf("log %s is already associated with activity %s", logID, *lg.ActivityLogID)
	}

	cfg := assoc.DefaultAutomaticConfig()
	if interactive {
		cfg = assoc.DefaultInteractiveConfig()
	}

	target := assoc.RangeFromMs(lg.StartMs, lg.EndMs)
	acts, err := activities.ListUnassociatedInWindow(ctx, lg.OwnerID,
		lg.StartMs-assoc.SearchBuffer.Milliseconds(),
		lg.EndMs+assoc.SearchBuffer.Milliseconds())
	if err != nil {
		return err
	}
	candidates := make([]assoc.Candidate, len(acts))
	for i, a := range acts {
		candidates[i] = assoc.Candidate{ID: a.ID, Range: assoc.RangeFromMs(a.StartMs, a.EndMs)}
	}

	m, found := assoc.SelectBest(target, candidates, cfg)
	if !found {
		return fmt.Errorf("no overlapping activity found for log %s", logID)
	}

	fmt.Printf("best match: activity=%s confidence=%.3f (%s) overlap=%s drift=%s\n",
		m.Candidate.ID, m.Confidence, assoc.Band(m.Confidence),
		m.Overlap.Duration().Round(time.Second), m.Drift.Round(time.Second))
	for _, e := range m.Verdict.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	for _, w := range m.Verdict.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}

	if !m.Acceptable(cfg) {
		return fmt.Errorf("match does not pass the %s gate", mode(interactive))
	}
	if err := assocs.Commit(ctx, lg.ID, m.Candidate.ID, "time_range",
		m.Confidence, m.Overlap.Start.UnixMilli(), m.Overlap.End.UnixMilli()); err != nil {
		return err
	}
	fmt.Println("association committed")
	return nil
}

func mode(interactive bool) string {
	if interactive {
		return "interactive"
	}
	return "automatic"
}

func runListLogs(database *db.DB, ownerID string) error {
	logs, err := db.NewSensorLogStore(database).ListByOwner(context.Background(), ownerID)
	if err != nil {
		return err
	}
	for _, l := range logs {
		assocNote := ""
		if l.ActivityLogID != nil {
			assocNote = " activity=" + *l.ActivityLogID
		}
		fmt.Printf("%s  %-10s %8d samples  %s%s\n",
			l.ID, l.Status, l.ProcessedCount, l.Filename, assocNote)
	}
	return nil
}
