// Command sim-report renders plots and a JSON summary for a recorded run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/banshee-data/intersection.sim/internal/db"
	"github.com/banshee-data/intersection.sim/internal/report"
	"github.com/banshee-data/intersection.sim/internal/security"
)

var (
	dbPath = flag.String("db", "intersection_runs.db", "Path to the sqlite run store")
	runID  = flag.String("run", "", "Run ID to report (defaults to the latest run)")
	outDir = flag.String("out", "report", "Output directory for plots (must be under the working or temp directory)")
	list   = flag.Bool("list", false, "List stored runs and exit")
)

func main() {
	flag.Parse()
	ctx := context.Background()

	store, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open run store: %v", err)
	}
	defer store.Close()
	if err := store.CheckSchema(); err != nil {
		log.Fatalf("Run store %s is not readable by this build: %v", *dbPath, err)
	}

	if *list {
		if err := listRuns(ctx, store); err != nil {
			log.Fatalf("Failed to list runs: %v", err)
		}
		return
	}

	id := *runID
	if id == "" {
		latest, err := store.LatestRun(ctx)
		if err != nil {
			log.Fatalf("Failed to find latest run: %v", err)
		}
		id = latest.RunID
	}

	if err := security.ValidateOutputPath(*outDir); err != nil {
		log.Fatalf("Invalid output directory: %v", err)
	}
	res, err := report.Generate(ctx, store, id, *outDir)
	if err != nil {
		log.Fatalf("Failed to generate report: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Fatalf("Failed to write summary: %v", err)
	}
}

func listRuns(ctx context.Context, store *db.DB) error {
	runs, err := store.ListRuns(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tMODE\tSEED\tTRIPS")
	for _, r := range runs {
		n, err := store.CompletionCount(ctx, r.RunID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Mode, r.Seed, n)
	}
	return w.Flush()
}
