package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"surveyor.ai/internal/persistence/indexdb"
	"surveyor.ai/internal/sim/station"
)

func summaryCmd(args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite index path (optional)")
	_ = fs.Parse(args)

	x := openIndex(*dataDir, *runID, *dbPath)
	defer x.Close()
	ctx := context.Background()

	meta, err := x.Meta(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "meta:", err)
		os.Exit(1)
	}
	outcomes, err := x.MergeOutcomeCounts(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "outcomes:", err)
		os.Exit(1)
	}
	collected, err := x.CollectionSums(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "collections:", err)
		os.Exit(1)
	}
	science, err := x.ScienceCount(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "science:", err)
		os.Exit(1)
	}

	fmt.Printf("run %s (started %s)\n", meta["run_id"], meta["started_at"])
	fmt.Printf("merges: applied=%d stale=%d conflict=%d\n",
		outcomes[station.MergeApplied], outcomes[station.MergeStale], outcomes[station.MergeConflict])

	kinds := make([]string, 0, len(collected))
	for k := range collected {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", k, collected[k]))
	}
	if len(parts) == 0 {
		fmt.Println("collected: none")
	} else {
		fmt.Printf("collected: %s\n", strings.Join(parts, " "))
	}
	fmt.Printf("science reports: %d\n", science)
}

func mergesCmd(args []string) {
	fs := flag.NewFlagSet("merges", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite index path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	if *limit <= 0 {
		*limit = 20
	}
	x := openIndex(*dataDir, *runID, *dbPath)
	defer x.Close()

	rows, err := x.RecentMerges(context.Background(), *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

func conflictsCmd(args []string) {
	fs := flag.NewFlagSet("conflicts", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite index path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	if *limit <= 0 {
		*limit = 20
	}
	x := openIndex(*dataDir, *runID, *dbPath)
	defer x.Close()

	rows, err := x.RecentConflicts(context.Background(), *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

// openIndex resolves -run/-db to a path and opens it. Open mints an empty
// db at a bad path, so the file has to exist already.
func openIndex(dataDir, runID, dbPath string) *indexdb.Index {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		if strings.TrimSpace(runID) == "" {
			fmt.Fprintln(os.Stderr, "missing -run or -db")
			os.Exit(2)
		}
		path = filepath.Join(dataDir, "runs", runID, "index.db")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "no index at", path)
		os.Exit(2)
	}
	x, err := indexdb.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return x
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
