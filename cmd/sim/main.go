package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"surveyor.ai/internal/persistence/indexdb"
	"surveyor.ai/internal/persistence/mergelog"
	"surveyor.ai/internal/sim/robot"
	"surveyor.ai/internal/sim/station"
	"surveyor.ai/internal/sim/terrain"
	"surveyor.ai/internal/sim/tuning"
	"surveyor.ai/internal/sim/world"
	"surveyor.ai/internal/transport/observer"
	"surveyor.ai/internal/tui"
)

func main() {
	var (
		addr         = flag.String("addr", "127.0.0.1:8080", "observer http listen address (empty to disable)")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		tuningPath   = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		headless     = flag.Bool("headless", false, "run without the terminal console")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite audit index")
		terrainSeed  = flag.Int64("terrain_seed", 0, "override map.terrain_seed (0 keeps the tuning value)")
		resourceSeed = flag.Int64("resource_seed", 0, "override map.resource_seed (0 keeps the tuning value)")
		runFor       = flag.Duration("run_for", 0, "stop automatically after this duration (0 = run until interrupted)")
	)
	flag.Parse()

	runID := uuid.NewString()
	runDir := filepath.Join(*dataDir, "runs", runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		log.Fatalf("create run dir: %v", err)
	}

	// The console owns the terminal, so interactive runs log to a file.
	logSink := os.Stdout
	if !*headless {
		f, err := os.OpenFile(filepath.Join(runDir, "sim.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("open log file: %v", err)
		}
		defer f.Close()
		logSink = f
	}
	logger := log.New(logSink, "[sim] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", *tuningPath)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *terrainSeed != 0 {
		tune.Map.TerrainSeed = *terrainSeed
	}
	if *resourceSeed != 0 {
		tune.Map.ResourceSeed = *resourceSeed
	}

	layout, err := terrain.Generate(terrain.Params{
		Width:         tune.Map.Width,
		Height:        tune.Map.Height,
		TerrainSeed:   tune.Map.TerrainSeed,
		ResourceSeed:  tune.Map.ResourceSeed,
		ResourceCount: tune.Map.ResourceCount,
		StationSize:   tune.Map.StationSize,
	})
	if err != nil {
		logger.Fatalf("generate terrain: %v", err)
	}
	grid, err := world.New(layout.Width, layout.Height, layout.Tiles, layout.Station)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	// Merge journal (source of truth) plus the optional sqlite audit index.
	journal := mergelog.New(filepath.Join(runDir, "merges"))
	defer journal.Close()

	var idx *indexdb.Index
	if !*disableDB {
		idx, err = indexdb.Open(filepath.Join(runDir, "index.db"))
		if err != nil {
			logger.Fatalf("open audit index: %v", err)
		}
		defer idx.Close()
		if err := idx.SetMeta("run_id", runID); err != nil {
			logger.Printf("audit index: set meta: %v", err)
		}
		if err := idx.SetMeta("started_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
			logger.Printf("audit index: set meta: %v", err)
		}
	}
	fan := mergeFan{a: journal}
	if idx != nil {
		fan.b = idx
	}

	mgr := station.New(station.FromTuning(tune), grid, logger, fan)
	if idx != nil {
		mgr.SetAuditSink(idx)
	}

	ctx, cancel := signalContext()
	defer cancel()
	if *runFor > 0 {
		var cancelTimed context.CancelFunc
		ctx, cancelTimed = context.WithTimeout(ctx, *runFor)
		defer cancelTimed()
	}

	stationDone := make(chan struct{})
	go func() {
		mgr.Run(ctx)
		close(stationDone)
	}()

	spawn := func(kind robot.Kind, n int) {
		for i := 0; i < n; i++ {
			if _, err := mgr.CreateRobot(ctx, kind); err != nil {
				logger.Fatalf("create %s: %v", kind, err)
			}
		}
	}
	spawn(robot.KindExplorer, tune.Swarm.Explorers)
	spawn(robot.KindCollector, tune.Swarm.Collectors)
	spawn(robot.KindScientist, tune.Swarm.Scientists)
	logger.Printf("run %s: %dx%d map, %d robots deployed", runID, layout.Width, layout.Height,
		tune.Swarm.Explorers+tune.Swarm.Collectors+tune.Swarm.Scientists)

	if *addr != "" {
		srv := observerHTTP(*addr, grid, mgr, idx, runID, tune, logger)
		go func() {
			<-ctx.Done()
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			_ = srv.Shutdown(ctx2)
		}()
		go func() {
			logger.Printf("observer listening on %s", *addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("ListenAndServe: %v", err)
			}
		}()
	}

	if *headless {
		<-ctx.Done()
	} else {
		p := tea.NewProgram(tui.New(grid, mgr, runID), tea.WithAltScreen())
		go func() {
			<-ctx.Done()
			p.Quit()
		}()
		if _, err := p.Run(); err != nil {
			logger.Printf("console: %v", err)
		}
		cancel()
	}

	// Let the station drain the fleet before the sinks close.
	<-stationDone

	ks := mgr.KnowledgeStats()
	logger.Printf("run %s done: %d tiles known, %d merges applied, %d conflicts, %d science reports",
		runID, ks.KnownTiles, ks.Applied, ks.Conflicts, mgr.ScienceCount())
}

func observerHTTP(addr string, grid *world.Grid, mgr *station.Manager, idx *indexdb.Index, runID string, tune tuning.Tuning, logger *log.Logger) *http.Server {
	obs := observer.NewServer(grid, mgr, runID, tune.Map.TerrainSeed, tune.Map.ResourceSeed, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		ks := mgr.KnowledgeStats()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP surveyor_known_tiles Tiles present in the canonical map.\n")
		fmt.Fprintf(rw, "# TYPE surveyor_known_tiles gauge\n")
		fmt.Fprintf(rw, "surveyor_known_tiles{run=%q} %d\n", runID, ks.KnownTiles)

		fmt.Fprintf(rw, "# HELP surveyor_resource_tiles Known tiles that still hold a deposit.\n")
		fmt.Fprintf(rw, "# TYPE surveyor_resource_tiles gauge\n")
		fmt.Fprintf(rw, "surveyor_resource_tiles{run=%q} %d\n", runID, ks.ResourceTiles)

		fmt.Fprintf(rw, "# HELP surveyor_merges_total Knowledge merges by outcome.\n")
		fmt.Fprintf(rw, "# TYPE surveyor_merges_total counter\n")
		fmt.Fprintf(rw, "surveyor_merges_total{run=%q,outcome=%q} %d\n", runID, station.MergeApplied, ks.Applied)
		fmt.Fprintf(rw, "surveyor_merges_total{run=%q,outcome=%q} %d\n", runID, station.MergeStale, ks.Stale)
		fmt.Fprintf(rw, "surveyor_merges_total{run=%q,outcome=%q} %d\n", runID, station.MergeConflict, ks.Conflicts)

		fmt.Fprintf(rw, "# HELP surveyor_robots_active Robots currently holding a fleet slot.\n")
		fmt.Fprintf(rw, "# TYPE surveyor_robots_active gauge\n")
		fmt.Fprintf(rw, "surveyor_robots_active{run=%q} %d\n", runID, mgr.ActiveRobots())

		fmt.Fprintf(rw, "# HELP surveyor_science_reports Completed site analyses.\n")
		fmt.Fprintf(rw, "# TYPE surveyor_science_reports counter\n")
		fmt.Fprintf(rw, "surveyor_science_reports{run=%q} %d\n", runID, mgr.ScienceCount())

		for kind, qty := range grid.Stockpile() {
			fmt.Fprintf(rw, "surveyor_stockpile{run=%q,kind=%q} %d\n", runID, kind, qty)
		}

		writeIndexMetrics(rw, runID, idx)
	})
	mux.HandleFunc("/v1/observer/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obs.WSHandler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeIndexMetrics(rw http.ResponseWriter, runID string, idx *indexdb.Index) {
	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP surveyor_index_queue_depth Audit index write queue depth.\n")
	fmt.Fprintf(rw, "# TYPE surveyor_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "surveyor_index_queue_depth{run=%q} %d\n", runID, s.QueueDepth)

	fmt.Fprintf(rw, "# HELP surveyor_index_queue_capacity Audit index write queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE surveyor_index_queue_capacity gauge\n")
	fmt.Fprintf(rw, "surveyor_index_queue_capacity{run=%q} %d\n", runID, s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP surveyor_index_dropped_total Records dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE surveyor_index_dropped_total counter\n")
	fmt.Fprintf(rw, "surveyor_index_dropped_total{run=%q,table=%q} %d\n", runID, "merges", s.DropMergeTotal)
	fmt.Fprintf(rw, "surveyor_index_dropped_total{run=%q,table=%q} %d\n", runID, "collections", s.DropCollectionTotal)
	fmt.Fprintf(rw, "surveyor_index_dropped_total{run=%q,table=%q} %d\n", runID, "science", s.DropScienceTotal)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// mergeFan writes each merge record to both sinks. The JSONL journal is the
// source of truth; the index swallows its own errors.
type mergeFan struct {
	a station.MergeJournal
	b station.MergeJournal
}

func (m mergeFan) WriteMerge(rec station.MergeRecord) error {
	if m.a != nil {
		_ = m.a.WriteMerge(rec)
	}
	if m.b != nil {
		_ = m.b.WriteMerge(rec)
	}
	return nil
}
