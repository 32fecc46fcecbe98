// Package indexdb maintains a queryable sqlite index of the run: merge
// records, harvest reports and science findings. Writes go through a
// buffered channel into a single writer goroutine; the journal files remain
// the source of truth, so the indexer drops work rather than stall the sim.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"surveyor.ai/internal/sim/station"
)

type Index struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropMerge      atomic.Uint64
	dropCollection atomic.Uint64
	dropScience    atomic.Uint64
}

type reqKind int

const (
	reqMerge reqKind = iota + 1
	reqCollection
	reqScience
)

type req struct {
	kind reqKind

	merge      station.MergeRecord
	collection station.CollectionRecord
	science    station.ScienceRecord
}

func Open(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	x := &Index{
		db: db,
		// Large buffer: a full fleet reporting after a long excursion is
		// bursty, and stalls here would back up the station loop.
		ch: make(chan req, 65536),
	}
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		x.loop()
	}()
	return x, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS merges (
			seq INTEGER PRIMARY KEY,
			id TEXT NOT NULL,
			at TEXT NOT NULL,
			sender INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_col INTEGER NOT NULL,
			origin INTEGER NOT NULL,
			version INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_merges_outcome ON merges(outcome, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_merges_cell ON merges(tile_row, tile_col, seq);`,
		`CREATE TABLE IF NOT EXISTS collections (
			seq INTEGER PRIMARY KEY,
			at TEXT NOT NULL,
			robot INTEGER NOT NULL,
			kind TEXT NOT NULL,
			amount INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_col INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_collections_robot ON collections(robot, seq);`,
		`CREATE TABLE IF NOT EXISTS science (
			seq INTEGER PRIMARY KEY,
			at TEXT NOT NULL,
			robot INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_col INTEGER NOT NULL,
			richness INTEGER NOT NULL,
			note TEXT
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (x *Index) Close() error {
	var err error
	x.once.Do(func() {
		x.closed.Store(true)
		close(x.ch)
		x.wg.Wait()
		err = x.db.Close()
	})
	return err
}

// SetMeta stores one key/value pair synchronously.
func (x *Index) SetMeta(key, value string) error {
	if x == nil {
		return nil
	}
	_, err := x.db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, key, value)
	return err
}

// WriteMerge satisfies station.MergeJournal.
func (x *Index) WriteMerge(rec station.MergeRecord) error {
	if x == nil || x.closed.Load() {
		return nil
	}
	select {
	case x.ch <- req{kind: reqMerge, merge: rec}:
	default:
		x.dropMerge.Add(1)
	}
	return nil
}

// WriteCollection satisfies half of station.AuditSink.
func (x *Index) WriteCollection(rec station.CollectionRecord) error {
	if x == nil || x.closed.Load() {
		return nil
	}
	select {
	case x.ch <- req{kind: reqCollection, collection: rec}:
	default:
		x.dropCollection.Add(1)
	}
	return nil
}

// WriteScience satisfies the other half of station.AuditSink.
func (x *Index) WriteScience(rec station.ScienceRecord) error {
	if x == nil || x.closed.Load() {
		return nil
	}
	select {
	case x.ch <- req{kind: reqScience, science: rec}:
	default:
		x.dropScience.Add(1)
	}
	return nil
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropMergeTotal      uint64
	DropCollectionTotal uint64
	DropScienceTotal    uint64
}

func (x *Index) Stats() Stats {
	return Stats{
		QueueDepth:          len(x.ch),
		QueueCapacity:       cap(x.ch),
		DropMergeTotal:      x.dropMerge.Load(),
		DropCollectionTotal: x.dropCollection.Load(),
		DropScienceTotal:    x.dropScience.Load(),
	}
}

func (x *Index) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertMerge, _ := x.db.Prepare(`INSERT OR REPLACE INTO merges(seq,id,at,sender,outcome,tile_row,tile_col,origin,version,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertCollection, _ := x.db.Prepare(`INSERT OR REPLACE INTO collections(seq,at,robot,kind,amount,tile_row,tile_col) VALUES(?,?,?,?,?,?,?)`)
	insertScience, _ := x.db.Prepare(`INSERT OR REPLACE INTO science(seq,at,robot,tile_row,tile_col,richness,note) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertMerge != nil {
			_ = insertMerge.Close()
		}
		if insertCollection != nil {
			_ = insertCollection.Close()
		}
		if insertScience != nil {
			_ = insertScience.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 512
		commitMaxWait = time.Second

		collectionSeq uint64
		scienceSeq    uint64
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := x.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range x.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqMerge:
			rec := r.merge
			raw, _ := json.Marshal(rec)
			if insertMerge != nil {
				if _, err := tx.Stmt(insertMerge).Exec(
					int64(rec.Seq),
					rec.ID,
					rec.At.UTC().Format(time.RFC3339Nano),
					int64(rec.Sender),
					rec.Outcome,
					rec.Coord.Row,
					rec.Coord.Col,
					int64(rec.Incoming.Origin),
					int64(rec.Incoming.Version),
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqCollection:
			rec := r.collection
			collectionSeq++
			if insertCollection != nil {
				if _, err := tx.Stmt(insertCollection).Exec(
					int64(collectionSeq),
					rec.At.UTC().Format(time.RFC3339Nano),
					int64(rec.Robot),
					rec.Kind.String(),
					rec.Amount,
					rec.Coord.Row,
					rec.Coord.Col,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqScience:
			rec := r.science
			scienceSeq++
			if insertScience != nil {
				if _, err := tx.Stmt(insertScience).Exec(
					int64(scienceSeq),
					rec.At.UTC().Format(time.RFC3339Nano),
					int64(rec.Robot),
					rec.Coord.Row,
					rec.Coord.Col,
					rec.Findings.Richness,
					rec.Findings.Note,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}

// MergeOutcomeCounts sums the merges table by outcome.
func (x *Index) MergeOutcomeCounts(ctx context.Context) (map[string]int, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM merges GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

// ConflictCell is one conflicting merge as read back from the index.
type ConflictCell struct {
	Seq    uint64 `json:"seq"`
	Sender int64  `json:"sender"`
	Row    int    `json:"row"`
	Col    int    `json:"col"`
}

// RecentConflicts returns the latest conflict rows, newest first.
func (x *Index) RecentConflicts(ctx context.Context, limit int) ([]ConflictCell, error) {
	rows, err := x.db.QueryContext(ctx,
		`SELECT seq, sender, tile_row, tile_col FROM merges WHERE outcome=? ORDER BY seq DESC LIMIT ?`,
		station.MergeConflict, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ConflictCell
	for rows.Next() {
		var c ConflictCell
		if err := rows.Scan(&c.Seq, &c.Sender, &c.Row, &c.Col); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CollectionSums totals the collections table per resource kind.
func (x *Index) CollectionSums(ctx context.Context) (map[string]int, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT kind, SUM(amount) FROM collections GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[kind] = n
	}
	return out, rows.Err()
}

// ScienceCount reports how many science reports reached the index.
func (x *Index) ScienceCount(ctx context.Context) (int, error) {
	var n int
	err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM science`).Scan(&n)
	return n, err
}

// Meta returns every key/value pair recorded for the run.
func (x *Index) Meta(ctx context.Context) (map[string]string, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// MergeRow is one merge as read back from the index.
type MergeRow struct {
	Seq     uint64 `json:"seq"`
	At      string `json:"at"`
	Sender  int64  `json:"sender"`
	Outcome string `json:"outcome"`
	Row     int    `json:"row"`
	Col     int    `json:"col"`
	Origin  int64  `json:"origin"`
	Version uint64 `json:"version"`
}

// RecentMerges returns the latest merge rows, newest first.
func (x *Index) RecentMerges(ctx context.Context, limit int) ([]MergeRow, error) {
	rows, err := x.db.QueryContext(ctx,
		`SELECT seq, at, sender, outcome, tile_row, tile_col, origin, version FROM merges ORDER BY seq DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MergeRow
	for rows.Next() {
		var m MergeRow
		if err := rows.Scan(&m.Seq, &m.At, &m.Sender, &m.Outcome, &m.Row, &m.Col, &m.Origin, &m.Version); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
