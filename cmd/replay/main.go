package main

import (
	"flag"
	"fmt"
	"os"

	"surveyor.ai/internal/persistence/mergelog"
	"surveyor.ai/internal/sim/knowledge"
	"surveyor.ai/internal/sim/station"
	"surveyor.ai/internal/sim/world"
)

// replay re-checks a recorded merge journal against the merge rules: the
// sequence must be gapless, every outcome must match what the version
// stamps imply, and conflicts must carry both snapshots. It then rebuilds
// the canonical map the journal describes and prints what it found.
func main() {
	var (
		mergesDir = flag.String("merges", "", "dir containing merges-*.jsonl.zst")
		showLast  = flag.Int("show_conflicts", 0, "print the last N conflicts")
	)
	flag.Parse()

	if *mergesDir == "" {
		fmt.Fprintln(os.Stderr, "missing -merges")
		os.Exit(2)
	}

	recs, err := mergelog.ReadAll(*mergesDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read journal:", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Fprintln(os.Stderr, "no merge records found in", *mergesDir)
		os.Exit(1)
	}

	seen := make(map[world.Coord]map[knowledge.RobotID]uint64)
	facts := make(map[world.Coord]knowledge.Facts)
	var applied, stale, conflicts uint64
	var lastConflicts []station.MergeRecord

	wantSeq := recs[0].Seq
	for _, rec := range recs {
		if rec.Seq != wantSeq {
			fatalSeq(rec, "sequence gap: want=%d got=%d", wantSeq, rec.Seq)
		}
		wantSeq++

		top := uint64(0)
		if m := seen[rec.Coord]; m != nil {
			top = m[rec.Incoming.Origin]
		}

		switch rec.Outcome {
		case station.MergeStale:
			if rec.Incoming.Version > top {
				fatalSeq(rec, "marked stale but version %d is above the %d already seen from origin %d",
					rec.Incoming.Version, top, rec.Incoming.Origin)
			}
			if rec.Displaced != nil {
				fatalSeq(rec, "stale record carries a displaced snapshot")
			}
			stale++

		case station.MergeApplied, station.MergeConflict:
			if rec.Incoming.Version <= top {
				fatalSeq(rec, "marked %s but version %d does not beat the %d already seen from origin %d",
					rec.Outcome, rec.Incoming.Version, top, rec.Incoming.Origin)
			}
			if rec.Outcome == station.MergeConflict {
				if rec.Displaced == nil {
					fatalSeq(rec, "conflict without a displaced snapshot")
				}
				conflicts++
				lastConflicts = append(lastConflicts, rec)
			} else {
				if rec.Displaced != nil {
					fatalSeq(rec, "plain apply carries a displaced snapshot")
				}
				applied++
			}
			if seen[rec.Coord] == nil {
				seen[rec.Coord] = make(map[knowledge.RobotID]uint64)
			}
			seen[rec.Coord][rec.Incoming.Origin] = rec.Incoming.Version
			facts[rec.Coord] = rec.Incoming.Facts

		default:
			fatalSeq(rec, "unknown outcome %q", rec.Outcome)
		}
	}

	resourceTiles := 0
	for _, f := range facts {
		if f.Resource.Present() {
			resourceTiles++
		}
	}

	fmt.Printf("replay ok: checked=%d records applied=%d stale=%d conflicts=%d\n",
		len(recs), applied, stale, conflicts)
	fmt.Printf("canonical map: %d tiles known, %d with deposits\n", len(facts), resourceTiles)

	if *showLast > 0 && len(lastConflicts) > 0 {
		from := max(0, len(lastConflicts)-*showLast)
		for _, rec := range lastConflicts[from:] {
			fmt.Printf("conflict #%d at (%d,%d): origin %d v%d displaced origin %d v%d\n",
				rec.Seq, rec.Coord.Row, rec.Coord.Col,
				rec.Incoming.Origin, rec.Incoming.Version,
				rec.Displaced.Origin, rec.Displaced.Version)
		}
	}
}

func fatalSeq(rec station.MergeRecord, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "seq %d at (%d,%d): %s\n", rec.Seq, rec.Coord.Row, rec.Coord.Col,
		fmt.Sprintf(format, args...))
	os.Exit(1)
}
