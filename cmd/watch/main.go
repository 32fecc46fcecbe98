// watch tails a running simulation over the observer feed and prints one
// line per tick. Handy for keeping an eye on a headless run from another
// terminal without attaching the console.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"surveyor.ai/internal/observerproto"
	"surveyor.ai/internal/sim/encoding"
	"surveyor.ai/internal/sim/world"
)

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:8080", "observer http address")
		intervalMs = flag.Int("interval_ms", 1000, "tick cadence to request")
		mergeTail  = flag.Int("merge_tail", 0, "recent merge records per tick")
		count      = flag.Int("count", 0, "exit after this many ticks (0 = run until interrupt)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lmicroseconds)

	boot, err := fetchBootstrap("http://" + *addr + "/v1/observer/bootstrap")
	if err != nil {
		logger.Fatalf("bootstrap: %v", err)
	}
	logger.Printf("run %s: %dx%d, seeds %d/%d, station rows %d-%d cols %d-%d",
		boot.RunID, boot.MapParams.Width, boot.MapParams.Height,
		boot.MapParams.TerrainSeed, boot.MapParams.ResourceSeed,
		boot.MapParams.Station[0], boot.MapParams.Station[2],
		boot.MapParams.Station[1], boot.MapParams.Station[3])

	cells, err := encoding.DecodeTerrain(boot.Terrain, boot.MapParams.Width*boot.MapParams.Height)
	if err != nil {
		logger.Fatalf("terrain: %v", err)
	}
	byClass := make(map[world.Terrain]int)
	for _, c := range cells {
		byClass[c]++
	}
	logger.Printf("terrain: %d plain, %d dune, %d ridge",
		byClass[world.TerrainPlain], byClass[world.TerrainDune], byClass[world.TerrainRidge])

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+*addr+"/v1/observer/ws", nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{
		Type:            "SUBSCRIBE",
		ProtocolVersion: observerproto.Version,
		IntervalMs:      *intervalMs,
		MergeTail:       *mergeTail,
	}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	// The server drops connections idle for 60s; re-sending the subscribe
	// doubles as the keepalive.
	lastSub := time.Now()

	ticks := 0
	for {
		select {
		case <-stop:
			return
		default:
		}
		if time.Since(lastSub) > 30*time.Second {
			if err := conn.WriteJSON(sub); err != nil {
				logger.Fatalf("refresh SUBSCRIBE: %v", err)
			}
			lastSub = time.Now()
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var t observerproto.TickMsg
		if err := json.Unmarshal(msg, &t); err != nil || t.Type != "TICK" {
			continue
		}

		stranded := 0
		for _, r := range t.Robots {
			if r.Stranded {
				stranded++
			}
		}
		logger.Printf("TICK seq=%d robots=%d stranded=%d known=%d deposits=%d merges=%d/%d/%d science=%d",
			t.Seq, t.Station.ActiveRobots, stranded,
			t.Station.KnownTiles, t.Station.ResourceTiles,
			t.Station.MergesApplied, t.Station.MergesStale, t.Station.Conflicts,
			t.Station.ScienceCount)
		for _, m := range t.Merges {
			logger.Printf("  merge #%d robot %d %s (%d,%d)", m.Seq, m.Sender, m.Outcome, m.Pos[0], m.Pos[1])
		}

		ticks++
		if *count > 0 && ticks >= *count {
			return
		}
	}
}

func fetchBootstrap(url string) (observerproto.BootstrapResponse, error) {
	var boot observerproto.BootstrapResponse
	resp, err := http.Get(url)
	if err != nil {
		return boot, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return boot, fmt.Errorf("status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		return boot, err
	}
	return boot, nil
}
