// Package observer serves the read-only telemetry feed: a bootstrap endpoint
// with the static map and a websocket pushing periodic fleet snapshots.
// Loopback only; the feed never mutates anything.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"surveyor.ai/internal/observerproto"
	"surveyor.ai/internal/sim/encoding"
	"surveyor.ai/internal/sim/station"
	"surveyor.ai/internal/sim/world"
)

type Server struct {
	grid    *world.Grid
	station *station.Manager
	log     *log.Logger

	runID   string
	params  observerproto.MapParams
	terrain string // RLE of the immutable terrain layer, built once

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(grid *world.Grid, mgr *station.Manager, runID string, terrainSeed, resourceSeed int64, logger *log.Logger) *Server {
	snap := grid.Snapshot()
	cells := make([]world.Terrain, len(snap.Tiles))
	for i, tl := range snap.Tiles {
		cells[i] = tl.Terrain
	}
	st := snap.Station
	return &Server{
		grid:    grid,
		station: mgr,
		log:     logger,
		runID:   runID,
		params: observerproto.MapParams{
			Width:        snap.Width,
			Height:       snap.Height,
			TerrainSeed:  terrainSeed,
			ResourceSeed: resourceSeed,
			Station:      [4]int{st.MinRow, st.MinCol, st.MaxRow, st.MaxCol},
		},
		terrain: encoding.EncodeTerrain(cells),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback gate below
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			RunID:           s.runID,
			MapParams:       s.params,
			TerrainEncoding: "RLE_UVARINT_B64",
			Terrain:         s.terrain,
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}
		normalizeSubscribe(&sub)

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		s.log.Printf("observer %s subscribed from %s (interval %dms)", sid, r.RemoteAddr, sub.IntervalMs)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		settings := make(chan observerproto.SubscribeMsg, 1)

		// Writer goroutine: one frame immediately, then on the cadence.
		writeErr := make(chan error, 1)
		go func() {
			interval := time.Duration(sub.IntervalMs) * time.Millisecond
			tail := sub.MergeTail
			var seq uint64

			send := func() error {
				seq++
				b, err := json.Marshal(s.tickMsg(seq, tail))
				if err != nil {
					return err
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				return conn.WriteMessage(websocket.TextMessage, b)
			}
			if err := send(); err != nil {
				writeErr <- err
				return
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case upd := <-settings:
					interval = time.Duration(upd.IntervalMs) * time.Millisecond
					tail = upd.MergeTail
					ticker.Reset(interval)
				case <-ticker.C:
					if err := send(); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var upd observerproto.SubscribeMsg
			if err := json.Unmarshal(msg, &upd); err != nil {
				continue
			}
			if upd.Type != "SUBSCRIBE" || upd.ProtocolVersion != observerproto.Version {
				continue
			}
			normalizeSubscribe(&upd)
			select {
			case settings <- upd:
			default:
				// Drop updates under load; the client may resend.
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		s.log.Printf("observer %s disconnected", sid)
	}
}

// tickMsg snapshots the world and fleet into one wire frame.
func (s *Server) tickMsg(seq uint64, tail int) observerproto.TickMsg {
	snap := s.grid.Snapshot()
	resources := make([]observerproto.ResourceCell, 0, 32)
	for _, tl := range snap.Tiles {
		if tl.Resource.Kind == world.KindNone {
			continue
		}
		resources = append(resources, observerproto.ResourceCell{
			Pos:      [2]int{tl.Coord.Row, tl.Coord.Col},
			Kind:     tl.Resource.Kind.String(),
			Quantity: tl.Resource.Quantity,
		})
	}

	sts := s.station.Statuses()
	robots := make([]observerproto.RobotState, 0, len(sts))
	for _, st := range sts {
		robots = append(robots, observerproto.RobotState{
			ID:         uint32(st.ID),
			Kind:       st.Kind.String(),
			Phase:      st.Phase.String(),
			Pos:        [2]int{st.Pos.Row, st.Pos.Col},
			Energy:     st.Energy,
			MaxEnergy:  st.MaxEnergy,
			Cargo:      st.CargoTotal,
			KnownTiles: st.KnownTiles,
			Cycles:     st.Cycles,
			Stranded:   st.Stranded,
		})
	}

	ks := s.station.KnowledgeStats()
	collected := make(map[string]int)
	for k, v := range s.station.CollectionTotals() {
		collected[k.String()] = v
	}
	stockpile := make(map[string]int)
	for k, v := range snap.Stockpile {
		stockpile[k.String()] = v
	}

	var merges []observerproto.MergeEntry
	if tail > 0 {
		for _, rec := range s.station.MergeLogTail(tail) {
			merges = append(merges, observerproto.MergeEntry{
				Seq:     rec.Seq,
				Sender:  uint32(rec.Sender),
				Outcome: rec.Outcome,
				Pos:     [2]int{rec.Coord.Row, rec.Coord.Col},
			})
		}
	}

	return observerproto.TickMsg{
		Type:            "TICK",
		ProtocolVersion: observerproto.Version,
		Seq:             seq,
		Robots:          robots,
		Station: observerproto.StationStats{
			ActiveRobots:  s.station.ActiveRobots(),
			KnownTiles:    ks.KnownTiles,
			ResourceTiles: ks.ResourceTiles,
			MergesApplied: ks.Applied,
			MergesStale:   ks.Stale,
			Conflicts:     ks.Conflicts,
			Collected:     collected,
			Stockpile:     stockpile,
			ScienceCount:  s.station.ScienceCount(),
		},
		Resources: resources,
		Merges:    merges,
	}
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.IntervalMs <= 0 {
		sub.IntervalMs = 500
	}
	if sub.IntervalMs < 100 {
		sub.IntervalMs = 100
	}
	if sub.IntervalMs > 5000 {
		sub.IntervalMs = 5000
	}
	if sub.MergeTail < 0 {
		sub.MergeTail = 0
	}
	if sub.MergeTail > 100 {
		sub.MergeTail = 100
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
