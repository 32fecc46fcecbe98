package observer

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"surveyor.ai/internal/observerproto"
	"surveyor.ai/internal/sim/encoding"
	"surveyor.ai/internal/sim/station"
	"surveyor.ai/internal/sim/tuning"
	"surveyor.ai/internal/sim/world"
)

func testFeed(t *testing.T) (*httptest.Server, *world.Grid) {
	t.Helper()
	const width, height = 12, 8
	tiles := make([]world.Tile, width*height)
	for col := 0; col < width; col++ {
		tiles[6*width+col] = world.Tile{Terrain: world.TerrainDune}
	}
	tiles[5*width+9] = world.Tile{Resource: world.Resource{Kind: world.KindMineral, Quantity: 40}}
	grid, err := world.New(width, height, tiles, world.Rect{MinRow: 1, MinCol: 1, MaxRow: 3, MaxCol: 3})
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}

	mgr := station.New(station.FromTuning(tuning.Defaults()), grid, log.New(io.Discard, "", 0), nil)
	srv := NewServer(grid, mgr, "run-under-test", 1337, 4242, log.New(io.Discard, "", 0))

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/bootstrap", srv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", srv.WSHandler())
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, grid
}

func TestBootstrapCarriesDecodableTerrain(t *testing.T) {
	ts, grid := testFeed(t)

	resp, err := http.Get(ts.URL + "/v1/observer/bootstrap")
	if err != nil {
		t.Fatalf("GET bootstrap: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var boot observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if boot.ProtocolVersion != observerproto.Version || boot.RunID != "run-under-test" {
		t.Fatalf("header fields = %q %q", boot.ProtocolVersion, boot.RunID)
	}
	if boot.MapParams.Width != grid.Width() || boot.MapParams.Height != grid.Height() {
		t.Fatalf("map params = %+v", boot.MapParams)
	}
	if boot.MapParams.Station != [4]int{1, 1, 3, 3} {
		t.Fatalf("station rect = %v", boot.MapParams.Station)
	}

	cells, err := encoding.DecodeTerrain(boot.Terrain, grid.Width()*grid.Height())
	if err != nil {
		t.Fatalf("DecodeTerrain: %v", err)
	}
	if cells[6*grid.Width()+4] != world.TerrainDune {
		t.Fatal("dune strip lost in terrain payload")
	}
	if cells[0] != world.TerrainPlain {
		t.Fatal("plain cell lost in terrain payload")
	}
}

func TestBootstrapRefusesRemoteClients(t *testing.T) {
	mgrLog := log.New(io.Discard, "", 0)
	tiles := make([]world.Tile, 64)
	grid, err := world.New(8, 8, tiles, world.Rect{MinRow: 0, MinCol: 0, MaxRow: 2, MaxCol: 2})
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	srv := NewServer(grid, station.New(station.FromTuning(tuning.Defaults()), grid, mgrLog, nil), "r", 1, 2, mgrLog)

	req := httptest.NewRequest(http.MethodGet, "/v1/observer/bootstrap", nil)
	req.RemoteAddr = "10.4.4.4:9999"
	rr := httptest.NewRecorder()
	srv.BootstrapHandler()(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("remote client got %d, want 403", rr.Code)
	}
}

func TestWSFeedDeliversTicks(t *testing.T) {
	ts, _ := testFeed(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{
		Type:            "SUBSCRIBE",
		ProtocolVersion: observerproto.Version,
		IntervalMs:      100,
		MergeTail:       10,
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	readTick := func() observerproto.TickMsg {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read tick: %v", err)
		}
		var tick observerproto.TickMsg
		if err := json.Unmarshal(raw, &tick); err != nil {
			t.Fatalf("unmarshal tick: %v", err)
		}
		return tick
	}

	first := readTick()
	if first.Type != "TICK" || first.Seq != 1 {
		t.Fatalf("first frame = %q seq %d", first.Type, first.Seq)
	}
	if first.Station.KnownTiles != 9 {
		t.Fatalf("known tiles = %d, want the 9 pad tiles", first.Station.KnownTiles)
	}
	if len(first.Resources) != 1 || first.Resources[0].Kind != "mineral" || first.Resources[0].Quantity != 40 {
		t.Fatalf("resources = %+v", first.Resources)
	}
	if len(first.Merges) != 9 {
		t.Fatalf("merge tail carried %d entries, want 9 bootstrap merges", len(first.Merges))
	}

	second := readTick()
	if second.Seq != 2 {
		t.Fatalf("second frame seq = %d", second.Seq)
	}
}

func TestWSRejectsBadHandshake(t *testing.T) {
	ts, _ := testFeed(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "NOPE"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("read after bad handshake: %v, want policy violation close", err)
	}
}

func TestLoopbackDetection(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:5121", true},
		{"[::1]:5121", true},
		{"10.0.0.7:80", false},
		{"not an address", false},
	}
	for _, c := range cases {
		if got := isLoopbackRemote(c.addr); got != c.want {
			t.Fatalf("isLoopbackRemote(%q) = %v, want %v", c.addr, got, c.want)
		}
	}
}
