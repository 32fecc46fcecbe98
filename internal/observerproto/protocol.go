package observerproto

// Version is the observer protocol version (independent of the sim build).
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to adjust the feed.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// IntervalMs is the wanted tick cadence; MergeTail how many recent
	// merge records to include per tick. Both are clamped server-side.
	IntervalMs int `json:"interval_ms"`
	MergeTail  int `json:"merge_tail"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string    `json:"protocol_version"`
	RunID           string    `json:"run_id"`
	MapParams       MapParams `json:"map_params"`

	// Terrain is the full row-major terrain layer. Encoding
	// "RLE_UVARINT_B64" means: decode base64, then read uvarint pairs
	// (class, run_len) until exhausted; total cells = width*height.
	TerrainEncoding string `json:"terrain_encoding"`
	Terrain         string `json:"terrain"`
}

type MapParams struct {
	Width        int   `json:"width"`
	Height       int   `json:"height"`
	TerrainSeed  int64 `json:"terrain_seed"`
	ResourceSeed int64 `json:"resource_seed"`

	// Station is min_row, min_col, max_row, max_col.
	Station [4]int `json:"station"`
}

// Server -> Client. Sent on the subscribed cadence.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`

	Robots    []RobotState   `json:"robots"`
	Station   StationStats   `json:"station"`
	Resources []ResourceCell `json:"resources"`
	Merges    []MergeEntry   `json:"merges,omitempty"`
}

type RobotState struct {
	ID    uint32 `json:"id"`
	Kind  string `json:"kind"`
	Phase string `json:"phase"`

	Pos [2]int `json:"pos"`

	Energy    float64 `json:"energy"`
	MaxEnergy float64 `json:"max_energy"`

	Cargo      int    `json:"cargo"`
	KnownTiles int    `json:"known_tiles"`
	Cycles     uint64 `json:"cycles"`
	Stranded   bool   `json:"stranded,omitempty"`
}

type StationStats struct {
	ActiveRobots  int    `json:"active_robots"`
	KnownTiles    int    `json:"known_tiles"`
	ResourceTiles int    `json:"resource_tiles"`
	MergesApplied uint64 `json:"merges_applied"`
	MergesStale   uint64 `json:"merges_stale"`
	Conflicts     uint64 `json:"conflicts"`

	Collected    map[string]int `json:"collected"`
	Stockpile    map[string]int `json:"stockpile"`
	ScienceCount int            `json:"science_count"`
}

// ResourceCell is ground truth for one deposit, depleted cells included
// while their kind is still on the map.
type ResourceCell struct {
	Pos      [2]int `json:"pos"`
	Kind     string `json:"kind"`
	Quantity int    `json:"quantity"`
}

// MergeEntry is the wire form of one merge-log record.
type MergeEntry struct {
	Seq     uint64 `json:"seq"`
	Sender  uint32 `json:"sender"`
	Outcome string `json:"outcome"`
	Pos     [2]int `json:"pos"`
}
