// Package station is the coordination hub: it owns the robot fleet, drains
// the shared event queue, folds reported observations into the canonical map
// with per-origin version stamps, and answers read-only queries from the
// presentation side.
package station

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"surveyor.ai/internal/sim/comms"
	"surveyor.ai/internal/sim/knowledge"
	"surveyor.ai/internal/sim/robot"
	"surveyor.ai/internal/sim/tuning"
	"surveyor.ai/internal/sim/world"
)

// ErrCapacityExceeded is returned by CreateRobot when the fleet is already
// at its configured maximum.
var ErrCapacityExceeded = errors.New("robot capacity exceeded")

type Config struct {
	MaxRobots         int
	EventCapacity     int
	DirectiveCapacity int
	GracePeriod       time.Duration
	SyncBatchMax      int

	Explorer  robot.Config
	Collector robot.Config
	Scientist robot.Config
}

// FromTuning resolves the runtime configuration, including the per-class
// robot economics, out of the loaded tuning.
func FromTuning(t tuning.Tuning) Config {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	mk := func(rt tuning.RobotTuning) robot.Config {
		return robot.Config{
			MaxEnergy:        rt.MaxEnergy,
			MoveCost:         rt.MoveCost,
			ActionCost:       rt.ActionCost,
			LowEnergy:        rt.LowEnergy,
			RechargeRate:     t.Station.RechargeRate,
			ViewRadius:       rt.ViewRadius,
			CargoCapacity:    rt.CargoCapacity,
			HarvestPerAction: rt.HarvestPerAction,
			ShareInterval:    uint64(rt.ShareInterval),
			ShareBatchMax:    t.Station.SyncBatchMax,
			CycleMin:         ms(rt.CycleMinMs),
			CycleMax:         ms(rt.CycleMaxMs),
			MergeTimeout:     ms(t.Station.MergeTimeoutMs),
		}
	}
	return Config{
		MaxRobots:         t.Swarm.MaxRobots,
		EventCapacity:     t.Comms.EventCapacity,
		DirectiveCapacity: t.Comms.DirectiveCapacity,
		GracePeriod:       ms(t.Station.GracePeriodMs),
		SyncBatchMax:      t.Station.SyncBatchMax,
		Explorer:          mk(t.Explorer),
		Collector:         mk(t.Collector),
		Scientist:         mk(t.Scientist),
	}
}

// ScienceRecord is one archived analysis report.
type ScienceRecord struct {
	Robot    knowledge.RobotID `json:"robot"`
	Coord    world.Coord       `json:"coord"`
	Findings comms.Findings    `json:"findings"`
	At       time.Time         `json:"at"`
}

// CollectionRecord is one harvest report as handed to audit sinks.
type CollectionRecord struct {
	Robot  knowledge.RobotID  `json:"robot"`
	Coord  world.Coord        `json:"coord"`
	Kind   world.ResourceKind `json:"kind"`
	Amount int                `json:"amount"`
	At     time.Time          `json:"at"`
}

// AuditSink receives collection and science records as they are handled.
// Optional; attach before Run.
type AuditSink interface {
	WriteCollection(rec CollectionRecord) error
	WriteScience(rec ScienceRecord) error
}

type slot struct {
	robot      *robot.Robot
	directives *comms.Mailbox
	active     bool
}

type Manager struct {
	cfg     Config
	grid    *world.Grid
	inbox   *comms.Mailbox
	logger  *log.Logger
	journal MergeJournal
	audit   AuditSink

	// mu guards the canonical map, merge history and report archives.
	// Only the station loop writes; accessors take the read side.
	mu        sync.RWMutex
	kb        map[world.Coord]kbRecord
	mergeLog  []MergeRecord
	science   []ScienceRecord
	collected map[world.ResourceKind]int
	perRobot  map[knowledge.RobotID]map[world.ResourceKind]int
	applied   uint64
	stale     uint64
	conflicts uint64
	seq       uint64
	clock     uint64

	slotMu     sync.RWMutex
	slots      map[knowledge.RobotID]*slot
	nextID     knowledge.RobotID
	collectors int
	graceUntil map[knowledge.RobotID]time.Time
	robots     sync.WaitGroup
}

// New builds the station over a generated world. The station immediately
// surveys its own pad so every robot starts with the same seed knowledge.
func New(cfg Config, grid *world.Grid, logger *log.Logger, journal MergeJournal) *Manager {
	m := &Manager{
		cfg:        cfg,
		grid:       grid,
		inbox:      comms.NewMailbox(cfg.EventCapacity),
		logger:     logger,
		journal:    journal,
		kb:         make(map[world.Coord]kbRecord),
		collected:  make(map[world.ResourceKind]int),
		perRobot:   make(map[knowledge.RobotID]map[world.ResourceKind]int),
		slots:      make(map[knowledge.RobotID]*slot),
		graceUntil: make(map[knowledge.RobotID]time.Time),
	}
	m.surveyPad()
	return m
}

// surveyPad marks the station rectangle discovered and seeds the canonical
// map with it, stamped as the station's own observations.
func (m *Manager) surveyPad() {
	st := m.grid.StationRect()
	entries := make([]knowledge.Entry, 0, (st.MaxRow-st.MinRow+1)*(st.MaxCol-st.MinCol+1))
	for row := st.MinRow; row <= st.MaxRow; row++ {
		for col := st.MinCol; col <= st.MaxCol; col++ {
			at := world.Coord{Row: row, Col: col}
			for {
				if err := m.grid.MarkDiscovered(at); !errors.Is(err, world.ErrBusy) {
					break
				}
			}
			snap, err := m.grid.Read(at)
			if err != nil {
				continue
			}
			m.clock++
			entries = append(entries, knowledge.Entry{
				Coord:   at,
				Facts:   knowledge.FactsFromTile(snap),
				Origin:  knowledge.Station,
				Version: m.clock,
			})
		}
	}
	m.MergeKnowledge(knowledge.Station, entries)
}

// Inbox is the shared event queue every robot reports into.
func (m *Manager) Inbox() *comms.Mailbox { return m.inbox }

// SetAuditSink attaches a secondary archive for harvest and science records.
func (m *Manager) SetAuditSink(s AuditSink) { m.audit = s }

// CreateRobot builds, registers, and launches one robot. Creation beyond the
// configured fleet size is refused with ErrCapacityExceeded. Collectors
// alternate between mineral and energy hauling.
func (m *Manager) CreateRobot(ctx context.Context, kind robot.Kind) (*robot.Robot, error) {
	m.slotMu.Lock()
	defer m.slotMu.Unlock()

	active := 0
	for _, s := range m.slots {
		if s.active {
			active++
		}
	}
	if active >= m.cfg.MaxRobots {
		return nil, ErrCapacityExceeded
	}

	m.nextID++
	id := m.nextID
	carry := world.KindNone
	if kind == robot.KindCollector {
		if m.collectors%2 == 0 {
			carry = world.KindMineral
		} else {
			carry = world.KindEnergy
		}
		m.collectors++
	}
	directives := comms.NewMailbox(m.cfg.DirectiveCapacity)
	r := robot.New(robot.Params{
		ID:         id,
		Kind:       kind,
		Config:     m.robotConfig(kind),
		Start:      m.spawnPoint(id),
		CarryKind:  carry,
		World:      m.grid,
		Station:    m.inbox,
		Directives: directives,
		Logger:     m.logger,
		Seed:       int64(id) * 0x9e3779b9,
	})
	m.slots[id] = &slot{robot: r, directives: directives, active: true}

	// Hand the newcomer the canonical map so it does not relearn the pad.
	if !directives.TrySend(comms.KnowledgeShare{Robot: knowledge.Station, Entries: m.SyncBatch()}) {
		m.logger.Printf("robot %d: seed knowledge push dropped", id)
	}

	m.robots.Add(1)
	go func() {
		defer m.robots.Done()
		r.Run(ctx)
	}()
	m.logger.Printf("robot %d (%s) deployed at %+v", id, kind, r.Status().Pos)
	return r, nil
}

func (m *Manager) robotConfig(kind robot.Kind) robot.Config {
	switch kind {
	case robot.KindCollector:
		return m.cfg.Collector
	case robot.KindScientist:
		return m.cfg.Scientist
	default:
		return m.cfg.Explorer
	}
}

// spawnPoint spreads new robots across the pad tiles.
func (m *Manager) spawnPoint(id knowledge.RobotID) world.Coord {
	st := m.grid.StationRect()
	width := st.MaxCol - st.MinCol + 1
	height := st.MaxRow - st.MinRow + 1
	n := int(id-1) % (width * height)
	return world.Coord{Row: st.MinRow + n/width, Col: st.MinCol + n%width}
}

// Statuses returns the latest snapshot of every robot ever deployed, sorted
// by id.
func (m *Manager) Statuses() []robot.Status {
	m.slotMu.RLock()
	defer m.slotMu.RUnlock()
	out := make([]robot.Status, 0, len(m.slots))
	for _, s := range m.slots {
		out = append(out, s.robot.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveRobots counts robots whose loops have not exited yet.
func (m *Manager) ActiveRobots() int {
	m.slotMu.RLock()
	defer m.slotMu.RUnlock()
	n := 0
	for _, s := range m.slots {
		if s.active {
			n++
		}
	}
	return n
}

// ScienceLog returns the archived analysis reports, oldest first.
func (m *Manager) ScienceLog() []ScienceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ScienceRecord, len(m.science))
	copy(out, m.science)
	return out
}

func (m *Manager) ScienceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.science)
}

// CollectionTotals returns how much of each kind robots have reported
// harvesting. The world stockpile can lag behind it while cargo is still
// being hauled home.
func (m *Manager) CollectionTotals() map[world.ResourceKind]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[world.ResourceKind]int, len(m.collected))
	for k, v := range m.collected {
		out[k] = v
	}
	return out
}
