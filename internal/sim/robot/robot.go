// Package robot implements the autonomous field units. Each robot runs as
// one goroutine cycling through scan, decide, move, act, report. All mutable
// state is owned by that goroutine; the outside world sees it only through
// published status snapshots and events sent to the station.
package robot

import (
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"surveyor.ai/internal/sim/comms"
	"surveyor.ai/internal/sim/knowledge"
	"surveyor.ai/internal/sim/world"
)

type Kind uint8

const (
	KindExplorer Kind = iota
	KindCollector
	KindScientist
)

func (k Kind) String() string {
	switch k {
	case KindExplorer:
		return "explorer"
	case KindCollector:
		return "collector"
	case KindScientist:
		return "scientist"
	default:
		return "unknown"
	}
}

type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseScanning
	PhaseDeciding
	PhaseMoving
	PhaseActing
	PhaseReporting
	PhaseRecharging
	PhaseShuttingDown
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseScanning:
		return "scanning"
	case PhaseDeciding:
		return "deciding"
	case PhaseMoving:
		return "moving"
	case PhaseActing:
		return "acting"
	case PhaseReporting:
		return "reporting"
	case PhaseRecharging:
		return "recharging"
	case PhaseShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Config is the resolved per-robot economics. The station builds it from
// tuning when it creates the robot.
type Config struct {
	MaxEnergy        float64
	MoveCost         float64
	ActionCost       float64
	LowEnergy        float64
	RechargeRate     float64
	ViewRadius       int
	CargoCapacity    int
	HarvestPerAction int
	ShareInterval    uint64
	ShareBatchMax    int
	CycleMin         time.Duration
	CycleMax         time.Duration
	MergeTimeout     time.Duration
}

type Params struct {
	ID         knowledge.RobotID
	Kind       Kind
	Config     Config
	Start      world.Coord
	CarryKind  world.ResourceKind // collectors: the kind this unit hauls
	World      *world.Grid
	Station    *comms.Mailbox // shared inbound queue at the station
	Directives *comms.Mailbox // station to this robot only
	Logger     *log.Logger
	Seed       int64
}

type goalKind uint8

const (
	goalNone goalKind = iota
	goalSurvey
	goalHarvest
	goalAnalyze
	goalDock
	goalWander
)

type Robot struct {
	id         knowledge.RobotID
	kind       Kind
	cfg        Config
	carry      world.ResourceKind
	grid       *world.Grid
	cache      *knowledge.Cache
	station    *comms.Mailbox
	directives *comms.Mailbox
	logger     *log.Logger
	rng        *rand.Rand

	pos         world.Coord
	energy      float64
	cargo       map[world.ResourceKind]int
	phase       Phase
	target      world.Coord
	goal        goalKind
	visited     map[world.Coord]int
	outbox      []comms.Event
	afterReport Phase
	syncWanted  bool
	cycles      uint64
	sharedAt    uint64
	returning   bool
	lowSent     bool
	stranded    bool
	exitReason  string

	status atomic.Pointer[Status]
}

// Status is the read-only snapshot a robot publishes after every cycle.
type Status struct {
	ID         knowledge.RobotID
	Kind       Kind
	Phase      Phase
	Pos        world.Coord
	Energy     float64
	MaxEnergy  float64
	Cargo      map[world.ResourceKind]int
	CargoTotal int
	KnownTiles int
	Cycles     uint64
	Stranded   bool
}

func New(p Params) *Robot {
	r := &Robot{
		id:         p.ID,
		kind:       p.Kind,
		cfg:        p.Config,
		carry:      p.CarryKind,
		grid:       p.World,
		cache:      knowledge.NewCache(p.ID),
		station:    p.Station,
		directives: p.Directives,
		logger:     p.Logger,
		rng:        rand.New(rand.NewSource(p.Seed)),
		pos:        p.Start,
		energy:     p.Config.MaxEnergy,
		cargo:      make(map[world.ResourceKind]int),
		phase:      PhaseIdle,
		visited:    make(map[world.Coord]int),
	}
	if snap, err := r.grid.Read(r.pos); err == nil {
		r.cache.Observe(snap)
	}
	r.publishStatus()
	return r
}

func (r *Robot) ID() knowledge.RobotID { return r.id }
func (r *Robot) Kind() Kind            { return r.kind }

// Status returns the latest published snapshot. Safe from any goroutine.
func (r *Robot) Status() Status { return *r.status.Load() }

func (r *Robot) publishStatus() {
	cargo := make(map[world.ResourceKind]int, len(r.cargo))
	for k, v := range r.cargo {
		cargo[k] = v
	}
	r.status.Store(&Status{
		ID:         r.id,
		Kind:       r.kind,
		Phase:      r.phase,
		Pos:        r.pos,
		Energy:     r.energy,
		MaxEnergy:  r.cfg.MaxEnergy,
		Cargo:      cargo,
		CargoTotal: r.cargoTotal(),
		KnownTiles: r.cache.Len(),
		Cycles:     r.cycles,
		Stranded:   r.stranded,
	})
}

func (r *Robot) cargoTotal() int {
	total := 0
	for _, v := range r.cargo {
		total += v
	}
	return total
}

func (r *Robot) logf(format string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Printf("robot %d (%s): "+format, append([]any{r.id, r.kind}, args...)...)
}
