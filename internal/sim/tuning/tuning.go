// Package tuning loads simulation parameters from YAML.
//
// Everything that shapes a run lives here: map generation inputs, swarm
// composition, channel capacities, station service rates, and the per-class
// robot economics. Operational settings (listen addresses, journal
// directories) stay on command-line flags.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Map     MapTuning     `yaml:"map"`
	Swarm   SwarmTuning   `yaml:"swarm"`
	Comms   CommsTuning   `yaml:"comms"`
	Station StationTuning `yaml:"station"`

	Explorer  RobotTuning `yaml:"explorer"`
	Collector RobotTuning `yaml:"collector"`
	Scientist RobotTuning `yaml:"scientist"`
}

type MapTuning struct {
	Width         int   `yaml:"width"`
	Height        int   `yaml:"height"`
	TerrainSeed   int64 `yaml:"terrain_seed"`
	ResourceSeed  int64 `yaml:"resource_seed"`
	ResourceCount int   `yaml:"resource_count"`
	StationSize   int   `yaml:"station_size"`
}

type SwarmTuning struct {
	MaxRobots  int `yaml:"max_robots"`
	Explorers  int `yaml:"explorers"`
	Collectors int `yaml:"collectors"`
	Scientists int `yaml:"scientists"`
}

type CommsTuning struct {
	EventCapacity     int `yaml:"event_capacity"`
	DirectiveCapacity int `yaml:"directive_capacity"`
}

type StationTuning struct {
	RechargeRate   float64 `yaml:"recharge_rate"`
	GracePeriodMs  int     `yaml:"grace_period_ms"`
	MergeTimeoutMs int     `yaml:"merge_timeout_ms"`
	SyncBatchMax   int     `yaml:"sync_batch_max"`
}

type RobotTuning struct {
	MaxEnergy        float64 `yaml:"max_energy"`
	MoveCost         float64 `yaml:"move_cost"`
	ActionCost       float64 `yaml:"action_cost"`
	LowEnergy        float64 `yaml:"low_energy_threshold"`
	ViewRadius       int     `yaml:"view_radius"`
	CargoCapacity    int     `yaml:"cargo_capacity"`
	HarvestPerAction int     `yaml:"harvest_per_action"`
	ShareInterval    int     `yaml:"share_interval"`
	CycleMinMs       int     `yaml:"cycle_min_ms"`
	CycleMaxMs       int     `yaml:"cycle_max_ms"`
}

// Defaults returns a runnable configuration without any YAML input.
// Values mirror configs/tuning.yaml.
func Defaults() Tuning {
	return Tuning{
		Map: MapTuning{
			Width:         72,
			Height:        24,
			TerrainSeed:   1337,
			ResourceSeed:  4242,
			ResourceCount: 20,
			StationSize:   3,
		},
		Swarm: SwarmTuning{
			MaxRobots:  16,
			Explorers:  2,
			Collectors: 2,
			Scientists: 1,
		},
		Comms: CommsTuning{
			EventCapacity:     256,
			DirectiveCapacity: 4,
		},
		Station: StationTuning{
			RechargeRate:   15,
			GracePeriodMs:  10000,
			MergeTimeoutMs: 3000,
			SyncBatchMax:   512,
		},
		Explorer: RobotTuning{
			MaxEnergy:        100,
			MoveCost:         1,
			ActionCost:       1,
			LowEnergy:        20,
			ViewRadius:       3,
			CargoCapacity:    0,
			HarvestPerAction: 0,
			ShareInterval:    6,
			CycleMinMs:       300,
			CycleMaxMs:       600,
		},
		Collector: RobotTuning{
			MaxEnergy:        140,
			MoveCost:         2,
			ActionCost:       3,
			LowEnergy:        25,
			ViewRadius:       2,
			CargoCapacity:    50,
			HarvestPerAction: 1,
			ShareInterval:    6,
			CycleMinMs:       400,
			CycleMaxMs:       900,
		},
		Scientist: RobotTuning{
			MaxEnergy:        120,
			MoveCost:         1,
			ActionCost:       5,
			LowEnergy:        30,
			ViewRadius:       2,
			CargoCapacity:    0,
			HarvestPerAction: 0,
			ShareInterval:    6,
			CycleMinMs:       800,
			CycleMaxMs:       1500,
		},
	}
}

// Load reads a YAML tuning file. Absent keys keep their default values, so a
// partial file overriding only what it cares about is fine.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.Map.Width < 8 || t.Map.Height < 8 {
		return fmt.Errorf("map must be at least 8x8, got %dx%d", t.Map.Width, t.Map.Height)
	}
	if t.Map.StationSize < 1 || t.Map.StationSize > t.Map.Width || t.Map.StationSize > t.Map.Height {
		return fmt.Errorf("station_size %d does not fit a %dx%d map", t.Map.StationSize, t.Map.Width, t.Map.Height)
	}
	if t.Map.ResourceCount < 0 {
		return fmt.Errorf("resource_count must be >= 0")
	}
	if t.Swarm.MaxRobots < 1 {
		return fmt.Errorf("max_robots must be >= 1")
	}
	if t.Swarm.Explorers < 0 || t.Swarm.Collectors < 0 || t.Swarm.Scientists < 0 {
		return fmt.Errorf("swarm counts must be >= 0")
	}
	if n := t.Swarm.Explorers + t.Swarm.Collectors + t.Swarm.Scientists; n > t.Swarm.MaxRobots {
		return fmt.Errorf("swarm of %d exceeds max_robots %d", n, t.Swarm.MaxRobots)
	}
	if t.Comms.EventCapacity < 1 || t.Comms.DirectiveCapacity < 1 {
		return fmt.Errorf("channel capacities must be >= 1")
	}
	if t.Station.RechargeRate <= 0 {
		return fmt.Errorf("recharge_rate must be > 0")
	}
	if t.Station.GracePeriodMs < 0 || t.Station.MergeTimeoutMs < 0 {
		return fmt.Errorf("station timers must be >= 0")
	}
	if t.Station.SyncBatchMax < 1 {
		return fmt.Errorf("sync_batch_max must be >= 1")
	}
	for _, rc := range []struct {
		name string
		r    RobotTuning
	}{
		{"explorer", t.Explorer},
		{"collector", t.Collector},
		{"scientist", t.Scientist},
	} {
		if err := rc.r.validate(); err != nil {
			return fmt.Errorf("%s: %w", rc.name, err)
		}
	}
	return nil
}

func (r RobotTuning) validate() error {
	if r.MaxEnergy <= 0 {
		return fmt.Errorf("max_energy must be > 0")
	}
	if r.MoveCost < 0 || r.ActionCost < 0 {
		return fmt.Errorf("costs must be >= 0")
	}
	if r.LowEnergy < 0 || r.LowEnergy > r.MaxEnergy {
		return fmt.Errorf("low_energy_threshold %v outside [0, %v]", r.LowEnergy, r.MaxEnergy)
	}
	if r.ViewRadius < 1 {
		return fmt.Errorf("view_radius must be >= 1")
	}
	if r.CargoCapacity < 0 || r.HarvestPerAction < 0 {
		return fmt.Errorf("cargo settings must be >= 0")
	}
	if r.ShareInterval < 1 {
		return fmt.Errorf("share_interval must be >= 1")
	}
	if r.CycleMinMs < 0 || r.CycleMaxMs < r.CycleMinMs {
		return fmt.Errorf("cycle window [%d, %d] invalid", r.CycleMinMs, r.CycleMaxMs)
	}
	return nil
}
