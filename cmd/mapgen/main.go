package main

import (
	"flag"
	"fmt"
	"os"

	"surveyor.ai/internal/sim/terrain"
	"surveyor.ai/internal/sim/tuning"
	"surveyor.ai/internal/sim/world"
)

// mapgen renders a generated surface to stdout so layouts can be eyeballed
// before committing seeds to tuning.yaml.
func main() {
	defaults := tuning.Defaults().Map
	var (
		tuningPath   = flag.String("tuning", "", "path to tuning.yaml (optional, supplies map defaults)")
		width        = flag.Int("width", 0, "map width (0 keeps the tuning value)")
		height       = flag.Int("height", 0, "map height (0 keeps the tuning value)")
		terrainSeed  = flag.Int64("terrain_seed", 0, "terrain seed (0 keeps the tuning value)")
		resourceSeed = flag.Int64("resource_seed", 0, "resource seed (0 keeps the tuning value)")
		resources    = flag.Int("resources", -1, "deposit count (-1 keeps the tuning value)")
		stationSize  = flag.Int("station_size", 0, "station pad size (0 keeps the tuning value)")
	)
	flag.Parse()

	m := defaults
	if *tuningPath != "" {
		tune, err := tuning.Load(*tuningPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		m = tune.Map
	}
	if *width > 0 {
		m.Width = *width
	}
	if *height > 0 {
		m.Height = *height
	}
	if *terrainSeed != 0 {
		m.TerrainSeed = *terrainSeed
	}
	if *resourceSeed != 0 {
		m.ResourceSeed = *resourceSeed
	}
	if *resources >= 0 {
		m.ResourceCount = *resources
	}
	if *stationSize > 0 {
		m.StationSize = *stationSize
	}

	layout, err := terrain.Generate(terrain.Params{
		Width:         m.Width,
		Height:        m.Height,
		TerrainSeed:   m.TerrainSeed,
		ResourceSeed:  m.ResourceSeed,
		ResourceCount: m.ResourceCount,
		StationSize:   m.StationSize,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate:", err)
		os.Exit(1)
	}

	counts := map[rune]int{}
	for row := 0; row < layout.Height; row++ {
		line := make([]rune, layout.Width)
		for col := 0; col < layout.Width; col++ {
			g := glyph(layout, world.Coord{Row: row, Col: col})
			line[col] = g
			counts[g]++
		}
		fmt.Println(string(line))
	}

	walkable := counts['.'] + counts['~'] + counts['#'] + counts['e'] + counts['m'] + counts['s']
	total := layout.Width * layout.Height
	fmt.Printf("\n%dx%d terrain_seed=%d resource_seed=%d\n", layout.Width, layout.Height, m.TerrainSeed, m.ResourceSeed)
	fmt.Printf("station rows %d-%d cols %d-%d\n", layout.Station.MinRow, layout.Station.MaxRow, layout.Station.MinCol, layout.Station.MaxCol)
	fmt.Printf("walkable %d/%d (%.0f%%)  ridges %d\n", walkable, total, float64(walkable)/float64(total)*100, counts['^'])
	fmt.Printf("deposits: %d energy, %d mineral, %d science sites\n", counts['e'], counts['m'], counts['s'])
	fmt.Println("legend: . plain  ~ dune  ^ ridge  # station  e energy  m mineral  s science site")
}

func glyph(l terrain.Layout, c world.Coord) rune {
	if l.Station.Contains(c) {
		return '#'
	}
	t := l.Tiles[c.Row*l.Width+c.Col]
	if t.Resource.Present() {
		switch t.Resource.Kind {
		case world.KindEnergy:
			return 'e'
		case world.KindMineral:
			return 'm'
		case world.KindScienceSite:
			return 's'
		}
	}
	switch t.Terrain {
	case world.TerrainDune:
		return '~'
	case world.TerrainRidge:
		return '^'
	default:
		return '.'
	}
}
