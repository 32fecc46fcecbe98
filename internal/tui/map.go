package tui

import (
	"strings"

	"surveyor.ai/internal/sim/robot"
	"surveyor.ai/internal/sim/world"
)

// Map glyphs. Undiscovered tiles render as fog: the panel shows what the
// fleet has actually surveyed, not ground truth.
const (
	glyphFog     = ' '
	glyphPlain   = '.'
	glyphDune    = '~'
	glyphRidge   = '^'
	glyphStation = '#'
	glyphEnergy  = 'e'
	glyphMineral = 'm'
	glyphSite    = 's'
)

func tileGlyph(t world.TileSnapshot) rune {
	if t.Station {
		return glyphStation
	}
	if !t.Discovered {
		return glyphFog
	}
	if t.Resource.Present() {
		switch t.Resource.Kind {
		case world.KindEnergy:
			return glyphEnergy
		case world.KindMineral:
			return glyphMineral
		case world.KindScienceSite:
			return glyphSite
		}
	}
	switch t.Terrain {
	case world.TerrainDune:
		return glyphDune
	case world.TerrainRidge:
		return glyphRidge
	default:
		return glyphPlain
	}
}

func robotGlyph(s robot.Status) rune {
	if s.Stranded {
		return '!'
	}
	switch s.Kind {
	case robot.KindExplorer:
		return 'E'
	case robot.KindCollector:
		return 'C'
	case robot.KindScientist:
		return 'S'
	default:
		return '?'
	}
}

// renderMap paints the grid with robots overlaid on top of their tiles.
// Rows come out top to bottom, one rune per tile.
func renderMap(snap world.Snapshot, robots []robot.Status) string {
	if snap.Width <= 0 || snap.Height <= 0 {
		return "no map data yet"
	}
	rows := make([][]rune, snap.Height)
	for r := range rows {
		rows[r] = make([]rune, snap.Width)
		for c := range rows[r] {
			rows[r][c] = glyphFog
		}
	}
	for _, t := range snap.Tiles {
		if t.Coord.Row < 0 || t.Coord.Row >= snap.Height || t.Coord.Col < 0 || t.Coord.Col >= snap.Width {
			continue
		}
		rows[t.Coord.Row][t.Coord.Col] = tileGlyph(t)
	}
	for _, s := range robots {
		if s.Pos.Row < 0 || s.Pos.Row >= snap.Height || s.Pos.Col < 0 || s.Pos.Col >= snap.Width {
			continue
		}
		rows[s.Pos.Row][s.Pos.Col] = robotGlyph(s)
	}
	lines := make([]string, snap.Height)
	for r := range rows {
		lines[r] = string(rows[r])
	}
	return strings.Join(lines, "\n")
}
