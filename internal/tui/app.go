// Package tui is the operator console. It follows the bubbletea
// model/update/view loop: a tick command samples the live simulation,
// the resulting message replaces the cached feed, and the view renders
// the cache. The simulation itself never blocks on the terminal.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"surveyor.ai/internal/sim/robot"
	"surveyor.ai/internal/sim/station"
	"surveyor.ai/internal/sim/world"
)

const (
	refreshInterval = 250 * time.Millisecond
	mergeTailLen    = 8
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	bodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// feedMsg is one sampled frame of simulation state.
type feedMsg struct {
	world     world.Snapshot
	robots    []robot.Status
	knowledge station.KnowledgeStats
	collected map[world.ResourceKind]int
	science   int
	merges    []station.MergeRecord
	at        time.Time
}

// App is the top-level bubbletea model.
type App struct {
	grid    *world.Grid
	station *station.Manager
	runID   string

	width  int
	height int

	// mapView scrolls the surface map when it is larger than the terminal.
	mapView viewport.Model

	feed      feedMsg
	hasFeed   bool
	statusMsg string
	startedAt time.Time
}

func New(grid *world.Grid, mgr *station.Manager, runID string) *App {
	return &App{
		grid:      grid,
		station:   mgr,
		runID:     runID,
		mapView:   viewport.New(80, 20),
		statusMsg: "q quit · r refresh · arrows scroll map",
		startedAt: time.Now(),
	}
}

func (a *App) Init() tea.Cmd {
	return a.fetchFeed()
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resizeMap()
		return a, nil

	case feedMsg:
		a.feed = msg
		a.hasFeed = true
		a.resizeMap()
		a.mapView.SetContent(renderMap(msg.world, msg.robots))
		return a, a.scheduleRefresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "r":
			a.statusMsg = "refreshing"
			return a, a.fetchFeed()
		}
	}

	// Everything else, arrow keys included, goes to the map viewport.
	var cmd tea.Cmd
	a.mapView, cmd = a.mapView.Update(msg)
	return a, cmd
}

// resizeMap fits the viewport to the terminal, leaving room for the side
// panel, and never larger than the map itself.
func (a *App) resizeMap() {
	w, h := 80, 20
	if a.width > 0 {
		w = max(20, a.width-52)
	}
	if a.height > 0 {
		h = max(6, a.height-10)
	}
	if a.hasFeed {
		w = min(w, a.feed.world.Width)
		h = min(h, a.feed.world.Height)
	}
	a.mapView.Width = w
	a.mapView.Height = h
}

func (a *App) fetchFeed() tea.Cmd {
	return func() tea.Msg {
		return a.buildFeed()
	}
}

func (a *App) scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return a.buildFeed()
	})
}

func (a *App) buildFeed() feedMsg {
	return feedMsg{
		world:     a.grid.Snapshot(),
		robots:    a.station.Statuses(),
		knowledge: a.station.KnowledgeStats(),
		collected: a.station.CollectionTotals(),
		science:   a.station.ScienceCount(),
		merges:    a.station.MergeLogTail(mergeTailLen),
		at:        time.Now(),
	}
}

func (a *App) View() string {
	header := headerStyle.Render(fmt.Sprintf("⏚ SURVEYOR · run %s · up %s", a.runID, humanDuration(time.Since(a.startedAt))))
	if !a.hasFeed {
		return lipgloss.JoinVertical(lipgloss.Left, header, bodyStyle.Render("sampling simulation..."))
	}

	mapBox := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(fmt.Sprintf("Surface %dx%d", a.feed.world.Width, a.feed.world.Height)),
		bodyStyle.Render(a.mapView.View()),
	))
	right := lipgloss.JoinVertical(lipgloss.Left,
		a.renderStationPanel(),
		"",
		a.renderRoster(),
	)
	rightBox := boxStyle.Render(right)
	body := lipgloss.JoinHorizontal(lipgloss.Top, mapBox, rightBox)

	sections := []string{header, body}
	if merges := a.renderMergeTail(); merges != "" {
		sections = append(sections, boxStyle.Render(merges))
	}
	sections = append(sections, dimStyle.Render(a.statusMsg))
	return strings.Join(sections, "\n")
}

func (a *App) renderStationPanel() string {
	ks := a.feed.knowledge
	total := a.feed.world.Width * a.feed.world.Height
	pct := 0.0
	if total > 0 {
		pct = float64(ks.KnownTiles) / float64(total) * 100
	}
	lines := []string{
		titleStyle.Render("Station"),
		fmt.Sprintf("Robots active   %d", len(a.feed.robots)),
		fmt.Sprintf("Known tiles     %d/%d (%.0f%%)", ks.KnownTiles, total, pct),
		fmt.Sprintf("Resource tiles  %d", ks.ResourceTiles),
		fmt.Sprintf("Merges          %d applied · %d stale · %d conflicts", ks.Applied, ks.Stale, ks.Conflicts),
		fmt.Sprintf("Stockpile       %s", a.renderTotals(a.feed.world.Stockpile)),
		fmt.Sprintf("Collected       %s", a.renderTotals(a.feed.collected)),
		fmt.Sprintf("Science reports %d", a.feed.science),
	}
	return bodyStyle.Render(strings.Join(lines, "\n"))
}

func (a *App) renderTotals(totals map[world.ResourceKind]int) string {
	parts := make([]string, 0, 2)
	for _, k := range []world.ResourceKind{world.KindEnergy, world.KindMineral} {
		parts = append(parts, fmt.Sprintf("%s %d", k, totals[k]))
	}
	return strings.Join(parts, " · ")
}

func (a *App) renderRoster() string {
	if len(a.feed.robots) == 0 {
		return dimStyle.Render("No robots deployed.")
	}
	lines := make([]string, 0, len(a.feed.robots)+1)
	lines = append(lines, titleStyle.Render(fmt.Sprintf("Robots (%d)", len(a.feed.robots))))
	for _, s := range a.feed.robots {
		line := fmt.Sprintf("%c%-3d %-9s %-12s (%3d,%3d) %4.0f/%-4.0f cargo %2d",
			robotGlyph(s), s.ID, s.Kind, s.Phase, s.Pos.Row, s.Pos.Col, s.Energy, s.MaxEnergy, s.CargoTotal)
		if s.Stranded {
			line += "  STRANDED"
		}
		lines = append(lines, line)
	}
	return bodyStyle.Render(strings.Join(lines, "\n"))
}

func (a *App) renderMergeTail() string {
	if len(a.feed.merges) == 0 {
		return ""
	}
	lines := make([]string, 0, len(a.feed.merges)+1)
	lines = append(lines, titleStyle.Render("Recent merges"))
	for _, rec := range a.feed.merges {
		line := fmt.Sprintf("#%-6d robot %-3d %-8s (%d,%d)", rec.Seq, rec.Sender, rec.Outcome, rec.Coord.Row, rec.Coord.Col)
		lines = append(lines, line)
	}
	return bodyStyle.Render(strings.Join(lines, "\n"))
}

func humanDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
