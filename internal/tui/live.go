package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/virtacc/internal/engine"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type plot int

const (
	plotOrbit plot = iota
	plotBeta
	plotDispersion
)

func (p plot) String() string {
	switch p {
	case plotBeta:
		return "beta"
	case plotDispersion:
		return "dispersion"
	default:
		return "orbit"
	}
}

type liveModel struct {
	eng   *engine.Engine
	ring  string
	plane string
	plot  plot

	width  int
	height int
}

// NewLiveApp builds the dashboard model for tea.NewProgram.
func NewLiveApp(eng *engine.Engine, ring string) tea.Model {
	return liveModel{eng: eng, ring: ring, plane: "x", width: 80, height: 24}
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m liveModel) Init() tea.Cmd { return tick() }

func (m liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "p":
			m.eng.Toggle()
		case "x":
			m.plane = "x"
		case "y":
			m.plane = "y"
		case "tab", "o":
			m.plot = (m.plot + 1) % 3
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		return m, tick()
	}
	return m, nil
}

func (m liveModel) View() string {
	var b strings.Builder

	status := green.Render("running")
	if m.eng.Paused() {
		status = yellow.Render("paused")
	}
	b.WriteString(cyan.Render(fmt.Sprintf(" %s ", m.ring)))
	b.WriteString(dim.Render(fmt.Sprintf("v%d ", m.eng.Version())))
	b.WriteString(status)
	if err := m.eng.LastError(); err != nil {
		b.WriteString("  " + red.Render("compute error: "+err.Error()))
	}
	b.WriteString("\n\n")

	b.WriteString(m.summary())
	b.WriteString("\n")
	b.WriteString(m.graph())
	b.WriteString("\n\n")
	b.WriteString(dim.Render(" q quit · p pause · x/y plane · tab plot"))
	return b.String()
}

func (m liveModel) summary() string {
	var b strings.Builder
	tunes := m.eng.Tunes()
	chroma := m.eng.Chromaticities()
	b.WriteString(white.Render(fmt.Sprintf(" tune       %.4f / %.4f\n", tunes[0], tunes[1])))
	b.WriteString(white.Render(fmt.Sprintf(" chroma     %+.3f / %+.3f\n", chroma[0], chroma[1])))
	if em, err := m.eng.Emittances(); err == nil {
		ex, ey := em[0], em[1]
		b.WriteString(white.Render(fmt.Sprintf(" emittance  %.3e / %.3e m rad\n", ex, ey)))
	}
	b.WriteString(dim.Render(fmt.Sprintf(" energy %.2f GeV · circumference %.2f m · %d elements\n",
		m.eng.Energy()/1e9, m.eng.Circumference(), m.eng.ElementCount())))
	return b.String()
}

func (m liveModel) graph() string {
	var series []float64
	var err error
	var unit string
	switch m.plot {
	case plotBeta:
		series, err = m.eng.Beta(m.plane)
		unit = "m"
	case plotDispersion:
		series, err = m.eng.Dispersion(m.plane)
		unit = "m"
	default:
		series, err = m.eng.Orbit(m.plane)
		for i := range series {
			series[i] *= 1e3
		}
		unit = "mm"
	}
	if err != nil || len(series) == 0 {
		return dim.Render(" no data")
	}
	h := m.height - 12
	if h < 6 {
		h = 6
	}
	w := m.width - 12
	if w < 20 {
		w = 20
	}
	graph := asciigraph.Plot(series,
		asciigraph.Height(h),
		asciigraph.Width(w),
		asciigraph.Caption(fmt.Sprintf("%s %s (%s) along the ring", m.plot, m.plane, unit)))
	return graph
}
