package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/smanolloff/qwop-gym/env"
	"github.com/smanolloff/qwop-gym/recording"
	"github.com/smanolloff/qwop-gym/types"
)

// sparkBars are the glyphs of the distance sparkline, lowest first.
var sparkBars = []rune("▁▂▃▄▅▆▇█")

// InspectModel shows one episode and, when a trace is present, its
// distance curve and key usage.
type InspectModel struct {
	detail   *EpisodeDetail
	width    int
	quitting bool
}

// NewInspectModel creates an inspect model.
func NewInspectModel(detail *EpisodeDetail) InspectModel {
	return InspectModel{detail: detail, width: 80}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}
	ep := m.detail.Episode
	outcome := "fail"
	if ep.Success {
		outcome = "success"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Episode " + ep.EpisodeID))
	b.WriteString("\n")
	for _, line := range []string{
		field("Session", ep.Session),
		field("Seed", fmt.Sprintf("%d", ep.Seed)),
		field("Steps", fmt.Sprintf("%d", ep.Steps)),
		field("Distance", fmt.Sprintf("%.2f", ep.Distance)),
		field("Time", fmt.Sprintf("%.2f", ep.Time)),
		field("Avg speed", fmt.Sprintf("%.2f", ep.AvgSpeed())),
		field("Reward", fmt.Sprintf("%.2f", ep.TotalReward)),
		LabelStyle.Render("Outcome") + " " + OutcomeStyle(ep.Success).Render(outcome),
	} {
		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(m.detail.Trace) > 0 {
		b.WriteString("\n")
		b.WriteString(LabelStyle.Render("Distance"))
		b.WriteString(" ")
		b.WriteString(sparkline(m.detail.Trace, max(m.width-20, 10)))
		b.WriteString("\n")
		b.WriteString(LabelStyle.Render("Key usage"))
		b.WriteString(" ")
		b.WriteString(ValueStyle.Render(keyUsage(m.detail.Trace)))
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render("Press q or Ctrl+C to quit"))
	return b.String()
}

// sparkline samples trace distances into at most width bars.
func sparkline(trace []recording.TraceStep, width int) string {
	n := min(len(trace), width)
	lo, hi := trace[0].Distance, trace[0].Distance
	for _, s := range trace {
		lo = min(lo, s.Distance)
		hi = max(hi, s.Distance)
	}
	var b strings.Builder
	for i := range n {
		s := trace[i*len(trace)/n]
		idx := 0
		if hi > lo {
			idx = int((s.Distance - lo) / (hi - lo) * float32(len(sparkBars)-1))
		}
		b.WriteRune(sparkBars[idx])
	}
	return b.String()
}

// keyUsage reports the share of steps each key was held.
func keyUsage(trace []recording.TraceStep) string {
	parts := make([]string, 0, len(types.Keys))
	for _, k := range types.Keys {
		held := 0
		for _, s := range trace {
			if types.CommandFlags(s.Keys).Has(k.Flag()) {
				held++
			}
		}
		parts = append(parts, fmt.Sprintf("%s %.0f%%", k, 100*float64(held)/float64(len(trace))))
	}
	return strings.Join(parts, "  ") + "  (last: " + env.ActionName(types.CommandFlags(trace[len(trace)-1].Keys)) + ")"
}
