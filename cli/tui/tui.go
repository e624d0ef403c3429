package tui

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/smanolloff/qwop-gym/recording"
)

// View types.
const (
	ViewEpisodeStats = "stats_episodes"
	ViewEpisode      = "inspect_episode"
)

// EpisodeStats is the payload of the stats_episodes view.
type EpisodeStats struct {
	Summary  recording.Summary          `json:"summary" yaml:"summary"`
	Episodes []recording.EpisodeSummary `json:"episodes" yaml:"episodes"`
}

// EpisodeDetail is the payload of the inspect_episode view.
type EpisodeDetail struct {
	Episode recording.EpisodeSummary `json:"episode" yaml:"episode"`
	Trace   []recording.TraceStep    `json:"trace,omitempty" yaml:"trace,omitempty"`
}

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
}

// SupportedTUIViews lists the views with a TUI.
func SupportedTUIViews() []string {
	return []string{ViewEpisodeStats, ViewEpisode}
}

// IsTUISupported reports whether view has a TUI.
func IsTUISupported(view string) bool {
	return slices.Contains(SupportedTUIViews(), view)
}

// Run starts the TUI for view on the alternate screen.
func Run(view string, data any) error {
	model, err := newModel(view, data)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

// RenderStatic renders one frame of the view without a terminal program.
func RenderStatic(view string, data any) (string, error) {
	model, err := newModel(view, data)
	if err != nil {
		return "", err
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View()), nil
}

func newModel(view string, data any) (tea.Model, error) {
	switch view {
	case ViewEpisodeStats:
		stats, ok := data.(*EpisodeStats)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected payload %T", view, data)
		}
		return NewStatsModel(stats), nil
	case ViewEpisode:
		detail, ok := data.(*EpisodeDetail)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected payload %T", view, data)
		}
		return NewInspectModel(detail), nil
	default:
		return nil, fmt.Errorf("TUI mode is not supported for %s", view)
	}
}
