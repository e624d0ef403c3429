package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StatsModel shows aggregate episode statistics above a scrollable table
// of the episodes.
type StatsModel struct {
	stats    *EpisodeStats
	table    table.Model
	quitting bool
}

// NewStatsModel creates a stats model.
func NewStatsModel(stats *EpisodeStats) StatsModel {
	columns := []table.Column{
		{Title: "Episode", Width: 14},
		{Title: "Seed", Width: 10},
		{Title: "Steps", Width: 6},
		{Title: "Distance", Width: 9},
		{Title: "Time", Width: 7},
		{Title: "Reward", Width: 8},
		{Title: "Outcome", Width: 8},
	}
	rows := make([]table.Row, 0, len(stats.Episodes))
	for _, ep := range stats.Episodes {
		outcome := "fail"
		if ep.Success {
			outcome = "success"
		}
		rows = append(rows, table.Row{
			shortID(ep.EpisodeID),
			fmt.Sprintf("%d", ep.Seed),
			fmt.Sprintf("%d", ep.Steps),
			fmt.Sprintf("%.1f", ep.Distance),
			fmt.Sprintf("%.1f", ep.Time),
			fmt.Sprintf("%.2f", ep.TotalReward),
			outcome,
		})
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(min(len(rows)+1, 12)),
	)
	return StatsModel{stats: stats, table: t}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}
	s := m.stats.Summary

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Episode Statistics"))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		statBox("Episodes", fmt.Sprintf("%d", s.Episodes), highlightColor),
		statBox("Successes", fmt.Sprintf("%d", s.Successes), successColor),
		statBox("Success rate", fmt.Sprintf("%.0f%%", s.SuccessRate*100), warningColor),
		statBox("Max distance", fmt.Sprintf("%.1f", s.MaxDistance), primaryColor),
	))
	b.WriteString("\n")
	b.WriteString(field("Mean distance", fmt.Sprintf("%.2f", s.MeanDistance)))
	b.WriteString("\n")
	b.WriteString(field("Mean reward", fmt.Sprintf("%.2f", s.MeanReward)))
	b.WriteString("\n")
	b.WriteString(field("Mean speed", fmt.Sprintf("%.2f", s.MeanSpeed)))
	b.WriteString("\n")
	b.WriteString(field("Mean steps", fmt.Sprintf("%.1f", s.MeanSteps)))
	b.WriteString("\n\n")
	if len(m.stats.Episodes) > 0 {
		b.WriteString(m.table.View())
	} else {
		b.WriteString(ValueStyle.Render("(no episodes)"))
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("↑/↓ scroll • q quit"))
	return b.String()
}

func shortID(id string) string {
	if len(id) > 14 {
		return id[:14]
	}
	return id
}
