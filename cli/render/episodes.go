package render

import (
	"fmt"

	"github.com/smanolloff/qwop-gym/recording"
)

// EpisodeList renders episodes one per row.
type EpisodeList []recording.EpisodeSummary

// Header implements Tabular.
func (l EpisodeList) Header() []string {
	return []string{"episode_id", "session", "seed", "steps", "distance", "time", "reward", "outcome", "started_at"}
}

// Rows implements Tabular.
func (l EpisodeList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, ep := range l {
		outcome := "fail"
		if ep.Success {
			outcome = "success"
		}
		rows = append(rows, []string{
			ep.EpisodeID,
			ep.Session,
			fmt.Sprintf("%d", ep.Seed),
			fmt.Sprintf("%d", ep.Steps),
			fmt.Sprintf("%.2f", ep.Distance),
			fmt.Sprintf("%.2f", ep.Time),
			fmt.Sprintf("%.2f", ep.TotalReward),
			outcome,
			ep.StartedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}

// ReplayList renders replay results one per row.
type ReplayList []ReplayRow

// ReplayRow pairs a replay with the recording it reproduced.
type ReplayRow struct {
	recording.ReplayResult
	RecordedDistance float32 `json:"recorded_distance" yaml:"recorded_distance"`
	Match            bool    `json:"match" yaml:"match"`
}

// Header implements Tabular.
func (l ReplayList) Header() []string {
	return []string{"episode_id", "steps", "distance", "recorded", "reward", "match"}
}

// Rows implements Tabular.
func (l ReplayList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		rows = append(rows, []string{
			r.EpisodeID,
			fmt.Sprintf("%d", r.Steps),
			fmt.Sprintf("%.2f", r.Distance),
			fmt.Sprintf("%.2f", r.RecordedDistance),
			fmt.Sprintf("%.2f", r.TotalReward),
			fmt.Sprintf("%t", r.Match),
		})
	}
	return rows
}
