package recording

import (
	"fmt"
	"time"
)

// Record kinds, stored in the record_kind partition.
const (
	RecordKindEpisode = "episode"
	RecordKindStep    = "step"
)

// EpisodeSummary is a finished episode as stored in the dataset.
type EpisodeSummary struct {
	EpisodeID   string    `json:"episode_id" yaml:"episode_id"`
	Session     string    `json:"session" yaml:"session"`
	Day         string    `json:"day" yaml:"day"`
	Seed        uint32    `json:"seed" yaml:"seed"`
	Actions     []int     `json:"actions" yaml:"actions"`
	Steps       int       `json:"steps" yaml:"steps"`
	Distance    float32   `json:"distance" yaml:"distance"`
	Time        float32   `json:"time" yaml:"time"`
	Success     bool      `json:"success" yaml:"success"`
	TotalReward float32   `json:"total_reward" yaml:"total_reward"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	EndedAt     time.Time `json:"ended_at" yaml:"ended_at"`
}

// AvgSpeed is distance over simulated time, 0 for a zero-length episode.
func (e EpisodeSummary) AvgSpeed() float32 {
	if e.Time <= 0 {
		return 0
	}
	return e.Distance / e.Time
}

// StepRecord is one step of an episode.
type StepRecord struct {
	EpisodeID   string
	Step        int
	Action      int
	Keys        uint8
	Reward      float32
	TotalReward float32
	Time        float32
	Distance    float32
	Terminated  bool
}

// DeriveDay formats t as the day partition (YYYY-MM-DD, UTC).
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func toEpisodeRecordMap(ep EpisodeSummary) map[string]any {
	actions := make([]any, len(ep.Actions))
	for i, a := range ep.Actions {
		actions[i] = a
	}
	return map[string]any{
		"record_kind":  RecordKindEpisode,
		"session":      ep.Session,
		"day":          ep.Day,
		"episode_id":   ep.EpisodeID,
		"seed":         ep.Seed,
		"actions":      actions,
		"steps":        ep.Steps,
		"distance":     ep.Distance,
		"time":         ep.Time,
		"success":      ep.Success,
		"total_reward": ep.TotalReward,
		"started_at":   ep.StartedAt.UTC().Format(time.RFC3339Nano),
		"ended_at":     ep.EndedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toStepRecordMap(session, day string, s StepRecord) map[string]any {
	return map[string]any{
		"record_kind":  RecordKindStep,
		"session":      session,
		"day":          day,
		"episode_id":   s.EpisodeID,
		"step":         s.Step,
		"action":       s.Action,
		"keys":         s.Keys,
		"reward":       s.Reward,
		"total_reward": s.TotalReward,
		"time":         s.Time,
		"distance":     s.Distance,
		"terminated":   s.Terminated,
	}
}

// fromEpisodeRecordMap parses a record read back through the JSONL codec.
func fromEpisodeRecordMap(m map[string]any) (EpisodeSummary, error) {
	id := toString(m["episode_id"])
	if id == "" {
		return EpisodeSummary{}, fmt.Errorf("episode record without episode_id")
	}
	ep := EpisodeSummary{
		EpisodeID:   id,
		Session:     toString(m["session"]),
		Day:         toString(m["day"]),
		Seed:        uint32(toInt64(m["seed"])),
		Steps:       int(toInt64(m["steps"])),
		Distance:    toFloat32(m["distance"]),
		Time:        toFloat32(m["time"]),
		Success:     m["success"] == true,
		TotalReward: toFloat32(m["total_reward"]),
		StartedAt:   toTime(m["started_at"]),
		EndedAt:     toTime(m["ended_at"]),
	}
	if raw, ok := m["actions"].([]any); ok {
		ep.Actions = make([]int, len(raw))
		for i, a := range raw {
			ep.Actions[i] = int(toInt64(a))
		}
	}
	return ep, nil
}

func fromStepRecordMap(m map[string]any) StepRecord {
	return StepRecord{
		EpisodeID:   toString(m["episode_id"]),
		Step:        int(toInt64(m["step"])),
		Action:      int(toInt64(m["action"])),
		Keys:        uint8(toInt64(m["keys"])),
		Reward:      toFloat32(m["reward"]),
		TotalReward: toFloat32(m["total_reward"]),
		Time:        toFloat32(m["time"]),
		Distance:    toFloat32(m["distance"]),
		Terminated:  m["terminated"] == true,
	}
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case uint32:
		return int64(n)
	case uint8:
		return int64(n)
	default:
		return 0
	}
}

func toFloat32(v any) float32 {
	switch n := v.(type) {
	case float64:
		return float32(n)
	case float32:
		return n
	case int:
		return float32(n)
	default:
		return 0
	}
}

func toTime(v any) time.Time {
	s := toString(v)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
