package recording

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/justapithecus/lode/lode"
)

// ErrEpisodeNotFound is returned by FindEpisode for an unknown id.
var ErrEpisodeNotFound = errors.New("episode not found")

// Filter narrows ReadEpisodes. Empty fields match everything.
type Filter struct {
	Session string
	Day     string
}

func (f Filter) match(ep EpisodeSummary) bool {
	if f.Session != "" && ep.Session != f.Session {
		return false
	}
	if f.Day != "" && ep.Day != f.Day {
		return false
	}
	return true
}

// ReadEpisodes returns every recorded episode matching f, oldest first.
// Records repeated across snapshots are returned once.
func ReadEpisodes(ctx context.Context, ds lode.Dataset, f Filter) ([]EpisodeSummary, error) {
	records, err := readKind(ctx, ds, RecordKindEpisode)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var episodes []EpisodeSummary
	for _, m := range records {
		ep, err := fromEpisodeRecordMap(m)
		if err != nil {
			continue
		}
		if _, dup := seen[ep.EpisodeID]; dup || !f.match(ep) {
			continue
		}
		seen[ep.EpisodeID] = struct{}{}
		episodes = append(episodes, ep)
	}

	sort.SliceStable(episodes, func(i, j int) bool {
		return episodes[i].StartedAt.Before(episodes[j].StartedAt)
	})
	return episodes, nil
}

// FindEpisode returns the episode with the given id.
func FindEpisode(ctx context.Context, ds lode.Dataset, episodeID string) (EpisodeSummary, error) {
	episodes, err := ReadEpisodes(ctx, ds, Filter{})
	if err != nil {
		return EpisodeSummary{}, err
	}
	for _, ep := range episodes {
		if ep.EpisodeID == episodeID {
			return ep, nil
		}
	}
	return EpisodeSummary{}, fmt.Errorf("%w: %s", ErrEpisodeNotFound, episodeID)
}

// ReadSteps returns the step records of one episode in step order.
func ReadSteps(ctx context.Context, ds lode.Dataset, episodeID string) ([]StepRecord, error) {
	records, err := readKind(ctx, ds, RecordKindStep)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]struct{})
	var steps []StepRecord
	for _, m := range records {
		if toString(m["episode_id"]) != episodeID {
			continue
		}
		s := fromStepRecordMap(m)
		if _, dup := seen[s.Step]; dup {
			continue
		}
		seen[s.Step] = struct{}{}
		steps = append(steps, s)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Step < steps[j].Step })
	return steps, nil
}

// ReadTrace loads and decodes an episode's trace sidecar.
func ReadTrace(ctx context.Context, factory lode.StoreFactory, dataset string, ep EpisodeSummary) ([]TraceStep, error) {
	store, err := factory()
	if err != nil {
		return nil, wrapStorage("init", dataset, err)
	}
	path := TracePath(dataset, ep)
	rc, err := store.Get(ctx, path)
	if err != nil {
		return nil, wrapStorage("read", path, err)
	}
	defer rc.Close()
	return NewTraceDecoder(rc).All()
}

func readKind(ctx context.Context, ds lode.Dataset, kind string) ([]map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, wrapStorage("read", "snapshots", err)
	}

	var out []map[string]any
	for _, snap := range snapshots {
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrapStorage("read", fmt.Sprintf("snapshot/%s", snap.ID), err)
		}
		for _, item := range data {
			m, ok := item.(map[string]any)
			if !ok || m["record_kind"] != kind {
				continue
			}
			out = append(out, m)
		}
	}
	return out, nil
}

// Summary aggregates a set of episodes.
type Summary struct {
	Episodes     int     `json:"episodes" yaml:"episodes"`
	Successes    int     `json:"successes" yaml:"successes"`
	SuccessRate  float64 `json:"success_rate" yaml:"success_rate"`
	TotalSteps   int     `json:"total_steps" yaml:"total_steps"`
	MeanSteps    float64 `json:"mean_steps" yaml:"mean_steps"`
	MeanDistance float64 `json:"mean_distance" yaml:"mean_distance"`
	MaxDistance  float64 `json:"max_distance" yaml:"max_distance"`
	MeanReward   float64 `json:"mean_reward" yaml:"mean_reward"`
	MeanSpeed    float64 `json:"mean_speed" yaml:"mean_speed"`
	BestEpisode  string  `json:"best_episode,omitempty" yaml:"best_episode,omitempty"`
}

// Stats summarises episodes. The zero Summary is returned for none.
func Stats(episodes []EpisodeSummary) Summary {
	var s Summary
	if len(episodes) == 0 {
		return s
	}
	s.Episodes = len(episodes)
	s.MaxDistance = math.Inf(-1)
	var dist, reward, speed float64
	for _, ep := range episodes {
		if ep.Success {
			s.Successes++
		}
		s.TotalSteps += ep.Steps
		dist += float64(ep.Distance)
		reward += float64(ep.TotalReward)
		speed += float64(ep.AvgSpeed())
		if float64(ep.Distance) > s.MaxDistance {
			s.MaxDistance = float64(ep.Distance)
			s.BestEpisode = ep.EpisodeID
		}
	}
	n := float64(s.Episodes)
	s.SuccessRate = float64(s.Successes) / n
	s.MeanSteps = float64(s.TotalSteps) / n
	s.MeanDistance = dist / n
	s.MeanReward = reward / n
	s.MeanSpeed = speed / n
	return s
}
