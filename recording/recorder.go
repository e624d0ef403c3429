// Package recording persists played episodes to a lode dataset and reads
// them back for listing, statistics and replay.
//
// Episode and step records are JSONL, Hive-partitioned by
// session/day/record_kind. Each finished episode also gets a msgpack trace
// sidecar under files/traces/.
package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/justapithecus/lode/lode"

	"github.com/smanolloff/qwop-gym/env"
	"github.com/smanolloff/qwop-gym/log"
	"github.com/smanolloff/qwop-gym/metrics"
	"github.com/smanolloff/qwop-gym/types"
)

// DefaultFlushSteps is the step record batch size.
const DefaultFlushSteps = 100

// TraceContentType is the sidecar media type.
const TraceContentType = "application/msgpack"

// ErrNoEpisode is returned when stepping or ending without Begin.
var ErrNoEpisode = errors.New("no episode in progress")

// Config holds recorder settings. Session and Day are partition keys.
type Config struct {
	Dataset string
	Session string
	// Day defaults to the UTC day of the first episode.
	Day string
	// FlushSteps is the step record batch size. Negative disables step records.
	FlushSteps int
	// Traces enables the msgpack sidecar per episode.
	Traces bool
}

// Options carries the recorder's collaborators.
type Options struct {
	Logger  *log.Logger
	Metrics *metrics.Collector
	// Now defaults to time.Now.
	Now func() time.Time
}

type episodeState struct {
	summary EpisodeSummary
	trace   []TraceStep
}

// Recorder writes episodes as they are played. Safe for concurrent use.
type Recorder struct {
	cfg     Config
	dataset lode.Dataset
	factory lode.StoreFactory
	logger  *log.Logger
	metrics *metrics.Collector
	now     func() time.Time

	storeOnce sync.Once
	store     lode.Store
	storeErr  error

	mu      sync.Mutex
	current *episodeState
	pending []any
	written int
}

// NewRecorder opens the dataset on factory and returns a recorder.
func NewRecorder(cfg Config, factory lode.StoreFactory, opts Options) (*Recorder, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	if cfg.Session == "" {
		return nil, errors.New("recording session is required")
	}
	if cfg.FlushSteps == 0 {
		cfg.FlushSteps = DefaultFlushSteps
	}
	ds, err := OpenDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		cfg:     cfg,
		dataset: ds,
		factory: factory,
		logger:  logger,
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

// Dataset returns the underlying dataset for reading.
func (r *Recorder) Dataset() lode.Dataset {
	return r.dataset
}

// Config returns the effective configuration.
func (r *Recorder) Config() Config {
	return r.cfg
}

// Begin starts a new episode and returns its id. An unfinished episode is
// discarded.
func (r *Recorder) Begin(seed uint32) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.cfg.Day == "" {
		r.cfg.Day = DeriveDay(now)
	}
	if r.current != nil {
		r.logger.Warn("discarding unfinished episode", map[string]any{
			"episode_id": r.current.summary.EpisodeID,
			"steps":      r.current.summary.Steps,
		})
	}
	id := "ep-" + uuid.NewString()
	r.current = &episodeState{summary: EpisodeSummary{
		EpisodeID: id,
		Session:   r.cfg.Session,
		Day:       r.cfg.Day,
		Seed:      seed,
		StartedAt: now,
	}}
	return id
}

// Step records one environment step.
func (r *Recorder) Step(ctx context.Context, action int, keys types.CommandFlags, res env.StepResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return ErrNoEpisode
	}
	ep := &r.current.summary
	ep.Steps++
	ep.Actions = append(ep.Actions, action)
	ep.Distance = res.Frame.Distance
	ep.Time = res.Frame.Time
	ep.Success = res.Frame.Success()
	ep.TotalReward += res.Reward

	keyBits := uint8(types.KeyStateFromFlags(keys).Flags())
	if r.cfg.Traces {
		r.current.trace = append(r.current.trace, TraceStep{
			Step:        ep.Steps,
			Action:      action,
			Keys:        keyBits,
			Reward:      res.Reward,
			TotalReward: ep.TotalReward,
			Time:        res.Frame.Time,
			Distance:    res.Frame.Distance,
			Terminated:  res.Terminated,
			Observation: append([]float32(nil), res.Observation[:]...),
		})
	}

	if r.cfg.FlushSteps < 0 {
		return nil
	}
	r.pending = append(r.pending, toStepRecordMap(r.cfg.Session, r.cfg.Day, StepRecord{
		EpisodeID:   ep.EpisodeID,
		Step:        ep.Steps,
		Action:      action,
		Keys:        keyBits,
		Reward:      res.Reward,
		TotalReward: ep.TotalReward,
		Time:        res.Frame.Time,
		Distance:    res.Frame.Distance,
		Terminated:  res.Terminated,
	}))
	if len(r.pending) >= r.cfg.FlushSteps {
		return r.flushLocked(ctx)
	}
	return nil
}

// End finishes the current episode: pending steps are flushed, the episode
// record is written and the trace sidecar stored.
func (r *Recorder) End(ctx context.Context) (EpisodeSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return EpisodeSummary{}, ErrNoEpisode
	}
	state := r.current
	r.current = nil
	state.summary.EndedAt = r.now()

	if err := r.flushLocked(ctx); err != nil {
		return state.summary, err
	}
	if err := r.write(ctx, []any{toEpisodeRecordMap(state.summary)}); err != nil {
		return state.summary, err
	}
	if r.cfg.Traces {
		if err := r.putTrace(ctx, state); err != nil {
			return state.summary, err
		}
	}

	r.logger.Info("episode recorded", map[string]any{
		"episode_id":   state.summary.EpisodeID,
		"seed":         state.summary.Seed,
		"steps":        state.summary.Steps,
		"distance":     state.summary.Distance,
		"success":      state.summary.Success,
		"total_reward": state.summary.TotalReward,
	})
	return state.summary, nil
}

// Flush writes buffered step records.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(ctx)
}

// Written returns the number of dataset writes that succeeded.
func (r *Recorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Close flushes buffered steps. An unfinished episode is dropped.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
	return r.flushLocked(ctx)
}

func (r *Recorder) flushLocked(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}
	batch := r.pending
	r.pending = nil
	return r.write(ctx, batch)
}

func (r *Recorder) write(ctx context.Context, records []any) error {
	if _, err := r.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		r.metrics.IncRecordWriteFailure()
		err = wrapStorage("write", r.cfg.Dataset, err)
		r.logger.Error("record write failed", map[string]any{
			"records": len(records),
			"error":   err.Error(),
		})
		return err
	}
	r.metrics.IncRecordWriteSuccess()
	r.written++
	return nil
}

func (r *Recorder) putTrace(ctx context.Context, state *episodeState) error {
	store, err := r.getOrCreateStore()
	if err != nil {
		return wrapStorage("init", r.cfg.Dataset, err)
	}

	var buf bytes.Buffer
	enc := NewTraceEncoder(&buf)
	for _, step := range state.trace {
		if err := enc.Encode(step); err != nil {
			return err
		}
	}
	if err := enc.Flush(); err != nil {
		return err
	}

	path := TracePath(r.cfg.Dataset, state.summary)
	if err := store.Put(ctx, path, &buf); err != nil {
		r.metrics.IncRecordWriteFailure()
		return wrapStorage("put", path, err)
	}
	r.metrics.IncRecordWriteSuccess()
	return nil
}

func (r *Recorder) getOrCreateStore() (lode.Store, error) {
	r.storeOnce.Do(func() {
		r.store, r.storeErr = r.factory()
	})
	return r.store, r.storeErr
}

// TracePath is the store path of an episode's trace sidecar.
func TracePath(dataset string, ep EpisodeSummary) string {
	if dataset == "" {
		dataset = DefaultDataset
	}
	return fmt.Sprintf("datasets/%s/partitions/session=%s/day=%s/files/traces/%s.msgpack",
		dataset, ep.Session, ep.Day, ep.EpisodeID)
}
