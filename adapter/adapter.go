// Package adapter publishes episode completion notifications to downstream
// systems (webhooks, Redis pub/sub).
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smanolloff/qwop-gym/recording"
	"github.com/smanolloff/qwop-gym/types"
)

// EventTypeEpisodeCompleted is the event_type of every published event.
const EventTypeEpisodeCompleted = "episode_completed"

// Outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// DefaultBackoff is the delay before the first retry; it doubles after that.
const DefaultBackoff = 500 * time.Millisecond

// EpisodeCompletedEvent is the payload published when an episode finishes.
type EpisodeCompletedEvent struct {
	ProtocolVersion int     `json:"protocol_version"`
	EventType       string  `json:"event_type"`
	EpisodeID       string  `json:"episode_id"`
	Session         string  `json:"session"`
	Day             string  `json:"day"`
	Seed            uint32  `json:"seed"`
	Outcome         string  `json:"outcome"`
	Steps           int     `json:"steps"`
	Distance        float32 `json:"distance"`
	Time            float32 `json:"time"`
	TotalReward     float32 `json:"total_reward"`
	StoragePath     string  `json:"storage_path,omitempty"`
	Timestamp       string  `json:"timestamp"`
	DurationMs      int64   `json:"duration_ms"`
}

// NewEpisodeCompletedEvent builds the event for a recorded episode.
func NewEpisodeCompletedEvent(ep recording.EpisodeSummary, storagePath string) *EpisodeCompletedEvent {
	outcome := OutcomeFailure
	if ep.Success {
		outcome = OutcomeSuccess
	}
	return &EpisodeCompletedEvent{
		ProtocolVersion: types.ProtocolVersion,
		EventType:       EventTypeEpisodeCompleted,
		EpisodeID:       ep.EpisodeID,
		Session:         ep.Session,
		Day:             ep.Day,
		Seed:            ep.Seed,
		Outcome:         outcome,
		Steps:           ep.Steps,
		Distance:        ep.Distance,
		Time:            ep.Time,
		TotalReward:     ep.TotalReward,
		StoragePath:     storagePath,
		Timestamp:       ep.EndedAt.UTC().Format(time.RFC3339),
		DurationMs:      ep.EndedAt.Sub(ep.StartedAt).Milliseconds(),
	}
}

// Adapter publishes episode completion events.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation.
	Publish(ctx context.Context, event *EpisodeCompletedEvent) error
	// Close releases adapter resources.
	Close() error
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Retry runs fn once plus up to retries more times, sleeping base, 2*base,
// 4*base... between attempts. A *PermanentError from fn stops immediately.
// It returns the number of attempts made and the last error.
func Retry(ctx context.Context, retries int, base time.Duration, fn func(context.Context) error) (int, error) {
	attempts := 1 + retries
	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return i, fmt.Errorf("context canceled: %w", err)
		}
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * base
			select {
			case <-ctx.Done():
				return i, fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return i + 1, nil
		}
		var perm *PermanentError
		if errors.As(lastErr, &perm) {
			return i + 1, fmt.Errorf("non-retriable error: %w", perm.Err)
		}
	}
	return attempts, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
