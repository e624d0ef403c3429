package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smanolloff/qwop-gym/recording"
	"github.com/smanolloff/qwop-gym/types"
)

func TestNewEpisodeCompletedEvent(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ep := recording.EpisodeSummary{
		EpisodeID:   "ep-1",
		Session:     "sess-1",
		Day:         "2026-03-01",
		Seed:        7,
		Steps:       120,
		Distance:    101.5,
		Time:        40,
		Success:     true,
		TotalReward: 62,
		StartedAt:   start,
		EndedAt:     start.Add(1500 * time.Millisecond),
	}

	ev := NewEpisodeCompletedEvent(ep, "file:///data")
	if ev.EventType != EventTypeEpisodeCompleted {
		t.Errorf("EventType = %q, want %q", ev.EventType, EventTypeEpisodeCompleted)
	}
	if ev.Outcome != OutcomeSuccess {
		t.Errorf("Outcome = %q, want %q", ev.Outcome, OutcomeSuccess)
	}
	if ev.ProtocolVersion != types.ProtocolVersion {
		t.Errorf("ProtocolVersion = %d, want %d", ev.ProtocolVersion, types.ProtocolVersion)
	}
	if ev.DurationMs != 1500 {
		t.Errorf("DurationMs = %d, want 1500", ev.DurationMs)
	}
	if ev.Timestamp != "2026-03-01T12:00:01Z" {
		t.Errorf("Timestamp = %q, want 2026-03-01T12:00:01Z", ev.Timestamp)
	}

	ep.Success = false
	if got := NewEpisodeCompletedEvent(ep, "").Outcome; got != OutcomeFailure {
		t.Errorf("Outcome = %q, want %q", got, OutcomeFailure)
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	n, err := Retry(t.Context(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestRetry_Exhausts(t *testing.T) {
	n, err := Retry(t.Context(), 2, time.Millisecond, func(context.Context) error {
		return errors.New("down")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestRetry_PermanentStops(t *testing.T) {
	sentinel := errors.New("bad request")
	n, err := Retry(t.Context(), 5, time.Millisecond, func(context.Context) error {
		return &PermanentError{Err: sentinel}
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("error = %v, want wrapped sentinel", err)
	}
	if n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	n, err := Retry(ctx, 3, time.Millisecond, func(context.Context) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if n != 0 {
		t.Errorf("attempts = %d, want 0", n)
	}
}
