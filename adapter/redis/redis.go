// Package redis publishes episode completion events to a Redis pub/sub
// channel as JSON.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/smanolloff/qwop-gym/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "qwopgym:episode_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis adapter.
type Config struct {
	// URL is redis://[:password@]host:port[/db] (required).
	URL string
	// Channel defaults to DefaultChannel.
	Channel string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retries after the first attempt.
	Retries int
	// Backoff is the first retry delay (default adapter.DefaultBackoff).
	Backoff time.Duration
	// Stream, when set, also appends every event to this stream so that
	// consumers that were offline can catch up.
	Stream string
	// StreamMaxLen caps the stream length with an approximate (MAXLEN ~)
	// trim, so Redis may keep a few more entries. Zero keeps every entry.
	StreamMaxLen int64
}

// Adapter publishes events via Redis PUBLISH.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter. The connection is established lazily.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = adapter.DefaultBackoff
	}
	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// Channel returns the channel events are published on.
func (a *Adapter) Channel() string {
	return a.config.Channel
}

// Publish sends the event as JSON, retrying with exponential backoff.
func (a *Adapter) Publish(ctx context.Context, event *adapter.EpisodeCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	_, err = adapter.Retry(ctx, a.config.Retries, a.config.Backoff, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		err := a.send(publishCtx, event.EpisodeID, body)
		if errors.Is(err, goredis.ErrClosed) {
			return &adapter.PermanentError{Err: err}
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// send publishes body and, with a stream configured, appends it in the
// same round trip.
func (a *Adapter) send(ctx context.Context, episodeID string, body []byte) error {
	if a.config.Stream == "" {
		return a.client.Publish(ctx, a.config.Channel, body).Err()
	}
	_, err := a.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		p.Publish(ctx, a.config.Channel, body)
		p.XAdd(ctx, &goredis.XAddArgs{
			Stream: a.config.Stream,
			MaxLen: a.config.StreamMaxLen,
			Approx: true,
			Values: map[string]any{"episode_id": episodeID, "event": body},
		})
		return nil
	})
	return err
}

// Close releases the client connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
