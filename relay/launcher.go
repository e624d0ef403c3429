package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/smanolloff/qwop-gym/dispatch"
	"github.com/smanolloff/qwop-gym/log"
	"github.com/smanolloff/qwop-gym/metrics"
	"github.com/smanolloff/qwop-gym/sim/ragdoll"
	"github.com/smanolloff/qwop-gym/transport"
)

// LocalLauncher runs the ragdoll simulation client in-process. Each Launch
// stops the previous client and connects a fresh one built from seed.
type LocalLauncher struct {
	// Endpoint is the relay's websocket URL.
	Endpoint string
	// Dispatch is the template for each client's dispatcher. Frames is
	// overridden with the new model.
	Dispatch dispatch.Options
	Logger   *log.Logger
	Metrics  *metrics.Collector

	base context.Context

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLocalLauncher creates a launcher whose clients live until base is done.
func NewLocalLauncher(base context.Context, endpoint string, opts dispatch.Options) *LocalLauncher {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &LocalLauncher{
		Endpoint: endpoint,
		Dispatch: opts,
		Logger:   logger,
		Metrics:  opts.Metrics,
		base:     base,
	}
}

// Launch replaces the running client with one seeded by seed. It returns
// once the new client has connected and sent its registration.
func (l *LocalLauncher) Launch(ctx context.Context, seed uint32) error {
	l.Stop()

	model := ragdoll.New(uint64(seed))
	opts := l.Dispatch
	opts.Frames = model
	d, err := dispatch.New(model, opts)
	if err != nil {
		return fmt.Errorf("build dispatcher: %w", err)
	}
	ch := transport.NewChannel(d, transport.Options{Logger: l.Logger, Metrics: l.Metrics})
	if err := ch.Connect(ctx, l.Endpoint); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(l.base)
	done := make(chan struct{})
	l.mu.Lock()
	l.cancel, l.done = cancel, done
	l.mu.Unlock()

	go func() {
		defer close(done)
		err := ch.Run(runCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Logger.Warn("local client stopped", map[string]any{"seed": seed, "error": err.Error()})
		}
	}()
	l.Logger.Info("local client launched", map[string]any{"seed": seed})
	return nil
}

// Stop terminates the running client, if any, and waits for it to exit.
func (l *LocalLauncher) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}
