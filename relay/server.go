// Package relay pairs one simulation client with one controller and relays
// commands and replies between them.
//
// Registration: a client REG replaces any previous client and is
// acknowledged at once. A controller REG replaces any previous controller
// and is acknowledged once a client is registered. Unknown roles get REJ.
//
// Relaying: CMD flows controller to client; OBS, IMG and ERR flow client to
// controller. LOG lines are logged. RLD restarts the simulation through the
// Launcher and is acknowledged once the new client registers. Anything else,
// or anything from an unregistered connection, is a protocol violation that
// is logged and dropped.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smanolloff/qwop-gym/log"
	"github.com/smanolloff/qwop-gym/metrics"
	"github.com/smanolloff/qwop-gym/types"
	"github.com/smanolloff/qwop-gym/wire"
)

// Default timeouts.
const (
	DefaultReadyTimeout  = 60 * time.Second
	DefaultReloadTimeout = 5 * time.Second
)

var (
	// ErrProtocolViolation marks a message that is invalid in its context.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrNoLauncher is returned for RLD when the relay cannot restart clients.
	ErrNoLauncher = errors.New("reload requested but no launcher configured")
)

// Launcher starts a simulation client that connects back to the relay.
type Launcher interface {
	Launch(ctx context.Context, seed uint32) error
}

// Options configures a Server.
type Options struct {
	// Seed is passed to the Launcher when the relay itself starts a client.
	Seed uint32
	// Launcher restarts the simulation on RLD. Optional.
	Launcher Launcher
	// ReadyTimeout bounds how long a controller registration waits for a client.
	ReadyTimeout time.Duration
	// ReloadTimeout bounds how long RLD waits for the new client.
	ReloadTimeout time.Duration
	Logger        *log.Logger
	Metrics       *metrics.Collector
}

// Server is the relay.
type Server struct {
	opts    Options
	logger  *log.Logger
	metrics *metrics.Collector

	upgrader websocket.Upgrader

	mu         sync.Mutex
	client     *peer
	controller *peer
	ready      chan struct{} // closed while a client is registered
	seed       uint32

	httpSrv *http.Server
}

// NewServer creates a relay.
func NewServer(opts Options) *Server {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	if opts.ReloadTimeout <= 0 {
		opts.ReloadTimeout = DefaultReloadTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Server{
		opts:    opts,
		logger:  logger,
		metrics: opts.Metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		ready: make(chan struct{}),
		seed:  opts.Seed,
	}
}

// Seed returns the seed of the current simulation.
func (s *Server) Seed() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seed
}

// Start listens on addr and serves in the background until ctx is done.
// It returns the bound address.
func (s *Server) Start(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("relay server stopped", map[string]any{"error": err.Error()})
		}
	}()
	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()
	s.logger.Info("relay listening", map[string]any{"addr": ln.Addr().String()})
	return ln.Addr(), nil
}

// Shutdown closes all peers and stops the HTTP server.
func (s *Server) Shutdown() {
	s.mu.Lock()
	peers := []*peer{s.client, s.controller}
	s.client, s.controller = nil, nil
	s.mu.Unlock()
	for _, p := range peers {
		if p != nil {
			p.close()
		}
	}
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(ctx)
	}
}

// WaitClient blocks until a client is registered or ctx is done.
func (s *Server) WaitClient(ctx context.Context) error {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Peers lists the registered peers.
func (s *Server) Peers() []PeerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PeerInfo
	if s.client != nil {
		out = append(out, s.client.info(types.RoleClient))
	}
	if s.controller != nil {
		out = append(out, s.controller.info(types.RoleController))
	}
	return out
}

// ServeWS upgrades the request and relays its messages until it closes.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", map[string]any{"error": err.Error()})
		return
	}
	p := newPeer(conn, r.UserAgent(), r.RemoteAddr)
	logger := s.logger.With(map[string]any{"peer_id": p.id})
	logger.Info("connection opened", map[string]any{"user_agent": p.userAgent, "remote_addr": p.remoteAddr})
	defer s.disconnect(p, logger)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("connection lost", map[string]any{"error": err.Error()})
			}
			return
		}
		if kind != websocket.BinaryMessage {
			s.violation(logger, "text frame", nil)
			continue
		}
		s.handle(r.Context(), p, logger, data)
	}
}

func (s *Server) disconnect(p *peer, logger *log.Logger) {
	_ = p.conn.Close()
	s.mu.Lock()
	switch {
	case s.client == p:
		s.client = nil
		s.ready = make(chan struct{})
	case s.controller == p:
		s.controller = nil
	}
	s.mu.Unlock()
	logger.Info("connection closed", nil)
}

func (s *Server) handle(ctx context.Context, p *peer, logger *log.Logger, data []byte) {
	msg, err := wire.Parse(data)
	if err != nil {
		s.violation(logger, "undecodable message", err)
		return
	}
	logger.Debug("inbound", map[string]any{"header": msg.Header.String(), "size": len(data)})

	if msg.Header == types.HeaderREG {
		s.register(ctx, p, logger, msg)
		return
	}

	role, ok := p.getRole()
	if !ok {
		s.violation(logger, msg.Header.String()+" before registration", nil)
		return
	}

	switch {
	case msg.Header == types.HeaderCMD && role == types.RoleController:
		s.forward(logger, s.peer(types.RoleClient), data)
	case role == types.RoleClient &&
		(msg.Header == types.HeaderOBS || msg.Header == types.HeaderIMG || msg.Header == types.HeaderERR):
		if msg.Header == types.HeaderERR {
			logger.Error("client error", map[string]any{"text": wire.DecodeText(msg.Payload)})
		}
		s.forward(logger, s.peer(types.RoleController), data)
	case msg.Header == types.HeaderLOG:
		logger.Info("remote log", map[string]any{"role": role.String(), "text": wire.DecodeText(msg.Payload)})
	case msg.Header == types.HeaderRLD && role == types.RoleController:
		seed, err := wire.DecodeReload(msg.Payload)
		if err != nil {
			s.violation(logger, "RLD", err)
			return
		}
		if err := s.reload(ctx, p, logger, seed); err != nil {
			logger.Error("reload failed", map[string]any{"seed": seed, "error": err.Error()})
			if err := p.sendMsg(wire.EncodeError("reload failed: " + err.Error())); err != nil {
				logger.Warn("reload error reply failed", map[string]any{"error": err.Error()})
			}
		}
	default:
		s.violation(logger, fmt.Sprintf("%s from %s", msg.Header, role), nil)
	}
}

func (s *Server) peer(role types.Role) *peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role == types.RoleClient {
		return s.client
	}
	return s.controller
}

func (s *Server) forward(logger *log.Logger, to *peer, data []byte) {
	if to == nil {
		s.violation(logger, "no peer to forward to", nil)
		return
	}
	if err := to.send(data); err != nil {
		logger.Warn("forward failed", map[string]any{"to": to.id, "error": err.Error()})
		return
	}
	s.metrics.IncForwarded()
}

func (s *Server) register(ctx context.Context, p *peer, logger *log.Logger, msg wire.Message) {
	role, err := wire.DecodeRegistration(msg)
	if err != nil {
		s.metrics.IncRejection()
		logger.Warn("registration rejected", map[string]any{"error": err.Error()})
		_ = p.sendMsg(wire.EncodeReject())
		return
	}
	p.setRole(role)

	switch role {
	case types.RoleClient:
		s.mu.Lock()
		prev := s.client
		s.client = p
		select {
		case <-s.ready:
		default:
			close(s.ready)
		}
		s.mu.Unlock()
		if prev != nil && prev != p {
			prev.close()
		}
		s.ack(p, logger, role)

	case types.RoleController:
		s.mu.Lock()
		prev := s.controller
		s.controller = p
		hasClient := s.client != nil
		s.mu.Unlock()
		if prev != nil && prev != p {
			prev.close()
		}
		if !hasClient && s.opts.Launcher != nil {
			// The previous client may have died with the previous controller.
			if err := s.opts.Launcher.Launch(ctx, s.Seed()); err != nil {
				logger.Error("launch failed", map[string]any{"error": err.Error()})
			}
		}
		logger.Info("waiting for client", nil)
		waitCtx, cancel := context.WithTimeout(ctx, s.opts.ReadyTimeout)
		defer cancel()
		if err := s.WaitClient(waitCtx); err != nil {
			s.metrics.IncRejection()
			logger.Error("no client registered in time", map[string]any{"error": err.Error()})
			_ = p.sendMsg(wire.EncodeReject())
			return
		}
		s.ack(p, logger, role)
	}
}

func (s *Server) ack(p *peer, logger *log.Logger, role types.Role) {
	if err := p.sendMsg(wire.EncodeAck()); err != nil {
		logger.Warn("ack failed", map[string]any{"error": err.Error()})
		return
	}
	s.metrics.IncRegistration()
	logger.Info("registration acknowledged", map[string]any{"role": role.String()})
}

// reload drops the current client, launches a new one with seed and
// acknowledges the controller once it registers.
func (s *Server) reload(ctx context.Context, controller *peer, logger *log.Logger, seed uint32) error {
	if s.opts.Launcher == nil {
		return ErrNoLauncher
	}
	logger.Info("reloading simulation", map[string]any{"seed": seed})

	s.mu.Lock()
	s.seed = seed
	old := s.client
	s.client = nil
	s.ready = make(chan struct{})
	s.mu.Unlock()
	if old != nil {
		old.close()
	}

	if err := s.opts.Launcher.Launch(ctx, seed); err != nil {
		return fmt.Errorf("launch: %w", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.ReloadTimeout)
	defer cancel()
	if err := s.WaitClient(waitCtx); err != nil {
		return fmt.Errorf("wait for client: %w", err)
	}
	s.metrics.IncReload()
	return controller.sendMsg(wire.EncodeAck())
}

func (s *Server) violation(logger *log.Logger, what string, err error) {
	fields := map[string]any{"what": what}
	if err != nil {
		fields["error"] = err.Error()
	}
	s.metrics.IncProtocolViolation(what)
	logger.Warn(ErrProtocolViolation.Error(), fields)
}
