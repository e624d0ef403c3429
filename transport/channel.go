// Package transport owns the simulation client's websocket connection:
// connect, registration handshake, receive dispatch and send.
//
// Run is the single control flow. Each inbound command is decoded, applied
// and answered before the next message is read, so at most one reply is ever
// in flight. The channel never reconnects on its own.
package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smanolloff/qwop-gym/dispatch"
	"github.com/smanolloff/qwop-gym/log"
	"github.com/smanolloff/qwop-gym/metrics"
	"github.com/smanolloff/qwop-gym/types"
	"github.com/smanolloff/qwop-gym/wire"
)

// DefaultHandshakeTimeout bounds the websocket dial.
const DefaultHandshakeTimeout = 5 * time.Second

// Handler answers one command payload.
type Handler interface {
	Handle(ctx context.Context, payload []byte) dispatch.Result
}

// Options configures a Channel.
type Options struct {
	HandshakeTimeout time.Duration
	// Header is sent with the websocket upgrade request.
	Header  http.Header
	Logger  *log.Logger
	Metrics *metrics.Collector
}

// Channel is the client end of the protocol.
type Channel struct {
	handler  Handler
	reporter *dispatch.ErrorReporter
	opts     Options
	logger   *log.Logger
	metrics  *metrics.Collector

	state      atomic.Int32
	registered chan struct{}
	regOnce    sync.Once

	// gorilla/websocket allows one concurrent writer.
	writeMu sync.Mutex
	conn    *websocket.Conn
}

// NewChannel creates a disconnected channel that answers commands with handler.
func NewChannel(handler Handler, opts Options) *Channel {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Channel{
		handler:    handler,
		reporter:   dispatch.NewErrorReporter(logger),
		opts:       opts,
		logger:     logger,
		metrics:    opts.Metrics,
		registered: make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Channel) State() types.ConnectionState {
	return types.ConnectionState(c.state.Load())
}

func (c *Channel) setState(s types.ConnectionState) {
	prev := types.ConnectionState(c.state.Swap(int32(s)))
	if prev != s {
		c.logger.Debug("connection state changed", map[string]any{
			"from": prev.String(),
			"to":   s.String(),
		})
	}
}

// Registered is closed once the peer acknowledges registration.
func (c *Channel) Registered() <-chan struct{} {
	return c.registered
}

// Connect opens a binary websocket to endpoint and sends the client
// registration. The channel is Connecting until Run receives the ACK.
func (c *Channel) Connect(ctx context.Context, endpoint string) error {
	u, err := NormalizeEndpoint(endpoint)
	if err != nil {
		return &TransportError{Op: "connect", Err: err}
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = c.opts.HandshakeTimeout
	conn, _, err := dialer.DialContext(ctx, u, c.opts.Header)
	if err != nil {
		return &TransportError{Op: "connect", Err: err}
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	c.setState(types.StateConnecting)

	if err := c.Send(wire.EncodeRegistration(types.RoleClient)); err != nil {
		_ = c.Close()
		return err
	}
	c.logger.Info("connected", map[string]any{"endpoint": u})
	return nil
}

// Send writes one message. It blocks only on the socket's own backpressure.
func (c *Channel) Send(msg wire.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return &TransportError{Op: "send", Err: ErrNotConnected}
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, msg.Bytes()); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// Log sends a LOG message to the peer.
func (c *Channel) Log(text string) error {
	return c.Send(wire.EncodeLog(text))
}

// Run reads and handles messages until the connection closes, ctx is done,
// or the peer rejects registration. A clean close returns nil.
func (c *Channel) Run(ctx context.Context) error {
	c.writeMu.Lock()
	conn := c.conn
	c.writeMu.Unlock()
	if conn == nil {
		return &TransportError{Op: "run", Err: ErrNotConnected}
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-stop:
		}
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			c.setState(types.StateDisconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("connection closed by peer", nil)
				return nil
			}
			return &TransportError{Op: "read", Err: err}
		}
		if kind != websocket.BinaryMessage {
			c.violation("text frame", nil)
			continue
		}
		if err := c.onReceive(ctx, data); err != nil {
			return err
		}
	}
}

// onReceive handles one inbound message. Only send failures and a rejected
// registration end the loop.
func (c *Channel) onReceive(ctx context.Context, data []byte) error {
	msg, err := wire.Parse(data)
	if err != nil {
		c.violation("undecodable message", err)
		return nil
	}

	switch msg.Header {
	case types.HeaderACK:
		c.setState(types.StateRegistered)
		c.regOnce.Do(func() { close(c.registered) })
		c.metrics.IncRegistration()
		c.logger.Info("registered", nil)
		return nil

	case types.HeaderREJ:
		c.metrics.IncRejection()
		c.logger.Error("registration rejected", nil)
		_ = c.Close()
		return &TransportError{Op: "register", Err: ErrRejected}

	case types.HeaderCMD:
		res := c.handler.Handle(ctx, msg.Payload)
		return c.Send(c.reporter.Reply(res))

	default:
		c.violation("unexpected "+msg.Header.String(), nil)
		return nil
	}
}

func (c *Channel) violation(what string, err error) {
	fields := map[string]any{"what": what}
	if err != nil {
		fields["error"] = err.Error()
	}
	c.metrics.IncProtocolViolation(what)
	c.logger.Warn("protocol violation", fields)
}

// Close sends a close frame and closes the connection. Safe to call twice.
func (c *Channel) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	c.setState(types.StateDisconnected)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return &TransportError{Op: "close", Err: err}
	}
	return nil
}
