// Package controller is the command-issuing end of the protocol. A Client
// registers as the controller, then sends one command at a time and waits
// for its single reply.
package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smanolloff/qwop-gym/log"
	"github.com/smanolloff/qwop-gym/metrics"
	"github.com/smanolloff/qwop-gym/transport"
	"github.com/smanolloff/qwop-gym/types"
	"github.com/smanolloff/qwop-gym/wire"
)

// Defaults.
const (
	DefaultReplyTimeout   = 10 * time.Second
	DefaultReconnectDelay = 5 * time.Second
)

// ErrUnexpectedReply is returned when the peer answers with a header that
// cannot follow the request.
var ErrUnexpectedReply = errors.New("unexpected reply")

// RemoteError carries the text of an ERR reply.
type RemoteError struct {
	Text string
}

func (e *RemoteError) Error() string {
	return "remote error: " + e.Text
}

// IsRemoteError reports whether err is (or wraps) a *RemoteError.
func IsRemoteError(err error) bool {
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr)
}

// Options configures a Client.
type Options struct {
	HandshakeTimeout time.Duration
	// ReplyTimeout bounds the wait for each reply and for registration.
	ReplyTimeout time.Duration
	// Reconnect makes Do redial and resend after a transport failure,
	// waiting ReconnectDelay between attempts, until ctx is done.
	Reconnect      bool
	ReconnectDelay time.Duration
	Header         http.Header
	Logger         *log.Logger
	Metrics        *metrics.Collector
}

func (o *Options) defaults() {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = transport.DefaultHandshakeTimeout
	}
	if o.ReplyTimeout <= 0 {
		o.ReplyTimeout = DefaultReplyTimeout
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
}

// Reply is one decoded reply to a command.
type Reply struct {
	Header types.Header
	// Observation is set for OBS replies.
	Observation *types.ObservationFrame
	// ImageFormat and Image are set for IMG replies.
	ImageFormat types.ImageFormat
	Image       []byte
}

// Client is a registered controller connection. Methods serialise so that
// at most one command is in flight.
type Client struct {
	endpoint string
	opts     Options

	mu   sync.Mutex
	conn *websocket.Conn
}

// Dial connects to endpoint, registers as controller and waits for ACK.
func Dial(ctx context.Context, endpoint string, opts Options) (*Client, error) {
	opts.defaults()
	u, err := transport.NormalizeEndpoint(endpoint)
	if err != nil {
		return nil, &transport.TransportError{Op: "connect", Err: err}
	}
	c := &Client{endpoint: u, opts: opts}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// DialRetry calls Dial until it succeeds or ctx is done, waiting
// opts.ReconnectDelay between attempts. A rejection is not retried.
func DialRetry(ctx context.Context, endpoint string, opts Options) (*Client, error) {
	opts.defaults()
	for {
		c, err := Dial(ctx, endpoint, opts)
		if err == nil || errors.Is(err, transport.ErrRejected) {
			return c, err
		}
		opts.Logger.Warn("failed to connect", map[string]any{"endpoint": endpoint, "error": err.Error()})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.ReconnectDelay):
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = c.opts.HandshakeTimeout
	conn, _, err := dialer.DialContext(ctx, c.endpoint, c.opts.Header)
	if err != nil {
		return &transport.TransportError{Op: "connect", Err: err}
	}
	c.conn = conn

	if err := c.write(wire.EncodeRegistration(types.RoleController)); err != nil {
		_ = conn.Close()
		return err
	}
	msg, err := c.read(ctx)
	if err != nil {
		_ = conn.Close()
		return err
	}
	switch msg.Header {
	case types.HeaderACK:
		c.opts.Metrics.IncRegistration()
		c.opts.Logger.Info("registered", map[string]any{"endpoint": c.endpoint})
		return nil
	case types.HeaderREJ:
		c.opts.Metrics.IncRejection()
		_ = conn.Close()
		return &transport.TransportError{Op: "register", Err: transport.ErrRejected}
	default:
		_ = conn.Close()
		return fmt.Errorf("%w: expected ACK, got %s", ErrUnexpectedReply, msg.Header)
	}
}

func (c *Client) write(msg wire.Message) error {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, msg.Bytes()); err != nil {
		c.drop()
		return &transport.TransportError{Op: "send", Err: err}
	}
	return nil
}

// drop closes a connection that can no longer be used. Later calls fail
// with ErrNotConnected until reconnect.
func (c *Client) drop() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// read waits for the next message within the reply timeout or ctx deadline.
func (c *Client) read(ctx context.Context) (wire.Message, error) {
	deadline := time.Now().Add(c.opts.ReplyTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn := c.conn
	_ = conn.SetReadDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			// gorilla/websocket fails every read after the first error.
			c.drop()
			if ctx.Err() != nil {
				return wire.Message{}, ctx.Err()
			}
			return wire.Message{}, &transport.TransportError{Op: "read", Err: err}
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		msg, err := wire.Parse(data)
		if err != nil {
			return wire.Message{}, err
		}
		if msg.Header == types.HeaderLOG {
			c.opts.Logger.Info("remote log", map[string]any{"text": wire.DecodeText(msg.Payload)})
			continue
		}
		return msg, nil
	}
}

// Do sends cmd and returns its reply. An ERR reply is returned as *RemoteError.
func (c *Client) Do(ctx context.Context, cmd types.Command) (*Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		msg, err := c.roundTrip(ctx, wire.EncodeCommand(cmd))
		if err == nil {
			c.opts.Metrics.IncCommand()
			return decodeReply(msg)
		}
		if !c.opts.Reconnect || !transport.IsTransportError(err) || ctx.Err() != nil {
			return nil, err
		}
		c.opts.Logger.Warn("failed to send/receive, reconnecting", map[string]any{"error": err.Error()})
		if err := c.reconnect(ctx); err != nil {
			return nil, err
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, msg wire.Message) (wire.Message, error) {
	if c.conn == nil {
		return wire.Message{}, &transport.TransportError{Op: "send", Err: transport.ErrNotConnected}
	}
	if err := c.write(msg); err != nil {
		return wire.Message{}, err
	}
	return c.read(ctx)
}

func (c *Client) reconnect(ctx context.Context) error {
	c.drop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.ReconnectDelay):
		}
		err := c.connect(ctx)
		if err == nil || errors.Is(err, transport.ErrRejected) {
			return err
		}
		c.opts.Logger.Warn("failed to connect", map[string]any{"error": err.Error()})
	}
}

func decodeReply(msg wire.Message) (*Reply, error) {
	switch msg.Header {
	case types.HeaderOBS:
		frame, err := wire.DecodeObservation(msg.Payload)
		if err != nil {
			return nil, err
		}
		return &Reply{Header: msg.Header, Observation: &frame}, nil
	case types.HeaderIMG:
		format, data, err := wire.DecodeImage(msg.Payload)
		if err != nil {
			return nil, err
		}
		img := make([]byte, len(data))
		copy(img, data)
		return &Reply{Header: msg.Header, ImageFormat: format, Image: img}, nil
	case types.HeaderERR:
		return nil, &RemoteError{Text: wire.DecodeText(msg.Payload)}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedReply, msg.Header)
	}
}

// Observe sends cmd, which must not request an image, and returns the frame.
func (c *Client) Observe(ctx context.Context, cmd types.Command) (types.ObservationFrame, error) {
	if cmd.Flags.Has(types.CmdImage) {
		return types.ObservationFrame{}, errors.New("observe: command requests an image")
	}
	reply, err := c.Do(ctx, cmd)
	if err != nil {
		return types.ObservationFrame{}, err
	}
	return *reply.Observation, nil
}

// Reset restarts the episode and returns the first observation.
func (c *Client) Reset(ctx context.Context) (types.ObservationFrame, error) {
	return c.Observe(ctx, types.Command{Flags: types.CmdReset})
}

// Draw renders the current frame without stepping.
func (c *Client) Draw(ctx context.Context, keys types.KeyState) (types.ObservationFrame, error) {
	return c.Observe(ctx, types.Command{Flags: types.CmdDraw | keys.Flags()})
}

// Capture renders and returns the current frame as encoded image bytes.
// keys are re-sent so that the capture does not change the held keys.
func (c *Client) Capture(ctx context.Context, keys types.KeyState) (types.ImageFormat, []byte, error) {
	reply, err := c.Do(ctx, types.Command{Flags: types.CmdDraw | types.CmdImage | keys.Flags()})
	if err != nil {
		return 0, nil, err
	}
	return reply.ImageFormat, reply.Image, nil
}

// Reload asks the relay to restart the simulation with seed and waits for
// the acknowledgement.
func (c *Client) Reload(ctx context.Context, seed uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, err := c.roundTrip(ctx, wire.EncodeReload(seed))
	if err != nil {
		return err
	}
	if msg.Header != types.HeaderACK {
		if msg.Header == types.HeaderERR {
			return &RemoteError{Text: wire.DecodeText(msg.Payload)}
		}
		return fmt.Errorf("%w: expected ACK, got %s", ErrUnexpectedReply, msg.Header)
	}
	c.opts.Metrics.IncReload()
	return nil
}

// Endpoint returns the normalised websocket URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	return err
}
