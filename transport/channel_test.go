package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smanolloff/qwop-gym/dispatch"
	"github.com/smanolloff/qwop-gym/metrics"
	"github.com/smanolloff/qwop-gym/observation"
	"github.com/smanolloff/qwop-gym/sim/ragdoll"
	"github.com/smanolloff/qwop-gym/types"
	"github.com/smanolloff/qwop-gym/wire"
)

// peerServer runs script against the first websocket connection it accepts.
func peerServer(t *testing.T, script func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readMsg(t *testing.T, conn *websocket.Conn) wire.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Errorf("peer read failed: %v", err)
		return wire.Message{}
	}
	msg, err := wire.Parse(data)
	if err != nil {
		t.Errorf("peer parse failed: %v", err)
	}
	return msg
}

func writeMsg(t *testing.T, conn *websocket.Conn, msg wire.Message) {
	t.Helper()
	if err := conn.WriteMessage(websocket.BinaryMessage, msg.Bytes()); err != nil {
		t.Errorf("peer write failed: %v", err)
	}
}

func closeNormal(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func newRagdollDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	model := ragdoll.New(1)
	d, err := dispatch.New(model, dispatch.Options{
		Config: dispatch.DefaultConfig(),
		Policy: observation.DefaultPolicy(),
		Frames: model,
	})
	if err != nil {
		t.Fatalf("dispatch.New failed: %v", err)
	}
	return d
}

func TestChannel_HandshakeAndCommands(t *testing.T) {
	endpoint := peerServer(t, func(conn *websocket.Conn) {
		reg := readMsg(t, conn)
		if role, err := wire.DecodeRegistration(reg); err != nil || role != types.RoleClient {
			t.Errorf("registration role = %v, %v; want client", role, err)
		}
		writeMsg(t, conn, wire.EncodeAck())

		writeMsg(t, conn, wire.EncodeCommand(types.Command{Flags: types.CmdStep | types.CmdKeyQ}))
		if reply := readMsg(t, conn); reply.Header != types.HeaderOBS || len(reply.Bytes()) != wire.ObservationMessageSize {
			t.Errorf("reply = %v (%d bytes), want OBS", reply.Header, len(reply.Bytes()))
		}

		writeMsg(t, conn, wire.EncodeCommand(types.Command{Flags: types.CmdDraw | types.CmdImage}))
		if reply := readMsg(t, conn); reply.Header != types.HeaderIMG {
			t.Errorf("reply = %v, want IMG", reply.Header)
		}

		// Malformed command: one ERR, connection stays open.
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{byte(types.HeaderCMD), 1, 2})
		if reply := readMsg(t, conn); reply.Header != types.HeaderERR {
			t.Errorf("reply = %v, want ERR", reply.Header)
		}

		// Unexpected header is ignored; the next command is answered.
		writeMsg(t, conn, wire.EncodeObservation(types.ObservationFrame{}))
		writeMsg(t, conn, wire.EncodeCommand(types.Command{Flags: types.CmdStep}))
		if reply := readMsg(t, conn); reply.Header != types.HeaderOBS {
			t.Errorf("reply = %v, want OBS", reply.Header)
		}
		closeNormal(conn)
	})

	m := metrics.NewCollector("client", "")
	ch := NewChannel(newRagdollDispatcher(t), Options{Metrics: m})
	if ch.State() != types.StateDisconnected {
		t.Errorf("initial state = %v, want disconnected", ch.State())
	}
	if err := ch.Connect(t.Context(), endpoint); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if ch.State() != types.StateConnecting {
		t.Errorf("state after Connect = %v, want connecting", ch.State())
	}

	done := make(chan error, 1)
	go func() { done <- ch.Run(t.Context()) }()

	select {
	case <-ch.Registered():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for registration")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on clean close", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}

	snap := m.Snapshot()
	if snap.Registrations != 1 {
		t.Errorf("Registrations = %d, want 1", snap.Registrations)
	}
	if snap.ProtocolViolations != 1 {
		t.Errorf("ProtocolViolations = %d, want 1", snap.ProtocolViolations)
	}
	if ch.State() != types.StateDisconnected {
		t.Errorf("final state = %v, want disconnected", ch.State())
	}
}

func TestChannel_Rejected(t *testing.T) {
	endpoint := peerServer(t, func(conn *websocket.Conn) {
		readMsg(t, conn)
		writeMsg(t, conn, wire.EncodeReject())
		// Drain until the client closes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ch := NewChannel(newRagdollDispatcher(t), Options{})
	if err := ch.Connect(t.Context(), endpoint); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	err := ch.Run(t.Context())
	if !errors.Is(err, ErrRejected) {
		t.Errorf("Run = %v, want ErrRejected", err)
	}
	if !IsTransportError(err) {
		t.Errorf("Run error %v is not a TransportError", err)
	}
}

func TestChannel_ContextCancel(t *testing.T) {
	endpoint := peerServer(t, func(conn *websocket.Conn) {
		readMsg(t, conn)
		writeMsg(t, conn, wire.EncodeAck())
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ch := NewChannel(newRagdollDispatcher(t), Options{})
	if err := ch.Connect(t.Context(), endpoint); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()
	<-ch.Registered()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestChannel_SendBeforeConnect(t *testing.T) {
	ch := NewChannel(newRagdollDispatcher(t), Options{})
	if err := ch.Send(wire.EncodeLog("hi")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send = %v, want ErrNotConnected", err)
	}
	if err := ch.Run(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Run = %v, want ErrNotConnected", err)
	}
}

func TestChannel_ConnectFailure(t *testing.T) {
	ch := NewChannel(newRagdollDispatcher(t), Options{HandshakeTimeout: time.Second})
	err := ch.Connect(t.Context(), "ws://127.0.0.1:1/")
	if !IsTransportError(err) {
		t.Errorf("Connect = %v, want TransportError", err)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ws://localhost:8081", "ws://localhost:8081/"},
		{"localhost:8081", "ws://localhost:8081/"},
		{"127.0.0.1:9000", "ws://127.0.0.1:9000/"},
		{"tcp://host:1", "ws://host:1/"},
		{"https://example.com/sim", "wss://example.com/sim"},
	}
	for _, tt := range tests {
		got, err := NormalizeEndpoint(tt.in)
		if err != nil {
			t.Errorf("NormalizeEndpoint(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeEndpoint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := NormalizeEndpoint("ftp://x"); err == nil {
		t.Error("expected error for ftp scheme")
	}
}
