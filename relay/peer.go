package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/smanolloff/qwop-gym/types"
	"github.com/smanolloff/qwop-gym/wire"
)

// peer is one websocket connection.
type peer struct {
	id         string
	conn       *websocket.Conn
	userAgent  string
	remoteAddr string
	connected  time.Time

	mu   sync.Mutex // guards writes and role
	role *types.Role
}

func newPeer(conn *websocket.Conn, userAgent, remoteAddr string) *peer {
	return &peer{
		id:         "peer-" + uuid.NewString(),
		conn:       conn,
		userAgent:  userAgent,
		remoteAddr: remoteAddr,
		connected:  time.Now(),
	}
}

func (p *peer) send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (p *peer) sendMsg(msg wire.Message) error {
	return p.send(msg.Bytes())
}

func (p *peer) setRole(r types.Role) {
	p.mu.Lock()
	p.role = &r
	p.mu.Unlock()
}

func (p *peer) getRole() (types.Role, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.role == nil {
		return 0, false
	}
	return *p.role, true
}

func (p *peer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced"),
		time.Now().Add(time.Second))
	_ = p.conn.Close()
}

// PeerInfo describes a registered peer.
type PeerInfo struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"`
	UserAgent   string    `json:"user_agent,omitempty"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

func (p *peer) info(role types.Role) PeerInfo {
	return PeerInfo{
		ID:          p.id,
		Role:        role.String(),
		UserAgent:   p.userAgent,
		RemoteAddr:  p.remoteAddr,
		ConnectedAt: p.connected,
	}
}
