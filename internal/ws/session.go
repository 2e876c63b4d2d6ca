package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"amici-chat/internal/observability"
)

// State is the lifecycle state of a session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSlowConsumer  = errors.New("send queue full")
)

// ConnInfo is captured at handshake and attached to lifecycle events.
type ConnInfo struct {
	observability.ClientMeta
	ConnID      string
	UserID      string
	TraceID     string
	ConnectedAt time.Time
}

// Session is one websocket connection. Outbound frames go through a bounded
// queue drained by the write pump; inbound frames are handled sequentially
// by the read pump.
type Session struct {
	id   string
	conn *websocket.Conn
	info ConnInfo
	send chan []byte

	mu     sync.Mutex
	state  State
	userID string
	reason string
}

func newSession(conn *websocket.Conn, info ConnInfo, buffer int) *Session {
	return &Session{
		id:   info.ConnID,
		conn: conn,
		info: info,
		send: make(chan []byte, buffer),
	}
}

// ID returns the connection id.
func (s *Session) ID() string {
	return s.id
}

// UserID returns the authenticated user, or "" before authentication.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// authenticate binds the session to userID. Only valid from
// StateUnauthenticated.
func (s *Session) authenticate(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnauthenticated {
		return false
	}
	s.state = StateAuthenticated
	s.userID = userID
	s.info.UserID = userID
	return true
}

// Send queues a frame without blocking. A full queue means the client is
// not keeping up and the frame is refused.
func (s *Session) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	select {
	case s.send <- data:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close moves the session to StateClosed and stops the write pump, which
// closes the socket. Closing twice is a no-op.
func (s *Session) Close() error {
	s.closeWithReason("closed by server")
	return nil
}

func (s *Session) closeWithReason(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.state = StateClosed
	s.reason = reason
	close(s.send)
	return true
}

func (s *Session) closeReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// writePump drains the send queue and keeps the connection alive with pings.
func (s *Session) writePump(writeWait, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case message, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.closeWithReason("write: " + err.Error())
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.closeWithReason("ping: " + err.Error())
				return
			}
		}
	}
}
