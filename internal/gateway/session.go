// Package gateway terminates client WebSocket connections: it performs
// the handshake, authenticates the session token, bridges audio frames
// and control commands onto the message bus, and relays overlay
// triggers back down to the client.
package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sentinel-voice/core/internal/bus"
	"github.com/sentinel-voice/core/internal/logging"
)

// outboundQueueSize bounds how many pending UI messages a slow client
// can accumulate before the gateway starts dropping the oldest ones
// rather than let one stalled socket back-pressure the whole bus
// subscription.
const outboundQueueSize = 64

// Session tracks one live WebSocket connection from handshake to close.
type Session struct {
	ID       string
	TenantID string
	UserID   string

	conn *websocket.Conn
	log  logging.Logger

	outbound chan []byte
	sub      bus.Subscription

	closeOnce sync.Once
	endedOnce sync.Once
	done      chan struct{}
}

func newSession(id, tenantID, userID string, conn *websocket.Conn, log logging.Logger) *Session {
	return &Session{
		ID:       id,
		TenantID: tenantID,
		UserID:   userID,
		conn:     conn,
		log:      log,
		outbound: make(chan []byte, outboundQueueSize),
		done:     make(chan struct{}),
	}
}

// enqueueOutbound pushes data to the client write loop, dropping the
// oldest queued message when full: a coaching overlay that is seconds
// stale is worse than none, and we never want a stalled client to
// back-pressure the NATS subscription handler thread.
func (s *Session) enqueueOutbound(data []byte) {
	select {
	case s.outbound <- data:
	default:
		select {
		case <-s.outbound:
		default:
		}
		select {
		case s.outbound <- data:
		default:
		}
	}
}

// writeLoop drains outbound to the socket until the session closes.
func (s *Session) writeLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-s.outbound:
			if !ok {
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Warn("gateway: write failed", "session_id", s.ID, "error", err)
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// Close tears down the session exactly once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.sub != nil {
			if err := s.sub.Unsubscribe(); err != nil {
				s.log.Warn("gateway: unsubscribe failed", "session_id", s.ID, "error", err)
			}
		}
		_ = s.conn.Close()
	})
}

// Registry tracks sessions by ID for lookup during shutdown drain.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns a snapshot of active sessions, for shutdown draining.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
