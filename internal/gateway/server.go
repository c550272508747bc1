package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sentinel-voice/core/internal/bus"
	"github.com/sentinel-voice/core/internal/events"
	"github.com/sentinel-voice/core/internal/logging"
)

// handshakeTimeout bounds how long the gateway waits for the first
// frame on a new connection before giving up on it.
const handshakeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server hosts the /ws/stream ingress endpoint and a health check.
type Server struct {
	bus       bus.Bus
	validator TokenValidator
	log       logging.Logger
	registry  *Registry
}

// NewServer builds a gateway Server.
func NewServer(b bus.Bus, validator TokenValidator, log logging.Logger) *Server {
	return &Server{bus: b, validator: validator, log: log, registry: NewRegistry()}
}

// Router builds the gin engine, with CORS open for browser clients and
// a single streaming upgrade endpoint.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET"},
		AllowHeaders:    []string{"*"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "active_sessions": s.registry.Len()})
	})
	r.GET("/ws/stream", s.handleStream)
	return r
}

// Registry exposes active sessions for the shutdown coordinator.
func (s *Server) Registry() *Registry { return s.registry }

func (s *Server) handleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("gateway: upgrade failed", "error", err)
		return
	}

	hs, claims, err := s.handshake(conn)
	if err != nil {
		s.log.Warn("gateway: handshake failed", "error", err)
		_ = conn.WriteJSON(events.ErrorFrame{Type: events.EventError, Code: 1008, Message: "handshake rejected"})
		_ = conn.Close()
		return
	}

	sessionID := sessionIDFromHandshake(hs)
	session := newSession(sessionID, claims.TenantID, claims.UserID, conn, s.log)

	ack := events.HandshakeAck{Type: events.EventHandshakeAck, SessionID: sessionID}
	if err := conn.WriteJSON(ack); err != nil {
		s.log.Warn("gateway: ack write failed", "session_id", sessionID, "error", err)
		_ = conn.Close()
		return
	}

	sub, err := s.bus.Subscribe(events.Sub.UICommands(sessionID), func(_ string, data []byte) {
		session.enqueueOutbound(data)
	})
	if err != nil {
		s.log.Warn("gateway: ui command subscribe failed", "session_id", sessionID, "error", err)
	} else {
		session.sub = sub
	}

	s.registry.Add(session)
	s.log.Info("gateway: session established", "session_id", sessionID, "tenant_id", claims.TenantID)

	go session.writeLoop()
	s.streamLoop(session)
}

// handshake reads the first frame, which must be a JSON handshake
// payload, and validates its token.
func (s *Server) handshake(conn *websocket.Conn) (events.Handshake, Claims, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return events.Handshake{}, Claims{}, err
	}

	var hs events.Handshake
	if err := json.Unmarshal(data, &hs); err != nil {
		return events.Handshake{}, Claims{}, err
	}
	claims, err := s.validator.Validate(hs.Token)
	return hs, claims, err
}

// sessionIDFromHandshake derives the session identifier from the
// client's declared version, matching the reference gateway
// (`session_id = f"session_{handshake.client_version}"`).
func sessionIDFromHandshake(hs events.Handshake) string {
	return "session_" + hs.ClientVersion
}

// streamLoop relays client frames until disconnect: binary frames go to
// audio.raw.{session}, text frames are parsed as control envelopes: an
// end frame publishes call.ended, heartbeat and mute frames are accepted
// and ignored.
func (s *Server) streamLoop(session *Session) {
	defer func() {
		// On any socket error or close, publish call.ended if the client
		// never sent an explicit end frame, so Persistence/Post-Call
		// still finalize abruptly-disconnected sessions.
		s.publishCallEnded(session, "disconnect")
		s.registry.Remove(session.ID)
		session.Close()
		s.log.Info("gateway: session closed", "session_id", session.ID)
	}()

	audioSubject := events.Sub.AudioRaw(session.ID)

	for {
		msgType, data, err := session.conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := s.bus.Publish(audioSubject, data); err != nil {
				s.log.Warn("gateway: audio publish failed", "session_id", session.ID, "error", err)
			}
		case websocket.TextMessage:
			s.handleControl(session, data)
		}
	}
}

// publishCallEnded publishes call.ended at most once per session,
// whether triggered by an explicit end control frame or by the
// streamLoop defer observing a socket close/error.
func (s *Server) publishCallEnded(session *Session, reason string) {
	session.endedOnce.Do(func() {
		payload := events.CallEnded{SessionID: session.ID, Reason: reason, Timestamp: time.Now().UTC()}
		raw, err := json.Marshal(payload)
		if err != nil {
			s.log.Warn("gateway: marshal call.ended failed", "session_id", session.ID, "error", err)
			return
		}
		if err := s.bus.Publish(events.Sub.CallEnded(), raw); err != nil {
			s.log.Warn("gateway: call.ended publish failed", "session_id", session.ID, "error", err)
		}
	})
}

func (s *Server) handleControl(session *Session, data []byte) {
	var ctrl events.ControlEnvelope
	if err := json.Unmarshal(data, &ctrl); err != nil {
		return
	}
	switch ctrl.Type {
	case events.EventHeartbeat:
		// Keep-alive only; nothing to do. The stream loop sets no read
		// deadline, so there is none to reset.
	case events.EventEnd:
		s.publishCallEnded(session, ctrl.Reason)
	case events.EventMute:
		// Forwarded to Speech via ui.commands is unnecessary; mute is
		// handled client-side by withholding audio frames. Recognized
		// here only to avoid "unknown control frame" log noise.
	}
}
