// Package events defines the wire envelopes exchanged over the bus and
// over client WebSocket connections, per spec §6.
package events

import "time"

// EventType enumerates the control-envelope `type` discriminator.
type EventType string

const (
	EventHandshake     EventType = "handshake"
	EventHandshakeAck  EventType = "handshake_ack"
	EventHeartbeat     EventType = "heartbeat"
	EventMute          EventType = "mute"
	EventEnd           EventType = "end"
	EventError         EventType = "error"
	EventOverlayTrig   EventType = "overlay_trigger"
	EventDataPersisted EventType = "data_persisted"
)

// AudioConfig negotiates the audio format for a session. Defaults match
// the spec's 16 kHz / mono / pcm_s16le / 4096-byte-chunk baseline.
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Encoding   string `json:"encoding"`
	ChunkSize  int    `json:"chunk_size"`
}

// DefaultAudioConfig returns the spec's baseline audio negotiation.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{SampleRate: 16000, Channels: 1, Encoding: "pcm_s16le", ChunkSize: 4096}
}

// Handshake is the first client->server control frame.
type Handshake struct {
	Type          EventType   `json:"type"`
	Token         string      `json:"token"`
	ClientVersion string      `json:"client_version"`
	AudioConfig   AudioConfig `json:"audio_config"`
}

// HandshakeAck is the server's reply to a successful Handshake.
type HandshakeAck struct {
	Type           EventType `json:"type"`
	SessionID      string    `json:"session_id"`
	ReconnectToken string    `json:"reconnect_token,omitempty"`
}

// ControlEnvelope is the generic shape used to dispatch subsequent
// client->server text frames (heartbeat, mute, end).
type ControlEnvelope struct {
	Type   EventType `json:"type"`
	Reason string    `json:"reason,omitempty"`
}

// ErrorFrame is sent to the client on handshake rejection or fatal error.
type ErrorFrame struct {
	Type    EventType `json:"type"`
	Code    int       `json:"code"`
	Message string    `json:"message"`
}

// OverlayContent is the UI-rendered payload of a hint trigger.
type OverlayContent struct {
	Title       string   `json:"title"`
	Message     string   `json:"message"`
	ActionItems []string `json:"action_items,omitempty"`
	Sentiment   string   `json:"sentiment,omitempty"`
	ColorHex    string   `json:"color_hex"`
}

// OverlayTrigger instructs the client to render a prompt.
type OverlayTrigger struct {
	Type              EventType      `json:"type"`
	Content           OverlayContent `json:"content"`
	DisplayDurationMS int            `json:"display_duration_ms"`
}

// NewOverlayTrigger builds a ready-to-publish OverlayTrigger.
func NewOverlayTrigger(content OverlayContent) OverlayTrigger {
	return OverlayTrigger{Type: EventOverlayTrig, Content: content, DisplayDurationMS: 5000}
}

// DataPersisted confirms that a flush committed a session's buffered
// transcript segments to durable storage. The persistence worker sends
// one per session per successful flush, with ID set to the session ID;
// segments are not confirmed individually.
type DataPersisted struct {
	Type EventType `json:"type"`
	ID   string    `json:"id"`
}

// CallEnded is published when a session's call concludes.
type CallEnded struct {
	SessionID string    `json:"session_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptEvent carries one scrubbed utterance from Speech to
// Persistence.
type TranscriptEvent struct {
	SessionID   string  `json:"session_id"`
	Text        string  `json:"text"`
	StartOffset float64 `json:"start_offset"`
	EndOffset   float64 `json:"end_offset"`
	Speaker     string  `json:"speaker"`
}

// Speaker constants.
const (
	SpeakerAgent    = "agent"
	SpeakerCustomer = "customer"
)

// Subjects centralises bus subject construction so every service agrees
// on the routing scheme in spec §6.
type Subjects struct{}

func (Subjects) AudioRaw(sessionID string) string        { return "audio.raw." + sessionID }
func (Subjects) AudioRawWildcard() string                { return "audio.raw.>" }
func (Subjects) UICommands(sessionID string) string       { return "ui.commands." + sessionID }
func (Subjects) CallEnded() string                        { return "call.ended" }
func (Subjects) Audit(action string) string               { return "audit." + action }
func (Subjects) AuditWildcard() string                     { return "audit.>" }
func (Subjects) TranscriptEvent(sessionID string) string   { return "transcript_event." + sessionID }
func (Subjects) TranscriptEventWildcard() string           { return "transcript_event.>" }

// Sub is the package-level Subjects helper; stateless by design.
var Sub = Subjects{}
