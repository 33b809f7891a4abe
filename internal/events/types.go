// Package events defines event types and payloads for the aj8 event system.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Player lifecycle events
	EventPlayerLogin   EventType = "player_login"
	EventPlayerLogout  EventType = "player_logout"
	EventLoginRejected EventType = "login_rejected"
	EventPlayerKicked  EventType = "player_kicked"

	// Connection events
	EventSessionOpened     EventType = "session_opened"
	EventSessionClosed     EventType = "session_closed"
	EventProtocolViolation EventType = "protocol_violation"

	// World events
	EventTickOverrun  EventType = "tick_overrun"
	EventServerStatus EventType = "server_status"
	EventBroadcast    EventType = "broadcast"
	EventSystemUpdate EventType = "system_update"

	// System events
	EventHealthChanged EventType = "health_changed"
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
)

// WorldState is the lifecycle of the world tick loop.
type WorldState int

const (
	WorldStateStarting WorldState = iota
	WorldStateRunning
	WorldStateUpdating
	WorldStateStopping
	WorldStateStopped
)

// worldStateStrings maps WorldState values to their lowercase JSON string representation.
var worldStateStrings = map[WorldState]string{
	WorldStateStarting: "starting",
	WorldStateRunning:  "running",
	WorldStateUpdating: "updating",
	WorldStateStopping: "stopping",
	WorldStateStopped:  "stopped",
}

// String returns the string representation of WorldState.
func (s WorldState) String() string {
	if str, ok := worldStateStrings[s]; ok {
		return str
	}
	return "unknown"
}

// MarshalJSON serializes WorldState as a JSON string (e.g. "running").
func (s WorldState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Event represents a single event in the system.
type Event struct {
	Type      EventType
	Source    string
	Timestamp time.Time
	Payload   interface{}
}

// New creates an event stamped with the current time.
func New(eventType EventType, source string, payload interface{}) Event {
	return Event{
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// PlayerPayload describes a player entering or leaving the world.
type PlayerPayload struct {
	Username  string `json:"username"`
	Index     int    `json:"index"`
	Remote    string `json:"remote,omitempty"`
	Privilege int    `json:"privilege"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Height    int    `json:"height"`
}

// LoginRejectedPayload is emitted when credentials or capacity turn a login away.
type LoginRejectedPayload struct {
	Username string `json:"username"`
	Remote   string `json:"remote"`
	Status   string `json:"status"`
}

// SessionPayload describes a connection opening or closing.
type SessionPayload struct {
	SessionID string `json:"session_id"`
	Remote    string `json:"remote"`
	Username  string `json:"username,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// ProtocolViolationPayload is emitted when a client breaks the wire protocol.
type ProtocolViolationPayload struct {
	SessionID string `json:"session_id"`
	Remote    string `json:"remote"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

// TickOverrunPayload is emitted when a tick takes longer than its interval.
type TickOverrunPayload struct {
	Tick     uint64        `json:"tick"`
	Duration time.Duration `json:"duration"`
	Budget   time.Duration `json:"budget"`
	Players  int           `json:"players"`
}

// ServerStatusPayload is a periodic snapshot of the world.
type ServerStatusPayload struct {
	State     WorldState    `json:"state"`
	Tick      uint64        `json:"tick"`
	Players   int           `json:"players"`
	Capacity  int           `json:"capacity"`
	Sessions  int           `json:"sessions"`
	Uptime    time.Duration `json:"uptime"`
	TickTime  time.Duration `json:"tick_time"`
	Scheduled int           `json:"scheduled"`
}

// BroadcastPayload carries a message sent to every player.
type BroadcastPayload struct {
	Text string `json:"text"`
}

// SystemUpdatePayload announces a countdown to shutdown.
type SystemUpdatePayload struct {
	Ticks     int           `json:"ticks"`
	Remaining time.Duration `json:"remaining"`
}

// HealthChangedPayload is emitted when a health check changes state.
type HealthChangedPayload struct {
	Check   string `json:"check"`
	Healthy bool   `json:"healthy"`
	Message string `json:"message"`
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string
	Key     string
	Value   interface{}
}
