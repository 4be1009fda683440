// Package events defines the lifecycle events a netsync peer publishes
// and the bus that delivers them to observers.
package events

import "time"

// EventType names a lifecycle event.
type EventType string

const (
	// Server side
	EventSessionOpened   EventType = "session_opened"
	EventSessionClosed   EventType = "session_closed"
	EventEntitySpawned   EventType = "entity_spawned"
	EventEntityDespawned EventType = "entity_despawned"
	EventKickRequested   EventType = "kick_requested"

	// Client side
	EventConnectionStateChanged EventType = "connection_state_changed"

	// Process
	EventShutdown EventType = "shutdown"
)

// Event is a single published event.
type Event struct {
	Type    EventType
	Source  string
	Time    time.Time
	Payload interface{}
}

// New creates an event stamped with the current time.
func New(t EventType, source string, payload interface{}) Event {
	return Event{Type: t, Source: source, Time: time.Now(), Payload: payload}
}

// CloseReason explains why a session ended.
type CloseReason string

const (
	ReasonBye  CloseReason = "bye"
	ReasonKick CloseReason = "kick"
	ReasonStop CloseReason = "shutdown"
)

// SessionPayload accompanies EventSessionOpened and EventSessionClosed.
type SessionPayload struct {
	NetID  uint32      `json:"net_id"`
	Addr   string      `json:"addr"`
	Reason CloseReason `json:"reason,omitempty"`
}

// EntityPayload accompanies EventEntitySpawned and EventEntityDespawned.
type EntityPayload struct {
	EntityID uint32  `json:"entity_id"`
	TypeID   uint32  `json:"type_id"`
	Owner    uint32  `json:"owner"`
	X        float32 `json:"x"`
	Y        float32 `json:"y"`
}

// ConnectionStatePayload accompanies EventConnectionStateChanged.
type ConnectionStatePayload struct {
	From  string `json:"from"`
	To    string `json:"to"`
	NetID uint32 `json:"net_id"`
}
