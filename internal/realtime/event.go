package realtime

import "encoding/json"

// Push message types delivered to room members.
const (
	EventHostChanged  = "playback_host_changed"
	EventHostCleared  = "playback_host_cleared"
	EventPlayerState  = "player_state_changed"
	EventQueueAdd     = "queue_add"
	EventQueueRemove  = "queue_remove"
	EventQueueMove    = "queue_move"
)

// Event is the tagged object a client receives. Payload always carries
// room_id plus the event-specific fields.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// envelope wraps an event with its routing scope for the cross-process bus.
// Every server process receives every envelope and delivers to the sockets
// it holds for the target user or room.
type envelope struct {
	Scope   string          `json:"scope"` // "user" | "room"
	UserID  string          `json:"userId,omitempty"`
	RoomID  string          `json:"roomId,omitempty"`
	Message json.RawMessage `json:"message"`
}

const (
	scopeUser = "user"
	scopeRoom = "room"
)
