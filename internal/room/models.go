package room

import (
	"time"
)

// Room is the shared listening room. Playback fields (host, device, current
// entry, position) are only meaningful while PlaybackHostID is set; clearing
// the host resets all of them together.
type Room struct {
	ID                  string    `json:"id"`
	OwnerID             string    `json:"ownerId"`
	Name                string    `json:"name"`
	MaxMembers          int       `json:"maxMembers"`
	IsPrivate           bool      `json:"isPrivate"`
	PasswordHash        string    `json:"-"`
	PlaybackHostID      *string   `json:"playbackHostId,omitempty"`
	ActiveDeviceID      *string   `json:"activeDeviceId,omitempty"`
	IsPlaying           bool      `json:"isPlaying"`
	CurrentQueueEntryID *string   `json:"currentQueueEntryId,omitempty"`
	CurrentPositionMS   int       `json:"currentPositionMs"`
	CreatedAt           time.Time `json:"createdAt"`
}

// HasHost reports whether the room currently has a playback host assigned.
func (r *Room) HasHost() bool {
	return r.PlaybackHostID != nil && *r.PlaybackHostID != ""
}

// QueueEntry ties a track into a room's queue. OrderInQueue values for one
// room form a contiguous zero-based sequence.
type QueueEntry struct {
	ID           string    `json:"id"`
	RoomID       string    `json:"roomId"`
	TrackID      string    `json:"trackId"`
	OrderInQueue int       `json:"orderInQueue"`
	AddedBy      string    `json:"addedBy"`
	AddedAt      time.Time `json:"addedAt"`

	Track *Track `json:"track,omitempty"`
}

// Track is immutable once cached; fetched from the provider on first
// reference and keyed by ExternalID afterwards.
type Track struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	Title      string    `json:"title"`
	Artists    []string  `json:"artists"`
	DurationMS int       `json:"durationMs"`
	IsPlayable bool      `json:"isPlayable"`
	URI        string    `json:"uri"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Role string

const (
	RoleOwner     Role = "OWNER"
	RoleModerator Role = "MODERATOR"
	RoleMember    Role = "MEMBER"
)

// CanControlPlayback reports whether the role may assign hosts and issue
// player commands.
func (r Role) CanControlPlayback() bool {
	return r == RoleOwner || r == RoleModerator
}

// Credentials are a member's provider tokens.
type Credentials struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

// Valid reports whether the member ever authorized the provider.
func (c *Credentials) Valid() bool {
	return c != nil && c.AccessToken != "" && c.RefreshToken != ""
}
