package room

import "context"

// Store is the persistence boundary for rooms, queues and cached tracks.
// Rooms and queue entries are owned by the database but mutated exclusively
// through the queue manager and playback coordinator so the ordering and
// host invariants hold.
type Store interface {
	GetRoom(ctx context.Context, roomID string) (*Room, error)
	// ListActiveRooms returns rooms with a playback host assigned and
	// is_playing set; the reconciliation sweep visits only these.
	ListActiveRooms(ctx context.Context) ([]Room, error)
	// SavePlayback persists the host-scoped playback fields of the room:
	// playback_host_id, active_device_id, is_playing,
	// current_queue_entry_id, current_position_ms.
	SavePlayback(ctx context.Context, r *Room) error

	GetQueueEntries(ctx context.Context, roomID string) ([]QueueEntry, error)
	GetQueueEntry(ctx context.Context, entryID string) (*QueueEntry, error)
	InsertQueueEntry(ctx context.Context, e *QueueEntry) error
	// ReorderQueueEntries atomically rewrites the room's queue to exactly
	// entryIDs in that order, deleting entries of the room not listed. Fails
	// with ErrEntryNotFound when an id does not belong to the room.
	ReorderQueueEntries(ctx context.Context, roomID string, entryIDs []string) error

	GetTrack(ctx context.Context, trackID string) (*Track, error)
	GetTrackByExternalID(ctx context.Context, externalID string) (*Track, error)
	InsertTrack(ctx context.Context, t *Track) error

	// GetRole returns ErrMemberNotFound when the user is not in the room.
	GetRole(ctx context.Context, roomID, userID string) (Role, error)
	// GetProviderCredentials returns ErrUserNotFound when the user does not
	// exist; tokens may be empty when the provider was never authorized.
	GetProviderCredentials(ctx context.Context, userID string) (*Credentials, error)
}
