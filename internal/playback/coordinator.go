// Package playback coordinates a room's player: host election, command
// dispatch to the host's provider session, and state reconciliation.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/Lalka12235/TuneWave-sub000/internal/provider"
	"github.com/Lalka12235/TuneWave-sub000/internal/realtime"
	"github.com/Lalka12235/TuneWave-sub000/internal/room"
)

// Action is a player command verb.
type Action string

const (
	ActionPlay         Action = "play"
	ActionPause        Action = "pause"
	ActionSkipNext     Action = "skip_next"
	ActionSkipPrevious Action = "skip_previous"
)

// CommandArgs carry the optional play parameters.
type CommandArgs struct {
	TrackURI   string
	PositionMS int
}

// PlayerState is the uniform snapshot returned by reads and carried by
// player_state_changed events, whatever triggered the change.
type PlayerState struct {
	RoomID              string      `json:"roomId"`
	IsPlaying           bool        `json:"isPlaying"`
	CurrentQueueEntryID *string     `json:"currentQueueEntryId,omitempty"`
	CurrentTrack        *room.Track `json:"currentTrack,omitempty"`
	ProgressMS          int         `json:"progressMs"`
	DurationMS          int         `json:"durationMs"`
	PlaybackHostID      *string     `json:"playbackHostId,omitempty"`
	ActiveDeviceID      *string     `json:"activeDeviceId,omitempty"`
}

// Notifier is the push side of playback changes; satisfied by *realtime.Hub.
type Notifier interface {
	BroadcastToRoom(ctx context.Context, roomID string, ev realtime.Event) error
}

// Coordinator owns all room playback-state transitions. Every mutation runs
// under the room's lock so the reconciliation sweep and user commands never
// interleave.
type Coordinator struct {
	store    room.Store
	locks    *room.Locker
	notify   Notifier
	sessions provider.SessionFactory

	// Provider reads are stamped with a monotonic sequence before they are
	// issued; a stale read arriving after a newer one is discarded.
	seq     atomic.Uint64
	applied map[string]uint64
	seqMu   sync.Mutex
}

func NewCoordinator(store room.Store, locks *room.Locker, notify Notifier, sessions provider.SessionFactory) *Coordinator {
	return &Coordinator{
		store:    store,
		locks:    locks,
		notify:   notify,
		sessions: sessions,
		applied:  make(map[string]uint64),
	}
}

// NextSeq stamps a provider read about to be issued.
func (c *Coordinator) NextSeq() uint64 {
	return c.seq.Add(1)
}

// AssignHost makes candidateID the room's playback host. The requester must
// be an owner or moderator; the candidate must be a member with valid
// provider credentials and at least one active device.
func (c *Coordinator) AssignHost(ctx context.Context, roomID, candidateID, requesterID string) (*room.Room, error) {
	if err := c.requireControl(ctx, roomID, requesterID); err != nil {
		return nil, err
	}
	if _, err := c.store.GetRole(ctx, roomID, candidateID); err != nil {
		return nil, err
	}

	creds, err := c.store.GetProviderCredentials(ctx, candidateID)
	if errors.Is(err, room.ErrUserNotFound) {
		return nil, room.ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	if !creds.Valid() {
		return nil, room.ErrProviderNotAuthorized
	}

	session := c.session(creds)
	deviceID, err := session.ListActiveDevices(ctx)
	if errors.Is(err, provider.ErrAuthExpired) {
		return nil, room.ErrProviderNotAuthorized
	}
	if err != nil {
		// Provider timeout or transport failure: leave previous state
		// untouched and surface the error.
		return nil, fmt.Errorf("%w: %v", room.ErrProviderCommand, err)
	}
	if deviceID == "" {
		return nil, room.ErrNoActiveDevice
	}

	unlock := c.locks.Lock(roomID)
	defer unlock()

	r, err := c.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	r.PlaybackHostID = &candidateID
	r.ActiveDeviceID = &deviceID
	r.IsPlaying = false
	r.CurrentQueueEntryID = nil
	r.CurrentPositionMS = 0
	if err := c.store.SavePlayback(ctx, r); err != nil {
		log.Printf("tunewave: assign host for room %s: %v", roomID, err)
		return nil, room.ErrServer
	}

	c.broadcast(ctx, roomID, realtime.Event{
		Type: realtime.EventHostChanged,
		Payload: map[string]any{
			"room_id":          roomID,
			"playback_host_id": candidateID,
			"active_device_id": deviceID,
			"is_playing":       false,
		},
	})
	return r, nil
}

// ClearHost resets every host-scoped field. Idempotent: a room without a
// host is left untouched.
func (c *Coordinator) ClearHost(ctx context.Context, roomID string) error {
	unlock := c.locks.Lock(roomID)
	defer unlock()
	return c.clearHostLocked(ctx, roomID)
}

func (c *Coordinator) clearHostLocked(ctx context.Context, roomID string) error {
	r, err := c.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !r.HasHost() {
		return nil
	}

	oldHost := *r.PlaybackHostID
	r.PlaybackHostID = nil
	r.ActiveDeviceID = nil
	r.IsPlaying = false
	r.CurrentQueueEntryID = nil
	r.CurrentPositionMS = 0
	if err := c.store.SavePlayback(ctx, r); err != nil {
		log.Printf("tunewave: clear host for room %s: %v", roomID, err)
		return room.ErrServer
	}

	c.broadcast(ctx, roomID, realtime.Event{
		Type: realtime.EventHostCleared,
		Payload: map[string]any{
			"room_id":              roomID,
			"old_playback_host_id": oldHost,
		},
	})
	return nil
}

// Command validates and dispatches a player command through the host's
// provider session, then re-reads the provider state and syncs it.
func (c *Coordinator) Command(ctx context.Context, roomID, requesterID string, action Action, args CommandArgs) error {
	if err := c.requireControl(ctx, roomID, requesterID); err != nil {
		return err
	}

	unlock := c.locks.Lock(roomID)
	defer unlock()

	r, err := c.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !r.HasHost() || r.ActiveDeviceID == nil || *r.ActiveDeviceID == "" {
		return room.ErrNoActiveHost
	}

	creds, err := c.store.GetProviderCredentials(ctx, *r.PlaybackHostID)
	if errors.Is(err, room.ErrUserNotFound) {
		// The host vanished; reset the room rather than leaving a dangling
		// device id behind.
		log.Printf("tunewave: host %s for room %s no longer exists, clearing", *r.PlaybackHostID, roomID)
		if cerr := c.clearHostLocked(ctx, roomID); cerr != nil {
			log.Printf("tunewave: clear vanished host for room %s: %v", roomID, cerr)
		}
		return room.ErrServer
	}
	if err != nil {
		return err
	}

	session := c.session(creds)
	deviceID := *r.ActiveDeviceID

	switch action {
	case ActionPlay:
		err = session.Play(ctx, deviceID, args.TrackURI, args.PositionMS)
	case ActionPause:
		err = session.Pause(ctx, deviceID)
	case ActionSkipNext:
		err = session.SkipNext(ctx, deviceID)
	case ActionSkipPrevious:
		err = session.SkipPrevious(ctx, deviceID)
	default:
		return fmt.Errorf("%w: unknown action %q", room.ErrServer, action)
	}
	if errors.Is(err, provider.ErrAuthExpired) {
		return room.ErrProviderNotAuthorized
	}
	if err != nil {
		return fmt.Errorf("%w: %v", room.ErrProviderCommand, err)
	}

	seq := c.NextSeq()
	state, err := session.GetPlaybackState(ctx)
	if errors.Is(err, provider.ErrAuthExpired) {
		return room.ErrProviderNotAuthorized
	}
	if err != nil {
		return fmt.Errorf("%w: %v", room.ErrProviderCommand, err)
	}

	return c.syncStateLocked(ctx, r, seq, state)
}

// SyncState applies a provider read to the room under the room lock. Stale
// reads (sequence at or below the last applied one) are discarded, not
// errors.
func (c *Coordinator) SyncState(ctx context.Context, roomID string, seq uint64, state *provider.PlaybackState) error {
	unlock := c.locks.Lock(roomID)
	defer unlock()

	r, err := c.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	return c.syncStateLocked(ctx, r, seq, state)
}

func (c *Coordinator) syncStateLocked(ctx context.Context, r *room.Room, seq uint64, state *provider.PlaybackState) error {
	c.seqMu.Lock()
	if seq <= c.applied[r.ID] {
		c.seqMu.Unlock()
		return nil
	}
	c.applied[r.ID] = seq
	c.seqMu.Unlock()

	var (
		entryID *string
		track   *room.Track
	)
	if state.CurrentTrackExternalID != "" {
		entries, err := c.store.GetQueueEntries(ctx, r.ID)
		if err != nil {
			return err
		}
		for i := range entries {
			if entries[i].Track != nil && entries[i].Track.ExternalID == state.CurrentTrackExternalID {
				entryID = &entries[i].ID
				track = entries[i].Track
				break
			}
		}
	}

	r.CurrentQueueEntryID = entryID
	r.CurrentPositionMS = state.ProgressMS
	r.IsPlaying = state.IsPlaying
	if err := c.store.SavePlayback(ctx, r); err != nil {
		return fmt.Errorf("persist playback state for room %s: %w", r.ID, err)
	}

	payload := map[string]any{
		"room_id":                r.ID,
		"is_playing":             state.IsPlaying,
		"current_queue_entry_id": entryID,
		"current_track":          track,
		"progress_ms":            state.ProgressMS,
		"duration_ms":            state.DurationMS,
	}
	c.broadcast(ctx, r.ID, realtime.Event{
		Type:    realtime.EventPlayerState,
		Payload: payload,
	})
	return nil
}

// PlayerState returns the room's current snapshot. A room without a host
// yields a zeroed snapshot, not an error; only command attempts fail.
func (c *Coordinator) PlayerState(ctx context.Context, roomID string) (*PlayerState, error) {
	r, err := c.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	state := &PlayerState{RoomID: roomID}
	if !r.HasHost() {
		return state, nil
	}

	state.IsPlaying = r.IsPlaying
	state.ProgressMS = r.CurrentPositionMS
	state.PlaybackHostID = r.PlaybackHostID
	state.ActiveDeviceID = r.ActiveDeviceID
	state.CurrentQueueEntryID = r.CurrentQueueEntryID

	if r.CurrentQueueEntryID != nil {
		entry, err := c.store.GetQueueEntry(ctx, *r.CurrentQueueEntryID)
		if err == nil && entry.Track != nil {
			state.CurrentTrack = entry.Track
			state.DurationMS = entry.Track.DurationMS
		}
	}
	return state, nil
}

func (c *Coordinator) requireControl(ctx context.Context, roomID, userID string) error {
	role, err := c.store.GetRole(ctx, roomID, userID)
	if errors.Is(err, room.ErrMemberNotFound) {
		return room.ErrPermissionDenied
	}
	if err != nil {
		return err
	}
	if !role.CanControlPlayback() {
		return room.ErrPermissionDenied
	}
	return nil
}

func (c *Coordinator) session(creds *room.Credentials) provider.SessionClient {
	return c.sessions(provider.Credentials{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
	})
}

func (c *Coordinator) broadcast(ctx context.Context, roomID string, ev realtime.Event) {
	if err := c.notify.BroadcastToRoom(ctx, roomID, ev); err != nil {
		log.Printf("tunewave: broadcast %s for room %s: %v", ev.Type, roomID, err)
	}
}
