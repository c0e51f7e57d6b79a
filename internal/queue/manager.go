// Package queue owns the ordered per-room track queue. Order values for a
// room always form a contiguous zero-based sequence; every mutation
// re-normalizes before returning.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/Lalka12235/TuneWave-sub000/internal/provider"
	"github.com/Lalka12235/TuneWave-sub000/internal/realtime"
	"github.com/Lalka12235/TuneWave-sub000/internal/room"
)

// Notifier is the push side of queue mutations; satisfied by *realtime.Hub.
type Notifier interface {
	BroadcastToRoom(ctx context.Context, roomID string, ev realtime.Event) error
}

type Manager struct {
	store    room.Store
	locks    *room.Locker
	notify   Notifier
	sessions provider.SessionFactory
}

func NewManager(store room.Store, locks *room.Locker, notify Notifier, sessions provider.SessionFactory) *Manager {
	return &Manager{
		store:    store,
		locks:    locks,
		notify:   notify,
		sessions: sessions,
	}
}

// List returns the room's queue in playback order.
func (m *Manager) List(ctx context.Context, roomID string) ([]room.QueueEntry, error) {
	if _, err := m.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return m.store.GetQueueEntries(ctx, roomID)
}

// Enqueue appends a track to the room's queue. The track is resolved through
// the read-through cache: on first reference its metadata is fetched from
// the provider using the adding member's credentials.
func (m *Manager) Enqueue(ctx context.Context, roomID, externalTrackID, addedBy string) (*room.QueueEntry, error) {
	if _, err := m.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	track, err := m.resolveTrack(ctx, externalTrackID, addedBy)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(roomID)
	defer unlock()

	entries, err := m.store.GetQueueEntries(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.TrackID == track.ID {
			return nil, room.ErrDuplicateTrack
		}
	}

	entry := &room.QueueEntry{
		RoomID:       roomID,
		TrackID:      track.ID,
		OrderInQueue: len(entries),
		AddedBy:      addedBy,
	}
	if err := m.store.InsertQueueEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert queue entry: %w", err)
	}
	entry.Track = track

	m.broadcastQueue(ctx, roomID, realtime.EventQueueAdd, map[string]any{
		"entry_id": entry.ID,
		"track_id": track.ID,
	})
	return entry, nil
}

// Remove deletes an entry from the room's queue and re-normalizes ordering.
func (m *Manager) Remove(ctx context.Context, roomID, entryID string) error {
	unlock := m.locks.Lock(roomID)
	defer unlock()

	entries, err := m.store.GetQueueEntries(ctx, roomID)
	if err != nil {
		return err
	}
	remaining := make([]string, 0, len(entries))
	found := false
	for _, e := range entries {
		if e.ID == entryID {
			found = true
			continue
		}
		remaining = append(remaining, e.ID)
	}
	if !found {
		return room.ErrEntryNotFound
	}

	if err := m.store.ReorderQueueEntries(ctx, roomID, remaining); err != nil {
		return err
	}

	m.broadcastQueue(ctx, roomID, realtime.EventQueueRemove, map[string]any{
		"entry_id": entryID,
	})
	return nil
}

// Move reinserts an entry at newPosition and renumbers all affected entries
// in one pass.
func (m *Manager) Move(ctx context.Context, roomID, entryID string, newPosition int) error {
	unlock := m.locks.Lock(roomID)
	defer unlock()

	entries, err := m.store.GetQueueEntries(ctx, roomID)
	if err != nil {
		return err
	}
	if newPosition < 0 || newPosition >= len(entries) {
		return room.ErrInvalidPosition
	}

	from := -1
	for i, e := range entries {
		if e.ID == entryID {
			from = i
			break
		}
	}
	if from == -1 {
		return room.ErrEntryNotFound
	}
	if from == newPosition {
		return nil
	}

	moved := entries[from]
	rest := append(append([]room.QueueEntry{}, entries[:from]...), entries[from+1:]...)
	reordered := append(append(append([]room.QueueEntry{}, rest[:newPosition]...), moved), rest[newPosition:]...)

	ids := make([]string, len(reordered))
	for i := range reordered {
		ids[i] = reordered[i].ID
	}
	if err := m.store.ReorderQueueEntries(ctx, roomID, ids); err != nil {
		return err
	}

	m.broadcastQueue(ctx, roomID, realtime.EventQueueMove, map[string]any{
		"entry_id": entryID,
		"from":     from,
		"to":       newPosition,
	})
	return nil
}

// DequeueHeadLocked removes and returns the entry with the lowest order, or
// nil when the queue is empty. The caller must hold the room's lock; the
// reconciliation sweep is the only legitimate caller — manual skips change
// the playing track without consuming a queue slot.
func (m *Manager) DequeueHeadLocked(ctx context.Context, roomID string) (*room.QueueEntry, error) {
	entries, err := m.store.GetQueueEntries(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	head := entries[0]
	rest := make([]string, 0, len(entries)-1)
	for _, e := range entries[1:] {
		rest = append(rest, e.ID)
	}
	if err := m.store.ReorderQueueEntries(ctx, roomID, rest); err != nil {
		return nil, err
	}

	m.broadcastQueue(ctx, roomID, realtime.EventQueueRemove, map[string]any{
		"entry_id": head.ID,
	})
	return &head, nil
}

func (m *Manager) resolveTrack(ctx context.Context, externalID, userID string) (*room.Track, error) {
	track, err := m.store.GetTrackByExternalID(ctx, externalID)
	if err == nil {
		return track, nil
	}
	if !errors.Is(err, room.ErrTrackNotFound) {
		return nil, err
	}

	creds, err := m.store.GetProviderCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !creds.Valid() {
		return nil, room.ErrProviderNotAuthorized
	}

	session := m.sessions(provider.Credentials{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
	})
	details, err := session.GetTrack(ctx, externalID)
	if errors.Is(err, provider.ErrAuthExpired) {
		return nil, room.ErrProviderNotAuthorized
	}
	if err != nil {
		return nil, fmt.Errorf("fetch track %s: %w", externalID, err)
	}

	track = &room.Track{
		ExternalID: details.ExternalID,
		Title:      details.Title,
		Artists:    details.Artists,
		DurationMS: details.DurationMS,
		IsPlayable: details.IsPlayable,
		URI:        details.URI,
	}
	if err := m.store.InsertTrack(ctx, track); err != nil {
		return nil, fmt.Errorf("cache track %s: %w", externalID, err)
	}
	return track, nil
}

// broadcastQueue attaches the room id and the full ordered snapshot so
// clients can re-render without a follow-up read.
func (m *Manager) broadcastQueue(ctx context.Context, roomID, eventType string, fields map[string]any) {
	entries, err := m.store.GetQueueEntries(ctx, roomID)
	if err != nil {
		log.Printf("tunewave: queue snapshot for %s: %v", roomID, err)
		entries = nil
	}
	payload := map[string]any{
		"room_id": roomID,
		"queue":   entries,
	}
	for k, v := range fields {
		payload[k] = v
	}
	if err := m.notify.BroadcastToRoom(ctx, roomID, realtime.Event{
		Type:    eventType,
		Payload: payload,
	}); err != nil {
		log.Printf("tunewave: broadcast %s for %s: %v", eventType, roomID, err)
	}
}
