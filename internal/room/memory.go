package room

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	entries map[string]*QueueEntry
	tracks  map[string]*Track
	roles   map[string]map[string]Role // roomID -> userID -> role
	creds   map[string]*Credentials
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:   make(map[string]*Room),
		entries: make(map[string]*QueueEntry),
		tracks:  make(map[string]*Track),
		roles:   make(map[string]map[string]Role),
		creds:   make(map[string]*Credentials),
	}
}

func (s *MemoryStore) PutRoom(r *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rooms[r.ID] = &cp
}

func (s *MemoryStore) PutRole(roomID, userID string, role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles[roomID] == nil {
		s.roles[roomID] = make(map[string]Role)
	}
	s.roles[roomID][userID] = role
}

func (s *MemoryStore) PutCredentials(c *Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.creds[c.UserID] = &cp
}

func (s *MemoryStore) RemoveCredentials(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, userID)
}

func (s *MemoryStore) GetRoom(_ context.Context, roomID string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListActiveRooms(_ context.Context) ([]Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Room
	for _, r := range s.rooms {
		if r.HasHost() && r.IsPlaying {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SavePlayback(_ context.Context, r *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rooms[r.ID]
	if !ok {
		return ErrRoomNotFound
	}
	cur.PlaybackHostID = r.PlaybackHostID
	cur.ActiveDeviceID = r.ActiveDeviceID
	cur.IsPlaying = r.IsPlaying
	cur.CurrentQueueEntryID = r.CurrentQueueEntryID
	cur.CurrentPositionMS = r.CurrentPositionMS
	return nil
}

func (s *MemoryStore) GetQueueEntries(_ context.Context, roomID string) ([]QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []QueueEntry
	for _, e := range s.entries {
		if e.RoomID == roomID {
			cp := *e
			if t, ok := s.tracks[e.TrackID]; ok {
				tc := *t
				cp.Track = &tc
			}
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderInQueue < out[j].OrderInQueue })
	return out, nil
}

func (s *MemoryStore) GetQueueEntry(_ context.Context, entryID string) (*QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *e
	if t, ok := s.tracks[e.TrackID]; ok {
		tc := *t
		cp.Track = &tc
	}
	return &cp, nil
}

func (s *MemoryStore) InsertQueueEntry(_ context.Context, e *QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.AddedAt.IsZero() {
		e.AddedAt = time.Now()
	}
	cp := *e
	cp.Track = nil
	s.entries[e.ID] = &cp
	return nil
}

func (s *MemoryStore) ReorderQueueEntries(_ context.Context, roomID string, entryIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate first so a bad id never applies a partial rewrite.
	for _, id := range entryIDs {
		e, ok := s.entries[id]
		if !ok || e.RoomID != roomID {
			return ErrEntryNotFound
		}
	}

	keep := make(map[string]bool, len(entryIDs))
	for i, id := range entryIDs {
		s.entries[id].OrderInQueue = i
		keep[id] = true
	}
	for id, e := range s.entries {
		if e.RoomID == roomID && !keep[id] {
			delete(s.entries, id)
		}
	}
	return nil
}

func (s *MemoryStore) GetTrack(_ context.Context, trackID string) (*Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[trackID]
	if !ok {
		return nil, ErrTrackNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) GetTrackByExternalID(_ context.Context, externalID string) (*Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		if t.ExternalID == externalID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrTrackNotFound
}

func (s *MemoryStore) InsertTrack(_ context.Context, t *Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tracks {
		if existing.ExternalID == t.ExternalID {
			*t = *existing
			return nil
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	cp := *t
	s.tracks[t.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRole(_ context.Context, roomID, userID string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roomID][userID]
	if !ok {
		return "", ErrMemberNotFound
	}
	return role, nil
}

func (s *MemoryStore) GetProviderCredentials(_ context.Context, userID string) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *c
	return &cp, nil
}
