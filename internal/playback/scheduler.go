package playback

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lalka12235/TuneWave-sub000/internal/provider"
	"github.com/Lalka12235/TuneWave-sub000/internal/room"
)

// HeadQueue is the slice of the queue manager the reconciliation sweep
// needs; satisfied by *queue.Manager.
type HeadQueue interface {
	DequeueHeadLocked(ctx context.Context, roomID string) (*room.QueueEntry, error)
}

// Scheduler periodically reconciles every active room with its host's live
// provider state, advancing the queue when the current track is about to
// end. It is the only writer that pops the queue head: manual skips change
// the playing track without consuming a queue slot.
type Scheduler struct {
	coord *Coordinator
	queue HeadQueue

	interval    time.Duration
	thresholdMS int
	parallelism int
}

func NewScheduler(coord *Coordinator, queue HeadQueue, interval time.Duration, thresholdMS, parallelism int) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if parallelism < 1 {
		parallelism = 1
	}
	return &Scheduler{
		coord:       coord,
		queue:       queue,
		interval:    interval,
		thresholdMS: thresholdMS,
		parallelism: parallelism,
	}
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one reconciliation tick over all active rooms with bounded
// parallelism. A single room's provider outage never aborts the sweep.
func (s *Scheduler) Sweep(ctx context.Context) {
	rooms, err := s.coord.store.ListActiveRooms(ctx)
	if err != nil {
		log.Printf("tunewave: list active rooms: %v", err)
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, r := range rooms {
		roomID := r.ID
		g.Go(func() error {
			s.reconcileRoom(ctx, roomID)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) reconcileRoom(ctx context.Context, roomID string) {
	c := s.coord

	unlock := c.locks.Lock(roomID)
	defer unlock()

	r, err := c.store.GetRoom(ctx, roomID)
	if err != nil {
		log.Printf("tunewave: reconcile room %s: %v", roomID, err)
		return
	}
	if !r.HasHost() || !r.IsPlaying {
		return
	}

	creds, err := c.store.GetProviderCredentials(ctx, *r.PlaybackHostID)
	if errors.Is(err, room.ErrUserNotFound) {
		log.Printf("tunewave: host for room %s no longer exists, clearing", roomID)
		if cerr := c.clearHostLocked(ctx, roomID); cerr != nil {
			log.Printf("tunewave: clear vanished host for room %s: %v", roomID, cerr)
		}
		return
	}
	if err != nil {
		log.Printf("tunewave: host credentials for room %s: %v", roomID, err)
		return
	}

	session := c.session(creds)
	seq := c.NextSeq()
	state, err := session.GetPlaybackState(ctx)
	if errors.Is(err, provider.ErrAuthExpired) {
		// Session is invalid for good; a retry will not help until the host
		// re-authorizes, so release the room.
		log.Printf("tunewave: host session for room %s expired, clearing", roomID)
		if cerr := c.clearHostLocked(ctx, roomID); cerr != nil {
			log.Printf("tunewave: clear expired host for room %s: %v", roomID, cerr)
		}
		return
	}
	if err != nil {
		log.Printf("tunewave: provider state for room %s: %v", roomID, err)
		s.degrade(ctx, r, session, seq)
		return
	}

	remaining := state.DurationMS - state.ProgressMS
	if remaining > s.thresholdMS {
		// Track is mid-flight; this tick is a no-op for the room.
		return
	}

	popped, err := s.queue.DequeueHeadLocked(ctx, roomID)
	if err != nil {
		log.Printf("tunewave: pop queue head for room %s: %v", roomID, err)
		return
	}
	if popped == nil {
		// Empty queue; nothing to advance.
		return
	}

	next, err := c.store.GetQueueEntries(ctx, roomID)
	if err != nil {
		log.Printf("tunewave: read queue for room %s: %v", roomID, err)
		return
	}
	if len(next) == 0 {
		// The queue is exhausted; let the provider play out the current
		// track and re-evaluate on the next tick.
		if err := c.syncStateLocked(ctx, r, seq, state); err != nil {
			log.Printf("tunewave: sync state for room %s: %v", roomID, err)
		}
		return
	}

	head := next[0]
	if head.Track == nil {
		log.Printf("tunewave: queue head %s for room %s has no track", head.ID, roomID)
		return
	}
	if err := session.Play(ctx, deref(r.ActiveDeviceID), head.Track.URI, 0); err != nil {
		if errors.Is(err, provider.ErrAuthExpired) {
			if cerr := c.clearHostLocked(ctx, roomID); cerr != nil {
				log.Printf("tunewave: clear expired host for room %s: %v", roomID, cerr)
			}
			return
		}
		log.Printf("tunewave: play next for room %s: %v", roomID, err)
		s.degrade(ctx, r, session, c.NextSeq())
		return
	}

	seq = c.NextSeq()
	state, err = session.GetPlaybackState(ctx)
	if err != nil {
		// The command went through; fall back to what we know was started.
		state = &provider.PlaybackState{
			IsPlaying:              true,
			ProgressMS:             0,
			DurationMS:             head.Track.DurationMS,
			CurrentTrackExternalID: head.Track.ExternalID,
		}
	}
	if err := c.syncStateLocked(ctx, r, seq, state); err != nil {
		log.Printf("tunewave: sync state for room %s: %v", roomID, err)
	}
}

// degrade pauses the provider best-effort and marks the room not playing,
// keeping the host assigned so the next tick can retry.
func (s *Scheduler) degrade(ctx context.Context, r *room.Room, session provider.SessionClient, seq uint64) {
	if r.ActiveDeviceID != nil {
		if err := session.Pause(ctx, *r.ActiveDeviceID); err != nil {
			log.Printf("tunewave: pause degraded room %s: %v", r.ID, err)
		}
	}

	state := &provider.PlaybackState{
		IsPlaying:  false,
		ProgressMS: r.CurrentPositionMS,
	}
	if r.CurrentQueueEntryID != nil {
		if entry, err := s.coord.store.GetQueueEntry(ctx, *r.CurrentQueueEntryID); err == nil && entry.Track != nil {
			state.DurationMS = entry.Track.DurationMS
			state.CurrentTrackExternalID = entry.Track.ExternalID
		}
	}
	if err := s.coord.syncStateLocked(ctx, r, seq, state); err != nil {
		log.Printf("tunewave: degrade room %s: %v", r.ID, err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
