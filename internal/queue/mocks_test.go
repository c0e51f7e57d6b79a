package queue

import (
	"context"
	"sync"

	"github.com/Lalka12235/TuneWave-sub000/internal/provider"
	"github.com/Lalka12235/TuneWave-sub000/internal/realtime"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (n *recordingNotifier) BroadcastToRoom(_ context.Context, _ string, ev realtime.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) Events() []realtime.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]realtime.Event, len(n.events))
	copy(out, n.events)
	return out
}

type fakeSession struct {
	mu         sync.Mutex
	track      *provider.TrackDetails
	trackErr   error
	trackCalls int
}

func (s *fakeSession) ListActiveDevices(context.Context) (string, error) { return "", nil }
func (s *fakeSession) Play(context.Context, string, string, int) error   { return nil }
func (s *fakeSession) Pause(context.Context, string) error               { return nil }
func (s *fakeSession) SkipNext(context.Context, string) error            { return nil }
func (s *fakeSession) SkipPrevious(context.Context, string) error        { return nil }
func (s *fakeSession) GetPlaybackState(context.Context) (*provider.PlaybackState, error) {
	return &provider.PlaybackState{}, nil
}

func (s *fakeSession) GetTrack(_ context.Context, externalID string) (*provider.TrackDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackCalls++
	if s.trackErr != nil {
		return nil, s.trackErr
	}
	if s.track != nil {
		return s.track, nil
	}
	return &provider.TrackDetails{
		ExternalID: externalID,
		Title:      "Track " + externalID,
		Artists:    []string{"Artist"},
		DurationMS: 180000,
		IsPlayable: true,
		URI:        "spotify:track:" + externalID,
	}, nil
}

func factoryFor(s *fakeSession) provider.SessionFactory {
	return func(provider.Credentials) provider.SessionClient { return s }
}
