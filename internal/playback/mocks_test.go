package playback

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

func (n *recordingNotifier) LastOfType(eventType string) *realtime.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].Type == eventType {
			ev := n.events[i]
			return &ev
		}
	}
	return nil
}

type playCall struct {
	DeviceID   string
	TrackURI   string
	PositionMS int
}

// fakeSession scripts one host's provider session.
type fakeSession struct {
	mu sync.Mutex

	deviceID  string
	deviceErr error

	state    *provider.PlaybackState
	stateErr error
	// stateFn, when set, overrides state/stateErr per call.
	stateFn func() (*provider.PlaybackState, error)

	playErr  error
	pauseErr error
	skipErr  error

	playCalls  []playCall
	pauseCalls int
	nextCalls  int
	prevCalls  int
}

func (s *fakeSession) ListActiveDevices(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID, s.deviceErr
}

func (s *fakeSession) Play(_ context.Context, deviceID, trackURI string, positionMS int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playErr != nil {
		return s.playErr
	}
	s.playCalls = append(s.playCalls, playCall{deviceID, trackURI, positionMS})
	return nil
}

func (s *fakeSession) Pause(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseCalls++
	return s.pauseErr
}

func (s *fakeSession) SkipNext(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCalls++
	return s.skipErr
}

func (s *fakeSession) SkipPrevious(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prevCalls++
	return s.skipErr
}

func (s *fakeSession) GetPlaybackState(context.Context) (*provider.PlaybackState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateFn != nil {
		return s.stateFn()
	}
	if s.stateErr != nil {
		return nil, s.stateErr
	}
	if s.state == nil {
		return &provider.PlaybackState{}, nil
	}
	cp := *s.state
	return &cp, nil
}

func (s *fakeSession) GetTrack(_ context.Context, externalID string) (*provider.TrackDetails, error) {
	return &provider.TrackDetails{ExternalID: externalID, IsPlayable: true}, nil
}

func (s *fakeSession) PlayCalls() []playCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]playCall, len(s.playCalls))
	copy(out, s.playCalls)
	return out
}

func (s *fakeSession) PauseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauseCalls
}

func factoryFor(s *fakeSession) provider.SessionFactory {
	return func(provider.Credentials) provider.SessionClient { return s }
}
