package server

import (
	"context"
	"sync"

	"github.com/Lalka12235/TuneWave-sub000/internal/provider"
)

// fakeSession is a happy-path provider session with one active device.
type fakeSession struct {
	mu    sync.Mutex
	state *provider.PlaybackState
}

func (s *fakeSession) ListActiveDevices(context.Context) (string, error) { return "device-1", nil }
func (s *fakeSession) Play(context.Context, string, string, int) error   { return nil }
func (s *fakeSession) Pause(context.Context, string) error               { return nil }
func (s *fakeSession) SkipNext(context.Context, string) error            { return nil }
func (s *fakeSession) SkipPrevious(context.Context, string) error        { return nil }

func (s *fakeSession) GetPlaybackState(context.Context) (*provider.PlaybackState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return &provider.PlaybackState{}, nil
	}
	cp := *s.state
	return &cp, nil
}

func (s *fakeSession) GetTrack(_ context.Context, externalID string) (*provider.TrackDetails, error) {
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
