// Package provider wraps the third-party streaming service a playback host
// controls: device listing, transport commands and playback-state reads.
package provider

import (
	"context"
	"errors"
)

// ErrAuthExpired signals that the host's provider session is no longer
// valid; the playback coordinator maps it to its own taxonomy.
var ErrAuthExpired = errors.New("provider authorization expired")

// PlaybackState is the provider's view of the host device.
type PlaybackState struct {
	ProgressMS             int
	DurationMS             int
	IsPlaying              bool
	CurrentTrackExternalID string
}

// TrackDetails is provider track metadata, fetched once and cached.
type TrackDetails struct {
	ExternalID string
	Title      string
	Artists    []string
	DurationMS int
	IsPlayable bool
	URI        string
}

// SessionClient issues commands against one host's provider session.
type SessionClient interface {
	// ListActiveDevices returns the id of an active device, or "" when the
	// host has none.
	ListActiveDevices(ctx context.Context) (string, error)
	// Play starts or resumes playback; trackURI may be empty to resume.
	Play(ctx context.Context, deviceID, trackURI string, positionMS int) error
	Pause(ctx context.Context, deviceID string) error
	SkipNext(ctx context.Context, deviceID string) error
	SkipPrevious(ctx context.Context, deviceID string) error
	GetPlaybackState(ctx context.Context) (*PlaybackState, error)
	GetTrack(ctx context.Context, externalID string) (*TrackDetails, error)
}

// Credentials are the host tokens a session is built from.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// SessionFactory builds a SessionClient for one host's credentials. The
// coordinator and scheduler create sessions per call so token refresh stays
// inside the provider package.
type SessionFactory func(creds Credentials) SessionClient
