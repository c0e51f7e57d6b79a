package room

import "errors"

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrTrackNotFound = errors.New("track not found")

	// Permission errors: surfaced to the caller, never retried.
	ErrPermissionDenied = errors.New("permission denied")
	ErrMemberNotFound   = errors.New("user is not a member of this room")

	// State-precondition errors: the caller must fix the precondition and
	// re-request.
	ErrNoActiveHost          = errors.New("room has no active playback host")
	ErrProviderNotAuthorized = errors.New("user has not authorized the provider")
	ErrNoActiveDevice        = errors.New("user has no active provider device")
	ErrDuplicateTrack        = errors.New("track is already in the queue")
	ErrEntryNotFound         = errors.New("queue entry not found in this room")
	ErrInvalidPosition       = errors.New("position is outside the queue bounds")

	// Provider/transport errors: not retried on the command path.
	ErrProviderCommand = errors.New("provider command failed")

	// ErrServer is the collapse point for unexpected internal failures.
	ErrServer = errors.New("internal server error")
)
