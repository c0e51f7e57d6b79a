package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Lalka12235/TuneWave-sub000/internal/playback"
	"github.com/Lalka12235/TuneWave-sub000/internal/room"
)

// handleAssignHost makes a member the room's playback host.
// POST /rooms/{id}/playback/host
func (s *Server) handleAssignHost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	roomID := chi.URLParam(r, "id")

	var body struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	updated, err := s.coord.AssignHost(ctx, roomID, body.UserID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleClearHost resets the room's playback host and player state.
// DELETE /rooms/{id}/playback/host
func (s *Server) handleClearHost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	roomID := chi.URLParam(r, "id")

	role, err := s.store.GetRole(ctx, roomID, userID)
	if errors.Is(err, room.ErrMemberNotFound) {
		writeDomainError(w, room.ErrPermissionDenied)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !role.CanControlPlayback() {
		writeDomainError(w, room.ErrPermissionDenied)
		return
	}

	if err := s.coord.ClearHost(ctx, roomID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var actions = map[string]playback.Action{
	"play":     playback.ActionPlay,
	"pause":    playback.ActionPause,
	"next":     playback.ActionSkipNext,
	"previous": playback.ActionSkipPrevious,
}

// handleCommand dispatches a player command through the host's session.
// POST /rooms/{id}/playback/{action}
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	roomID := chi.URLParam(r, "id")

	action, ok := actions[chi.URLParam(r, "action")]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown player action")
		return
	}

	var args playback.CommandArgs
	if action == playback.ActionPlay && r.Body != nil {
		var body struct {
			TrackURI   string `json:"trackUri"`
			PositionMS int    `json:"positionMs"`
		}
		// An empty body means "resume".
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			args.TrackURI = body.TrackURI
			args.PositionMS = body.PositionMS
		}
	}

	if err := s.coord.Command(ctx, roomID, userID, action, args); err != nil {
		writeDomainError(w, err)
		return
	}

	state, err := s.coord.PlayerState(ctx, roomID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handlePlayerState returns the room's player snapshot; rooms without a
// host yield a zeroed snapshot.
// GET /rooms/{id}/playback
func (s *Server) handlePlayerState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	roomID := chi.URLParam(r, "id")

	if _, err := s.store.GetRole(ctx, roomID, userID); err != nil {
		writeDomainError(w, err)
		return
	}

	state, err := s.coord.PlayerState(ctx, roomID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
