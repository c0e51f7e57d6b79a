package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Lalka12235/TuneWave-sub000/internal/room"
)

// requireQueueEditor checks the requester may mutate the room's queue.
// Queue mutations follow the playback permission model: owner or moderator.
func (s *Server) requireQueueEditor(w http.ResponseWriter, r *http.Request, roomID, userID string) bool {
	role, err := s.store.GetRole(r.Context(), roomID, userID)
	if errors.Is(err, room.ErrMemberNotFound) {
		writeDomainError(w, room.ErrPermissionDenied)
		return false
	}
	if err != nil {
		writeDomainError(w, err)
		return false
	}
	if !role.CanControlPlayback() {
		writeDomainError(w, room.ErrPermissionDenied)
		return false
	}
	return true
}

// GET /rooms/{id}/queue
func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
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

	entries, err := s.queue.List(ctx, roomID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []room.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"roomId": roomID,
		"queue":  entries,
	})
}

// POST /rooms/{id}/queue
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	roomID := chi.URLParam(r, "id")
	if !s.requireQueueEditor(w, r, roomID, userID) {
		return
	}

	var body struct {
		TrackID string `json:"trackId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TrackID == "" {
		writeError(w, http.StatusBadRequest, "trackId is required")
		return
	}

	entry, err := s.queue.Enqueue(ctx, roomID, body.TrackID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// DELETE /rooms/{id}/queue/{entryId}
func (s *Server) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	roomID := chi.URLParam(r, "id")
	entryID := chi.URLParam(r, "entryId")
	if !s.requireQueueEditor(w, r, roomID, userID) {
		return
	}

	if err := s.queue.Remove(ctx, roomID, entryID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PATCH /rooms/{id}/queue/{entryId}
func (s *Server) handleMoveEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	roomID := chi.URLParam(r, "id")
	entryID := chi.URLParam(r, "entryId")
	if !s.requireQueueEditor(w, r, roomID, userID) {
		return
	}

	var body struct {
		NewPosition *int `json:"newPosition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.NewPosition == nil {
		writeError(w, http.StatusBadRequest, "newPosition is required")
		return
	}

	if err := s.queue.Move(ctx, roomID, entryID, *body.NewPosition); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entryId":     entryID,
		"newPosition": *body.NewPosition,
	})
}
