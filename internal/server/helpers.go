package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/Lalka12235/TuneWave-sub000/internal/room"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("tunewave: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Anything not
// in the taxonomy collapses to a logged 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrRoomNotFound),
		errors.Is(err, room.ErrEntryNotFound),
		errors.Is(err, room.ErrTrackNotFound),
		errors.Is(err, room.ErrUserNotFound),
		errors.Is(err, room.ErrMemberNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, room.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, room.ErrProviderNotAuthorized),
		errors.Is(err, room.ErrNoActiveDevice),
		errors.Is(err, room.ErrInvalidPosition):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, room.ErrNoActiveHost),
		errors.Is(err, room.ErrDuplicateTrack):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, room.ErrProviderCommand):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		log.Printf("tunewave: internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// requireUser extracts the authenticated user id or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return "", false
	}
	return userID, true
}
