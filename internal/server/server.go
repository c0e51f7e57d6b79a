package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Lalka12235/TuneWave-sub000/internal/playback"
	"github.com/Lalka12235/TuneWave-sub000/internal/queue"
	"github.com/Lalka12235/TuneWave-sub000/internal/realtime"
	"github.com/Lalka12235/TuneWave-sub000/internal/room"
)

// Server exposes the playback coordination surface. Identity arrives in the
// X-User-Id header, set by the gateway after authentication.
type Server struct {
	store room.Store
	coord *playback.Coordinator
	queue *queue.Manager
	hub   *realtime.Hub
}

func NewServer(store room.Store, coord *playback.Coordinator, qm *queue.Manager, hub *realtime.Hub) *Server {
	return &Server{
		store: store,
		coord: coord,
		queue: qm,
		hub:   hub,
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)

	r.Route("/rooms/{id}", func(r chi.Router) {
		r.Get("/playback", s.handlePlayerState)
		r.Post("/playback/host", s.handleAssignHost)
		r.Delete("/playback/host", s.handleClearHost)
		r.Post("/playback/{action}", s.handleCommand)

		r.Get("/queue", s.handleListQueue)
		r.Post("/queue", s.handleEnqueue)
		r.Delete("/queue/{entryId}", s.handleRemoveEntry)
		r.Patch("/queue/{entryId}", s.handleMoveEntry)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "tunewave",
	})
}
