package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Lalka12235/TuneWave-sub000/internal/realtime"
)

var upgrader = websocket.Upgrader{
	// Origin checks happen at the gateway.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWS upgrades the connection and binds it to the authenticated user
// and, when ?room_id= is present, to that room's broadcast set.
// GET /ws?room_id={id}
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		http.Error(w, "missing user context", http.StatusUnauthorized)
		return
	}
	roomID := r.URL.Query().Get("room_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("tunewave: ws upgrade: %v", err)
		return
	}

	client := realtime.NewClient(s.hub, conn, userID, roomID)
	if err := s.hub.RegisterConnection(r.Context(), client); err != nil {
		log.Printf("tunewave: register connection for user %s: %v", userID, err)
		conn.Close()
		return
	}

	welcome := map[string]any{
		"type": "welcome",
		"now":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.Marshal(welcome); err == nil {
		client.Send(b)
	}
}
