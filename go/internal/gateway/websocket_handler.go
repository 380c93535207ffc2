package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for race connections.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleRaceConnection handles WebSocket connections for a specific room.
func (h *WebSocketHandler) HandleRaceConnection(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}

	// Participant identity is client-owned; in production this would come
	// from a session token.
	participantID := r.URL.Query().Get("participant_id")
	if participantID == "" {
		http.Error(w, "participant_id is required", http.StatusBadRequest)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, participantID, roomID); err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID).
			Str("participant_id", participantID).
			Msg("failed to upgrade WebSocket connection")
		// Upgrade already wrote the HTTP error response.
		return
	}
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	total, rooms := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]int{
		"total_connections": total,
		"active_rooms":      rooms,
	})
}

// RegisterRoutes registers WebSocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/race", h.HandleRaceConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
