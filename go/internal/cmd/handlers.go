package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typeracer/go/internal/models"
	"github.com/mcdev12/typeracer/go/internal/rooms"
)

// API handlers. Thin JSON shims over the app layer; all domain rules live
// below this file.
type apiHandlers struct {
	services *Services
}

func newAPIHandlers(services *Services) *apiHandlers {
	return &apiHandlers{services: services}
}

func (h *apiHandlers) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/matchmaking/search", h.handleSearch)
	mux.HandleFunc("POST /api/matchmaking/cancel", h.handleCancelSearch)
	mux.HandleFunc("POST /api/rooms", h.handleCreateRoom)
	mux.HandleFunc("GET /api/rooms/{id}", h.handleGetRoom)
	mux.HandleFunc("POST /api/rooms/{id}/join", h.handleJoinRoom)
	mux.HandleFunc("POST /api/rooms/{id}/leave", h.handleLeaveRoom)
	mux.HandleFunc("POST /api/rooms/{id}/passage", h.handleRotatePassage)
}

type searchRequest struct {
	Participant models.Participant     `json:"participant"`
	Preference  models.MatchPreference `json:"preference"`
}

type searchResponse struct {
	Matched  bool                `json:"matched"`
	Room     *models.Room        `json:"room,omitempty"`
	Opponent *models.Participant `json:"opponent,omitempty"`
	Passage  string              `json:"passage,omitempty"`
}

func (h *apiHandlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Participant.ID == "" {
		writeError(w, http.StatusBadRequest, "participant.id is required")
		return
	}

	result, err := h.services.Matchmaking.FindOpponent(r.Context(), req.Participant, req.Preference)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := searchResponse{
		Matched:  result.Matched,
		Room:     result.Room,
		Opponent: result.Opponent,
	}
	if result.Matched {
		resp.Passage = h.services.Passages.PassageFor(r.Context(), result.Room.ID, req.Preference)
	}
	writeJSON(w, http.StatusOK, resp)
}

type cancelSearchRequest struct {
	ParticipantID string `json:"participant_id"`
}

func (h *apiHandlers) handleCancelSearch(w http.ResponseWriter, r *http.Request) {
	var req cancelSearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ParticipantID == "" {
		writeError(w, http.StatusBadRequest, "participant_id is required")
		return
	}

	h.services.Matchmaking.CancelSearch(req.ParticipantID)
	w.WriteHeader(http.StatusNoContent)
}

type createRoomRequest struct {
	RoomID     string              `json:"room_id"`
	Creator    models.Participant  `json:"creator"`
	MaxPlayers int                 `json:"max_players"`
	Settings   models.RoomSettings `json:"settings"`
}

func (h *apiHandlers) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RoomID == "" {
		writeError(w, http.StatusBadRequest, "room_id is required")
		return
	}
	if req.Creator.ID == "" {
		writeError(w, http.StatusBadRequest, "creator.id is required")
		return
	}

	room, err := h.services.Rooms.CreateRoom(r.Context(), req.RoomID, req.Creator, req.MaxPlayers, req.Settings)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

type roomResponse struct {
	Room    *models.Room `json:"room"`
	Passage string       `json:"passage,omitempty"`
}

func (h *apiHandlers) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")

	room, err := h.services.Rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, roomResponse{
		Room:    room,
		Passage: h.services.Passages.PassageFor(r.Context(), room.ID, prefFromSettings(room.Settings)),
	})
}

type joinRoomRequest struct {
	Participant models.Participant `json:"participant"`
}

func (h *apiHandlers) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")

	var req joinRoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Participant.ID == "" {
		writeError(w, http.StatusBadRequest, "participant.id is required")
		return
	}

	room, err := h.services.Rooms.JoinRoom(r.Context(), roomID, req.Participant)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, roomResponse{
		Room:    room,
		Passage: h.services.Passages.PassageFor(r.Context(), room.ID, prefFromSettings(room.Settings)),
	})
}

type leaveRoomRequest struct {
	ParticipantID string `json:"participant_id"`
}

type leaveRoomResponse struct {
	Room    *models.Room `json:"room,omitempty"`
	Emptied bool         `json:"emptied"`
}

func (h *apiHandlers) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")

	var req leaveRoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ParticipantID == "" {
		writeError(w, http.StatusBadRequest, "participant_id is required")
		return
	}

	outcome, err := h.services.Rooms.LeaveRoom(r.Context(), roomID, req.ParticipantID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if outcome.Emptied {
		h.services.Passages.Forget(roomID)
	}

	writeJSON(w, http.StatusOK, leaveRoomResponse{
		Room:    outcome.Room,
		Emptied: outcome.Emptied,
	})
}

// handleRotatePassage swaps in fresh text for a room, used when a rematch
// should not replay the same passage.
func (h *apiHandlers) handleRotatePassage(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")

	room, err := h.services.Rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, roomResponse{
		Room:    room,
		Passage: h.services.Passages.Rotate(r.Context(), roomID, prefFromSettings(room.Settings)),
	})
}

func prefFromSettings(settings models.RoomSettings) models.MatchPreference {
	return models.MatchPreference{
		Language:         settings.Language,
		MaxPassageLength: settings.MaxPassageLength,
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps domain errors onto HTTP statuses. Storage faults
// surface as 503 so clients can distinguish "try again" from "your fault".
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, rooms.ErrMemberNotFound):
		writeError(w, http.StatusNotFound, "participant is not a room member")
	case errors.Is(err, rooms.ErrRoomFull):
		writeError(w, http.StatusConflict, "room is full")
	case errors.Is(err, rooms.ErrRoomExists):
		writeError(w, http.StatusConflict, "room already exists")
	case errors.Is(err, rooms.ErrAlreadyMember):
		writeError(w, http.StatusConflict, "participant is already a room member")
	case rooms.IsStorageError(err):
		log.Error().Err(err).Msg("storage error")
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		log.Error().Err(err).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
