package rooms

import (
	"github.com/mcdev12/typeracer/go/internal/models"
)

// CreateRoomRequest represents a request to create a new room
type CreateRoomRequest struct {
	RoomID     string               `json:"room_id"`
	MaxPlayers int                  `json:"max_players"`
	Members    []models.Participant `json:"members"`
	Settings   models.RoomSettings  `json:"settings"`
}

// LeaveOutcome reports what happened to the room after a member left.
type LeaveOutcome struct {
	// Room is the updated room, nil when Emptied is true.
	Room *models.Room `json:"room,omitempty"`
	// Emptied is true when the last member left and deletion has been
	// scheduled behind the grace window.
	Emptied bool `json:"emptied"`
}
