package matchmaking

import (
	"github.com/mcdev12/typeracer/go/internal/models"
)

// Result is the outcome of a findOpponent call: either a room with an
// opponent, or still waiting.
type Result struct {
	Matched  bool                `json:"matched"`
	Room     *models.Room        `json:"room,omitempty"`
	Opponent *models.Participant `json:"opponent,omitempty"`
}
