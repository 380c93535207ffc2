package models

import (
	"time"

	"github.com/google/uuid"
)

// RaceResult is the persisted outcome of a finished race. At most one
// result row exists per race of a room, keyed by the race sequence number;
// the first recorded completion of each race wins.
type RaceResult struct {
	ID             uuid.UUID `json:"id"`
	RoomID         string    `json:"room_id"`
	RaceSeq        int       `json:"race_seq"`
	WinnerID       string    `json:"winner_id"`
	SpeedWPM       int       `json:"speed_wpm"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	FinishedAt     time.Time `json:"finished_at"`
}
