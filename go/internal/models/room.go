package models

import "time"

// RoomSettings carries the race parameters a room was created with.
// Matchmade rooms copy them from the matched preference.
type RoomSettings struct {
	Language         string `json:"language"`
	MaxPassageLength int    `json:"max_passage_length"`
}

// Room represents a race session shared by up to MaxPlayers participants.
type Room struct {
	ID         string        `json:"id"`
	MaxPlayers int           `json:"max_players"`
	Members    []Participant `json:"members"`
	Settings   RoomSettings  `json:"settings"`
	CreatedAt  time.Time     `json:"created_at"`
}

// HasMember reports whether the participant is currently a member.
func (r *Room) HasMember(participantID string) bool {
	for _, m := range r.Members {
		if m.ID == participantID {
			return true
		}
	}
	return false
}

// IsFull reports whether the room has reached capacity.
func (r *Room) IsFull() bool {
	return len(r.Members) >= r.MaxPlayers
}
