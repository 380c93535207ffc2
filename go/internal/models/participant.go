package models

// Participant identifies a racer. The identity is owned by the calling
// client; the backend references it but never creates or mutates it.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// MatchPreference is the search criteria a participant queues with.
// Two participants pair only when their preferences are exactly equal.
type MatchPreference struct {
	Language         string `json:"language"`
	MaxPassageLength int    `json:"max_passage_length"`
}
