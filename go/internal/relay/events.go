package relay

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire-protocol event names. Both peers emit and interpret the same set;
// the protocol is symmetric by construction.
const (
	EventJoin       = "on-join"
	EventReady      = "on-ready"
	EventTextUpdate = "on-text-update"
	EventWin        = "on-win"
	EventPlayAgain  = "on-play-again"
	EventRestart    = "on-restart"
	EventLeave      = "on-leave"

	// EventMatchFound is delivered on a participant's matchmaking channel,
	// not a room channel: it tells a waiting searcher which room it was
	// paired into.
	EventMatchFound = "on-match-found"
)

// Envelope is the message published on a room channel.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	RoomID    string          `json:"roomId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// JoinPayload announces a participant entering the room channel.
type JoinPayload struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
}

// ReadyPayload signals readiness to race.
type ReadyPayload struct {
	ParticipantID string `json:"participant_id"`
}

// TextUpdatePayload carries a full snapshot of the sender's current input.
// Snapshots, not diffs: out-of-order delivery can only show a stale
// display, never corrupt it.
type TextUpdatePayload struct {
	ParticipantID string `json:"participant_id"`
	Input         string `json:"input"`
}

// WinPayload announces a completed passage. RaceSeq counts the races run
// in the room, starting at 1, so each rematch's outcome is distinguishable
// from the last.
type WinPayload struct {
	ParticipantID  string  `json:"participant_id"`
	RaceSeq        int     `json:"race_seq"`
	SpeedWPM       int     `json:"speed_wpm"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// VotePayload is shared by the play-again and restart handshakes.
type VotePayload struct {
	ParticipantID string `json:"participant_id"`
}

// LeavePayload announces a participant leaving the room channel.
type LeavePayload struct {
	ParticipantID string `json:"participant_id"`
}

// MatchFoundPayload tells a waiting searcher it was paired. ParticipantID
// is the recipient, so a client can discard notifications replayed from a
// shared subscription.
type MatchFoundPayload struct {
	ParticipantID string `json:"participant_id"`
	RoomID        string `json:"room_id"`
	OpponentID    string `json:"opponent_id"`
	OpponentName  string `json:"opponent_name"`
}

// ParseEventPayload parses an envelope's payload into the struct for its
// event type.
func ParseEventPayload(env *Envelope) (interface{}, error) {
	switch env.EventType {
	case EventJoin:
		var payload JoinPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventReady:
		var payload ReadyPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTextUpdate:
		var payload TextUpdatePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventWin:
		var payload WinPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventPlayAgain, EventRestart:
		var payload VotePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventLeave:
		var payload LeavePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventMatchFound:
		var payload MatchFoundPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", env.EventType)
	}
}
