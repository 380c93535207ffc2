package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "room.abc-123", SubjectFor("abc-123"))
}

func TestMatchSubjectFor(t *testing.T) {
	assert.Equal(t, "matchmaking.p1", MatchSubjectFor("p1"))
}

func TestParseEventPayload(t *testing.T) {
	tests := []struct {
		eventType string
		payload   any
		want      any
	}{
		{EventJoin, JoinPayload{ParticipantID: "p1", DisplayName: "P1"}, JoinPayload{ParticipantID: "p1", DisplayName: "P1"}},
		{EventReady, ReadyPayload{ParticipantID: "p1"}, ReadyPayload{ParticipantID: "p1"}},
		{EventTextUpdate, TextUpdatePayload{ParticipantID: "p1", Input: "the quick"}, TextUpdatePayload{ParticipantID: "p1", Input: "the quick"}},
		{EventWin, WinPayload{ParticipantID: "p1", RaceSeq: 2, SpeedWPM: 72, ElapsedSeconds: 15.5}, WinPayload{ParticipantID: "p1", RaceSeq: 2, SpeedWPM: 72, ElapsedSeconds: 15.5}},
		{EventPlayAgain, VotePayload{ParticipantID: "p1"}, VotePayload{ParticipantID: "p1"}},
		{EventRestart, VotePayload{ParticipantID: "p2"}, VotePayload{ParticipantID: "p2"}},
		{EventLeave, LeavePayload{ParticipantID: "p1"}, LeavePayload{ParticipantID: "p1"}},
		{EventMatchFound, MatchFoundPayload{ParticipantID: "p1", RoomID: "r1", OpponentID: "p2", OpponentName: "P2"}, MatchFoundPayload{ParticipantID: "p1", RoomID: "r1", OpponentID: "p2", OpponentName: "P2"}},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			data, err := json.Marshal(tt.payload)
			require.NoError(t, err)

			got, err := ParseEventPayload(&Envelope{EventType: tt.eventType, Payload: data})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEventPayloadUnknownType(t *testing.T) {
	_, err := ParseEventPayload(&Envelope{EventType: "on-bogus", Payload: []byte(`{}`)})
	assert.ErrorContains(t, err, "unknown event type")
}

func TestParseEventPayloadMalformed(t *testing.T) {
	_, err := ParseEventPayload(&Envelope{EventType: EventReady, Payload: []byte(`{`)})
	assert.Error(t, err)
}
