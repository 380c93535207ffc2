package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/typeracer/go/internal/models"
	"github.com/mcdev12/typeracer/go/internal/relay"
)

type resultKey struct {
	roomID  string
	raceSeq int
}

// fakeResultStore keeps the first result per race of a room, like the real
// table's unique constraint.
type fakeResultStore struct {
	mu      sync.Mutex
	results map[resultKey]models.RaceResult
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{results: make(map[resultKey]models.RaceResult)}
}

func (s *fakeResultStore) RecordResult(ctx context.Context, result models.RaceResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resultKey{roomID: result.RoomID, raceSeq: result.RaceSeq}
	if _, ok := s.results[key]; ok {
		return false, nil
	}
	s.results[key] = result
	return true, nil
}

func (s *fakeResultStore) get(roomID string, raceSeq int) (models.RaceResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[resultKey{roomID: roomID, raceSeq: raceSeq}]
	return r, ok
}

func winEnvelope(t *testing.T, roomID, winnerID string, raceSeq, wpm int) *relay.Envelope {
	t.Helper()
	data, err := json.Marshal(relay.WinPayload{
		ParticipantID:  winnerID,
		RaceSeq:        raceSeq,
		SpeedWPM:       wpm,
		ElapsedSeconds: 20,
	})
	require.NoError(t, err)
	return &relay.Envelope{
		EventID:   "evt-1",
		EventType: relay.EventWin,
		RoomID:    roomID,
		Timestamp: time.Now(),
		Payload:   data,
	}
}

func TestRecorderPersistsWin(t *testing.T) {
	store := newFakeResultStore()
	rec := NewRecorder(store)

	rec.ObserveEnvelope(winEnvelope(t, "room-1", "alice", 1, 72))

	require.Eventually(t, func() bool {
		_, ok := store.get("room-1", 1)
		return ok
	}, time.Second, time.Millisecond)

	result, _ := store.get("room-1", 1)
	assert.Equal(t, "alice", result.WinnerID)
	assert.Equal(t, 72, result.SpeedWPM)
	assert.Equal(t, "room-1", result.RoomID)
	assert.Equal(t, 1, result.RaceSeq)
}

func TestRecorderKeepsFirstResult(t *testing.T) {
	store := newFakeResultStore()
	rec := NewRecorder(store)

	rec.ObserveEnvelope(winEnvelope(t, "room-1", "alice", 1, 72))
	require.Eventually(t, func() bool {
		_, ok := store.get("room-1", 1)
		return ok
	}, time.Second, time.Millisecond)

	// The peer's conflicting win for the same race arrives moments later.
	rec.ObserveEnvelope(winEnvelope(t, "room-1", "bob", 1, 74))

	assert.Never(t, func() bool {
		result, _ := store.get("room-1", 1)
		return result.WinnerID != "alice"
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestRecorderPersistsEachRematchRace(t *testing.T) {
	store := newFakeResultStore()
	rec := NewRecorder(store)

	rec.ObserveEnvelope(winEnvelope(t, "room-1", "alice", 1, 72))
	rec.ObserveEnvelope(winEnvelope(t, "room-1", "bob", 2, 81))

	require.Eventually(t, func() bool {
		_, first := store.get("room-1", 1)
		_, second := store.get("room-1", 2)
		return first && second
	}, time.Second, time.Millisecond, "a rematch in the same room must record its own result")

	first, _ := store.get("room-1", 1)
	second, _ := store.get("room-1", 2)
	assert.Equal(t, "alice", first.WinnerID)
	assert.Equal(t, "bob", second.WinnerID)
	assert.Equal(t, 81, second.SpeedWPM)
}

func TestRecorderDefaultsMissingSequence(t *testing.T) {
	store := newFakeResultStore()
	rec := NewRecorder(store)

	rec.ObserveEnvelope(winEnvelope(t, "room-1", "alice", 0, 72))

	require.Eventually(t, func() bool {
		_, ok := store.get("room-1", 1)
		return ok
	}, time.Second, time.Millisecond, "a win without a sequence lands on race 1")
}

func TestRecorderIgnoresOtherEvents(t *testing.T) {
	store := newFakeResultStore()
	rec := NewRecorder(store)

	data, err := json.Marshal(relay.ReadyPayload{ParticipantID: "alice"})
	require.NoError(t, err)
	rec.ObserveEnvelope(&relay.Envelope{
		EventType: relay.EventReady,
		RoomID:    "room-1",
		Payload:   data,
	})

	assert.Never(t, func() bool {
		_, ok := store.get("room-1", 1)
		return ok
	}, 50*time.Millisecond, 5*time.Millisecond)
}
