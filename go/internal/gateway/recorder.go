package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typeracer/go/internal/models"
	"github.com/mcdev12/typeracer/go/internal/relay"
)

// ResultStore persists race outcomes. Returns false when the race already
// has a stored result.
type ResultStore interface {
	RecordResult(ctx context.Context, result models.RaceResult) (bool, error)
}

// Recorder watches room channels for win events and persists the first one
// per race. Both peers announce whichever completion they observe first,
// so under a near-tie the recorder can see two conflicting wins for one
// race; the store keeps only the first row per race sequence, which makes
// the persisted outcome single-authority while rematches in the same room
// still record their own rows.
type Recorder struct {
	store   ResultStore
	timeout time.Duration
}

func NewRecorder(store ResultStore) *Recorder {
	return &Recorder{
		store:   store,
		timeout: 5 * time.Second,
	}
}

// ObserveEnvelope implements EnvelopeObserver. Runs on the relay delivery
// goroutine; the write happens on its own goroutine so a slow database
// never stalls event fan-out.
func (r *Recorder) ObserveEnvelope(env *relay.Envelope) {
	if env.EventType != relay.EventWin {
		return
	}

	payload, err := relay.ParseEventPayload(env)
	if err != nil {
		log.Warn().Err(err).Str("room_id", env.RoomID).Msg("dropping unparseable win event")
		return
	}
	win, ok := payload.(relay.WinPayload)
	if !ok {
		return
	}

	raceSeq := win.RaceSeq
	if raceSeq == 0 {
		// Older peers omit the sequence; their room runs a single race.
		raceSeq = 1
	}

	result := models.RaceResult{
		ID:             uuid.New(),
		RoomID:         env.RoomID,
		RaceSeq:        raceSeq,
		WinnerID:       win.ParticipantID,
		SpeedWPM:       win.SpeedWPM,
		ElapsedSeconds: win.ElapsedSeconds,
		FinishedAt:     env.Timestamp,
	}

	go r.record(result)
}

func (r *Recorder) record(result models.RaceResult) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	inserted, err := r.store.RecordResult(ctx, result)
	if err != nil {
		log.Error().
			Err(err).
			Str("room_id", result.RoomID).
			Str("winner_id", result.WinnerID).
			Msg("failed to persist race result")
		return
	}
	if !inserted {
		log.Debug().
			Str("room_id", result.RoomID).
			Str("winner_id", result.WinnerID).
			Msg("room already has a recorded result, keeping the first")
		return
	}

	log.Info().
		Str("room_id", result.RoomID).
		Str("winner_id", result.WinnerID).
		Int("speed_wpm", result.SpeedWPM).
		Msg("race result recorded")
}
