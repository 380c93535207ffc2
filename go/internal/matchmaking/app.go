package matchmaking

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typeracer/go/internal/models"
	"github.com/mcdev12/typeracer/go/internal/queue"
	"github.com/mcdev12/typeracer/go/internal/relay"
	"github.com/mcdev12/typeracer/go/internal/rooms"
)

// RoomsApp defines what the matchmaking layer needs from the room lifecycle
type RoomsApp interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	RoomForParticipant(ctx context.Context, participantID string) (*models.Room, error)
	CreateMatchedRoom(ctx context.Context, roomID string, pair [2]models.Participant, settings models.RoomSettings) (*models.Room, error)
}

// PrefsRepository defines what the matchmaking layer needs from the
// preference store
type PrefsRepository interface {
	Upsert(ctx context.Context, participantID string, pref models.MatchPreference) error
	Get(ctx context.Context, participantID string) (*models.MatchPreference, error)
}

// MatchNotifier pushes a pairing to the participant whose queue entry was
// claimed, on its matchmaking channel. Fire-and-forget like every relay
// publish; the claimed participant's poll also resolves the pairing.
type MatchNotifier interface {
	PublishMatchFound(participantID string, payload relay.MatchFoundPayload) error
}

// App pairs searching participants by preference.
type App struct {
	queue    *queue.PreferenceQueue
	rooms    RoomsApp
	prefs    PrefsRepository
	notifier MatchNotifier
}

func NewApp(q *queue.PreferenceQueue, roomsApp RoomsApp, prefsRepo PrefsRepository, notifier MatchNotifier) *App {
	return &App{
		queue:    q,
		rooms:    roomsApp,
		prefs:    prefsRepo,
		notifier: notifier,
	}
}

// FindOpponent either pairs the caller with a compatible waiting searcher
// or leaves the caller queued and reports Waiting. It never blocks waiting
// for a peer; the client polls, bounded by its own give-up timer.
//
// A caller whose queue entry was already claimed by someone else's search
// resolves to that room here instead of re-entering the queue: a paired
// participant must never be live in the queue again, or a third searcher
// could claim it into a second room.
func (a *App) FindOpponent(ctx context.Context, participant models.Participant, pref models.MatchPreference) (*Result, error) {
	if existing := a.claimedRoomFor(ctx, participant); existing != nil {
		return existing, nil
	}

	// An empty preference resumes the participant's stored one.
	if pref == (models.MatchPreference{}) {
		if stored, err := a.prefs.Get(ctx, participant.ID); err == nil {
			pref = *stored
		}
	}

	// Side effect for observability and resume; pairing does not depend on it.
	if err := a.prefs.Upsert(ctx, participant.ID, pref); err != nil {
		log.Warn().Err(err).Str("participant_id", participant.ID).Msg("failed to upsert search preference")
	}

	// ClaimMatch evicts stale entries, refreshes or enqueues the caller and,
	// on a hit, removes both entries in one critical section.
	match := a.queue.ClaimMatch(participant, pref)
	if match == nil {
		return &Result{Matched: false}, nil
	}

	opponent := match.Participant
	roomID := DeterministicRoomID(participant.ID, opponent.ID)

	// A retried search for an already-paired duo lands on the existing room.
	existing, err := a.rooms.GetRoom(ctx, roomID)
	if err == nil {
		return &Result{Matched: true, Room: existing, Opponent: &opponent}, nil
	}
	if !errors.Is(err, rooms.ErrRoomNotFound) {
		return nil, err
	}

	settings := models.RoomSettings{
		Language:         match.Preference.Language,
		MaxPassageLength: match.Preference.MaxPassageLength,
	}
	room, err := a.rooms.CreateMatchedRoom(ctx, roomID, [2]models.Participant{participant, opponent}, settings)
	if err != nil {
		if errors.Is(err, rooms.ErrRoomExists) {
			// The opponent's own retry created it between our check and create.
			room, err = a.rooms.GetRoom(ctx, roomID)
			if err != nil {
				return nil, err
			}
			return &Result{Matched: true, Room: room, Opponent: &opponent}, nil
		}
		return nil, err
	}

	a.notifyMatched(opponent.ID, room.ID, participant)

	log.Info().
		Str("room_id", room.ID).
		Str("participant_id", participant.ID).
		Str("opponent_id", opponent.ID).
		Msg("opponent found")

	return &Result{Matched: true, Room: room, Opponent: &opponent}, nil
}

// claimedRoomFor resolves a caller who is already a member of a live room:
// a previous poll's entry was claimed by the opponent's search. Returns nil
// when the caller should search normally.
func (a *App) claimedRoomFor(ctx context.Context, participant models.Participant) *Result {
	room, err := a.rooms.RoomForParticipant(ctx, participant.ID)
	if err != nil {
		if !errors.Is(err, rooms.ErrRoomNotFound) {
			log.Warn().Err(err).Str("participant_id", participant.ID).Msg("room membership lookup failed, searching anyway")
		}
		return nil
	}

	opponent := otherMember(room, participant.ID)
	if opponent == nil {
		// Alone in a room (a manual room waiting for a friend); a search is
		// still a search.
		return nil
	}

	log.Debug().
		Str("room_id", room.ID).
		Str("participant_id", participant.ID).
		Msg("search resolved to the room a prior claim created")
	return &Result{Matched: true, Room: room, Opponent: opponent}
}

func (a *App) notifyMatched(participantID string, roomID string, opponent models.Participant) {
	if a.notifier == nil {
		return
	}
	err := a.notifier.PublishMatchFound(participantID, relay.MatchFoundPayload{
		ParticipantID: participantID,
		RoomID:        roomID,
		OpponentID:    opponent.ID,
		OpponentName:  opponent.DisplayName,
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("participant_id", participantID).
			Str("room_id", roomID).
			Msg("match notification failed")
	}
}

func otherMember(room *models.Room, participantID string) *models.Participant {
	for i := range room.Members {
		if room.Members[i].ID != participantID {
			member := room.Members[i]
			return &member
		}
	}
	return nil
}

// CancelSearch removes the caller's queue entry. Idempotent.
func (a *App) CancelSearch(participantID string) {
	a.queue.Remove(participantID)
	log.Debug().Str("participant_id", participantID).Msg("search cancelled")
}
