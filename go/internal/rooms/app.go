package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typeracer/go/internal/models"
)

// DefaultGraceWindow is how long an emptied room survives before deletion,
// so a reconnecting member does not find its room gone.
const DefaultGraceWindow = 10 * time.Second

// RoomsRepository defines what the app layer needs from the room store
type RoomsRepository interface {
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	FindRoomForParticipant(ctx context.Context, participantID string) (*models.Room, error)
	AddMember(ctx context.Context, roomID string, participant models.Participant) (*models.Room, error)
	RemoveMember(ctx context.Context, roomID string, participantID string) (*models.Room, error)
	DeleteRoom(ctx context.Context, roomID string) error
}

// App orchestrates the room lifecycle: create, join, leave, and the
// grace-window teardown of abandoned rooms.
type App struct {
	repo  RoomsRepository
	clock clockwork.Clock
	grace time.Duration

	graceTimers   map[string]*graceTimer
	graceTimersMu sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewApp creates a room lifecycle App. A zero grace falls back to
// DefaultGraceWindow.
func NewApp(repo RoomsRepository, clock clockwork.Clock, grace time.Duration) *App {
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &App{
		repo:        repo,
		clock:       clock,
		grace:       grace,
		graceTimers: make(map[string]*graceTimer),
		stopCh:      make(chan struct{}),
	}
}

// graceTimer pairs a pending deletion timer with its cancellation signal so
// the waiting goroutine exits when the room is revived.
type graceTimer struct {
	timer    clockwork.Timer
	cancelCh chan struct{}
}

// Close cancels all pending grace timers.
func (a *App) Close() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

// CreateRoom creates a manual room with the given join code. The creator is
// the first member. ErrRoomExists propagates unchanged so the caller can
// prompt for a different code.
func (a *App) CreateRoom(ctx context.Context, roomID string, creator models.Participant, maxPlayers int, settings models.RoomSettings) (*models.Room, error) {
	if err := validateRoomID(roomID); err != nil {
		return nil, err
	}

	room, err := a.repo.CreateRoom(ctx, CreateRoomRequest{
		RoomID:     roomID,
		MaxPlayers: maxPlayers,
		Members:    []models.Participant{creator},
		Settings:   settings,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("room_id", room.ID).
		Str("creator_id", creator.ID).
		Int("max_players", room.MaxPlayers).
		Msg("room created")
	return room, nil
}

// CreateMatchedRoom creates a two-player room for a matched pair, both
// participants as members, settings copied from the matched preference.
func (a *App) CreateMatchedRoom(ctx context.Context, roomID string, pair [2]models.Participant, settings models.RoomSettings) (*models.Room, error) {
	room, err := a.repo.CreateRoom(ctx, CreateRoomRequest{
		RoomID:     roomID,
		MaxPlayers: 2,
		Members:    pair[:],
		Settings:   settings,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("room_id", room.ID).
		Str("participant_a", pair[0].ID).
		Str("participant_b", pair[1].ID).
		Msg("matched room created")
	return room, nil
}

// GetRoom loads a room by id.
func (a *App) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return a.repo.GetRoom(ctx, roomID)
}

// RoomForParticipant returns the room the participant currently occupies,
// or ErrRoomNotFound. Lets a searcher's poll resolve to a room another
// participant's claim already placed it in.
func (a *App) RoomForParticipant(ctx context.Context, participantID string) (*models.Room, error) {
	return a.repo.FindRoomForParticipant(ctx, participantID)
}

// JoinRoom appends the participant. A join during the grace window revives
// the room by cancelling its pending deletion.
func (a *App) JoinRoom(ctx context.Context, roomID string, participant models.Participant) (*models.Room, error) {
	room, err := a.repo.AddMember(ctx, roomID, participant)
	if err != nil {
		return nil, err
	}

	a.cancelGraceTimer(roomID)

	log.Info().
		Str("room_id", roomID).
		Str("participant_id", participant.ID).
		Int("members", len(room.Members)).
		Msg("participant joined room")
	return room, nil
}

// LeaveRoom removes the participant. When the last member leaves, deletion
// is scheduled behind the grace window and the outcome reports Emptied;
// the room is only deleted if it is still empty when the window ends.
func (a *App) LeaveRoom(ctx context.Context, roomID string, participantID string) (*LeaveOutcome, error) {
	room, err := a.repo.RemoveMember(ctx, roomID, participantID)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("room_id", roomID).
		Str("participant_id", participantID).
		Int("members", len(room.Members)).
		Msg("participant left room")

	if len(room.Members) == 0 {
		a.scheduleGraceDelete(roomID)
		return &LeaveOutcome{Emptied: true}, nil
	}
	return &LeaveOutcome{Room: room}, nil
}

// DeleteRoom tears a room down immediately, bypassing the grace window.
func (a *App) DeleteRoom(ctx context.Context, roomID string) error {
	a.cancelGraceTimer(roomID)
	if err := a.repo.DeleteRoom(ctx, roomID); err != nil {
		return err
	}
	log.Info().Str("room_id", roomID).Msg("room deleted")
	return nil
}

// scheduleGraceDelete arms a one-shot timer that re-checks the room when it
// fires and deletes it only if it is still empty.
func (a *App) scheduleGraceDelete(roomID string) {
	gt := &graceTimer{
		timer:    a.clock.NewTimer(a.grace),
		cancelCh: make(chan struct{}),
	}
	a.replaceGraceTimer(roomID, gt)

	go func() {
		select {
		case <-gt.timer.Chan():
			a.removeGraceTimer(roomID)
			a.deleteIfStillEmpty(roomID)
		case <-gt.cancelCh:
			stopAndDrainTimer(gt.timer)
		case <-a.stopCh:
			stopAndDrainTimer(gt.timer)
			a.removeGraceTimer(roomID)
		}
	}()

	log.Debug().
		Str("room_id", roomID).
		Dur("grace", a.grace).
		Msg("scheduled grace-window delete")
}

func (a *App) deleteIfStillEmpty(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	room, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		if !errors.Is(err, ErrRoomNotFound) {
			log.Error().Err(err).Str("room_id", roomID).Msg("grace re-check failed")
		}
		return
	}
	if len(room.Members) > 0 {
		log.Debug().Str("room_id", roomID).Msg("room repopulated during grace window, keeping")
		return
	}
	if err := a.repo.DeleteRoom(ctx, roomID); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to delete abandoned room")
		return
	}
	log.Info().Str("room_id", roomID).Msg("abandoned room deleted")
}

// replaceGraceTimer atomically replaces a pending timer for the room,
// cancelling any existing one so only one deletion is ever in flight.
func (a *App) replaceGraceTimer(roomID string, gt *graceTimer) {
	a.graceTimersMu.Lock()
	defer a.graceTimersMu.Unlock()

	if existing, exists := a.graceTimers[roomID]; exists {
		close(existing.cancelCh)
	}
	a.graceTimers[roomID] = gt
}

func (a *App) cancelGraceTimer(roomID string) {
	a.graceTimersMu.Lock()
	defer a.graceTimersMu.Unlock()

	if gt, exists := a.graceTimers[roomID]; exists {
		close(gt.cancelCh)
		delete(a.graceTimers, roomID)
		log.Debug().Str("room_id", roomID).Msg("cancelled grace-window delete")
	}
}

func (a *App) removeGraceTimer(roomID string) {
	a.graceTimersMu.Lock()
	defer a.graceTimersMu.Unlock()
	delete(a.graceTimers, roomID)
}

// stopAndDrainTimer safely stops a timer and drains its channel to prevent
// goroutine leaks, per the time.Timer.Stop() documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

func validateRoomID(roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return fmt.Errorf("room id is required")
	}
	return nil
}
