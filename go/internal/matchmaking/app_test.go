package matchmaking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/typeracer/go/internal/models"
	"github.com/mcdev12/typeracer/go/internal/prefs"
	"github.com/mcdev12/typeracer/go/internal/queue"
	"github.com/mcdev12/typeracer/go/internal/relay"
	"github.com/mcdev12/typeracer/go/internal/rooms"
)

type fakeRoomsApp struct {
	mu    sync.Mutex
	rooms map[string]*models.Room
}

func newFakeRoomsApp() *fakeRoomsApp {
	return &fakeRoomsApp{rooms: make(map[string]*models.Room)}
}

func (f *fakeRoomsApp) GetRoom(_ context.Context, roomID string) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, exists := f.rooms[roomID]
	if !exists {
		return nil, rooms.ErrRoomNotFound
	}
	return room, nil
}

func (f *fakeRoomsApp) RoomForParticipant(_ context.Context, participantID string) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, room := range f.rooms {
		if room.HasMember(participantID) {
			return room, nil
		}
	}
	return nil, rooms.ErrRoomNotFound
}

func (f *fakeRoomsApp) CreateMatchedRoom(_ context.Context, roomID string, pair [2]models.Participant, settings models.RoomSettings) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.rooms[roomID]; exists {
		return nil, rooms.ErrRoomExists
	}
	room := &models.Room{
		ID:         roomID,
		MaxPlayers: 2,
		Members:    pair[:],
		Settings:   settings,
		CreatedAt:  time.Now(),
	}
	f.rooms[roomID] = room
	return room, nil
}

type fakePrefsRepo struct {
	mu      sync.Mutex
	upserts map[string]models.MatchPreference
}

func newFakePrefsRepo() *fakePrefsRepo {
	return &fakePrefsRepo{upserts: make(map[string]models.MatchPreference)}
}

func (f *fakePrefsRepo) Upsert(_ context.Context, participantID string, pref models.MatchPreference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts[participantID] = pref
	return nil
}

func (f *fakePrefsRepo) Get(_ context.Context, participantID string) (*models.MatchPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pref, ok := f.upserts[participantID]
	if !ok {
		return nil, prefs.ErrNotFound
	}
	return &pref, nil
}

// fakeNotifier records matchmaking-channel notifications.
type fakeNotifier struct {
	mu       sync.Mutex
	payloads []relay.MatchFoundPayload
}

func (f *fakeNotifier) PublishMatchFound(participantID string, payload relay.MatchFoundPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeNotifier) sent() []relay.MatchFoundPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]relay.MatchFoundPayload(nil), f.payloads...)
}

var english = models.MatchPreference{Language: "en", MaxPassageLength: 100}

func newTestApp() (*App, *fakeRoomsApp, *fakePrefsRepo, *fakeNotifier) {
	roomsApp := newFakeRoomsApp()
	prefsRepo := newFakePrefsRepo()
	notifier := &fakeNotifier{}
	q := queue.New(clockwork.NewFakeClock(), queue.DefaultTTL)
	return NewApp(q, roomsApp, prefsRepo, notifier), roomsApp, prefsRepo, notifier
}

func TestDeterministicRoomIDIsSymmetric(t *testing.T) {
	assert.Equal(t, DeterministicRoomID("alice", "bob"), DeterministicRoomID("bob", "alice"))
	assert.NotEqual(t, DeterministicRoomID("alice", "bob"), DeterministicRoomID("alice", "carol"))
}

func TestFindOpponentPairsCompatibleSearchers(t *testing.T) {
	app, _, prefsRepo, _ := newTestApp()
	ctx := context.Background()

	alice := models.Participant{ID: "alice", DisplayName: "Alice"}
	bob := models.Participant{ID: "bob", DisplayName: "Bob"}
	carol := models.Participant{ID: "carol", DisplayName: "Carol"}

	first, err := app.FindOpponent(ctx, alice, english)
	require.NoError(t, err)
	assert.False(t, first.Matched, "no compatible peer yet")

	// Incompatible preference keeps waiting.
	waiting, err := app.FindOpponent(ctx, carol, models.MatchPreference{Language: "fr", MaxPassageLength: 100})
	require.NoError(t, err)
	assert.False(t, waiting.Matched)

	second, err := app.FindOpponent(ctx, bob, english)
	require.NoError(t, err)
	require.True(t, second.Matched)
	require.NotNil(t, second.Room)
	assert.Equal(t, DeterministicRoomID("alice", "bob"), second.Room.ID)
	assert.Equal(t, "alice", second.Opponent.ID)
	assert.True(t, second.Room.HasMember("alice"))
	assert.True(t, second.Room.HasMember("bob"))
	assert.Equal(t, english.Language, second.Room.Settings.Language)

	// The side-effect preference record was written for every searcher.
	assert.Len(t, prefsRepo.upserts, 3)
}

func TestFindOpponentRetryIsIdempotent(t *testing.T) {
	app, roomsApp, _, _ := newTestApp()
	ctx := context.Background()

	alice := models.Participant{ID: "alice"}
	bob := models.Participant{ID: "bob"}

	_, err := app.FindOpponent(ctx, alice, english)
	require.NoError(t, err)
	matched, err := app.FindOpponent(ctx, bob, english)
	require.NoError(t, err)
	require.True(t, matched.Matched)

	// Simulate client retries after the pairing: both sides get the
	// existing room back rather than a duplicate created.
	_, err = app.FindOpponent(ctx, alice, english)
	require.NoError(t, err)
	retry, err := app.FindOpponent(ctx, bob, english)
	require.NoError(t, err)
	require.True(t, retry.Matched)
	assert.Equal(t, matched.Room.ID, retry.Room.ID)
	assert.Len(t, roomsApp.rooms, 1, "a retried search must not create a duplicate room")
}

func TestConcurrentSearchesCreateOneRoom(t *testing.T) {
	app, roomsApp, _, _ := newTestApp()
	ctx := context.Background()

	alice := models.Participant{ID: "alice"}
	_, err := app.FindOpponent(ctx, alice, english)
	require.NoError(t, err)

	const searchers = 8
	var wg sync.WaitGroup
	results := make(chan *Result, searchers)
	for i := 0; i < searchers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res, findErr := app.FindOpponent(ctx, models.Participant{ID: id}, english)
			if findErr == nil {
				results <- res
			}
		}("searcher-" + string(rune('a'+i)))
	}
	wg.Wait()
	close(results)

	var aliceMatches int
	for res := range results {
		if res.Matched && res.Opponent != nil && res.Opponent.ID == "alice" {
			aliceMatches++
		}
	}
	assert.Equal(t, 1, aliceMatches, "alice may be claimed by exactly one searcher")

	for id := range roomsApp.rooms {
		room := roomsApp.rooms[id]
		assert.Len(t, room.Members, 2)
	}
}

func TestClaimedPeerResolvesMatchOnRetry(t *testing.T) {
	app, roomsApp, _, _ := newTestApp()
	ctx := context.Background()

	alice := models.Participant{ID: "alice", DisplayName: "Alice"}
	bob := models.Participant{ID: "bob", DisplayName: "Bob"}
	carol := models.Participant{ID: "carol", DisplayName: "Carol"}

	first, err := app.FindOpponent(ctx, alice, english)
	require.NoError(t, err)
	require.False(t, first.Matched)

	claimed, err := app.FindOpponent(ctx, bob, english)
	require.NoError(t, err)
	require.True(t, claimed.Matched)

	// Alice's next poll must resolve to the room bob's claim created, not
	// leave her waiting.
	retry, err := app.FindOpponent(ctx, alice, english)
	require.NoError(t, err)
	require.True(t, retry.Matched, "a claimed peer's poll must report the pairing")
	assert.Equal(t, claimed.Room.ID, retry.Room.ID)
	require.NotNil(t, retry.Opponent)
	assert.Equal(t, "bob", retry.Opponent.ID)

	// And she must not be live in the queue again: a third searcher finds
	// nobody, and no second room holds her.
	third, err := app.FindOpponent(ctx, carol, english)
	require.NoError(t, err)
	assert.False(t, third.Matched, "an already-paired participant must not be claimable")
	assert.Len(t, roomsApp.rooms, 1, "pairing one duo may create exactly one room")
}

func TestMatchNotificationReachesClaimedPeer(t *testing.T) {
	app, _, _, notifier := newTestApp()
	ctx := context.Background()

	alice := models.Participant{ID: "alice", DisplayName: "Alice"}
	bob := models.Participant{ID: "bob", DisplayName: "Bob"}

	_, err := app.FindOpponent(ctx, alice, english)
	require.NoError(t, err)
	claimed, err := app.FindOpponent(ctx, bob, english)
	require.NoError(t, err)
	require.True(t, claimed.Matched)

	sent := notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice", sent[0].ParticipantID, "the waiting peer gets the notification")
	assert.Equal(t, claimed.Room.ID, sent[0].RoomID)
	assert.Equal(t, "bob", sent[0].OpponentID)
	assert.Equal(t, "Bob", sent[0].OpponentName)
}

func TestEmptyPreferenceResumesStored(t *testing.T) {
	app, _, prefsRepo, _ := newTestApp()
	ctx := context.Background()

	alice := models.Participant{ID: "alice"}
	bob := models.Participant{ID: "bob"}

	require.NoError(t, prefsRepo.Upsert(ctx, "alice", english))

	// Alice searches without restating her preference; the stored one is
	// resumed and she pairs with an english searcher.
	res, err := app.FindOpponent(ctx, alice, models.MatchPreference{})
	require.NoError(t, err)
	require.False(t, res.Matched)

	matched, err := app.FindOpponent(ctx, bob, english)
	require.NoError(t, err)
	require.True(t, matched.Matched)
	assert.Equal(t, "alice", matched.Opponent.ID)
	assert.Equal(t, english.Language, matched.Room.Settings.Language)
	assert.Equal(t, english.MaxPassageLength, matched.Room.Settings.MaxPassageLength)
}

func TestCancelSearchRemovesEntry(t *testing.T) {
	app, _, _, _ := newTestApp()
	ctx := context.Background()

	_, err := app.FindOpponent(ctx, models.Participant{ID: "alice"}, english)
	require.NoError(t, err)

	app.CancelSearch("alice")
	app.CancelSearch("alice") // idempotent

	res, err := app.FindOpponent(ctx, models.Participant{ID: "bob"}, english)
	require.NoError(t, err)
	assert.False(t, res.Matched, "a cancelled searcher must not be matched")
}
