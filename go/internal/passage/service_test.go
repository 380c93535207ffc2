package passage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/typeracer/go/clients"
	"github.com/mcdev12/typeracer/go/internal/models"
)

func newQuoteServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		require.Equal(t, "/quotes/random", r.URL.Path)
		json.NewEncoder(w).Encode(clients.Quote{
			ID:       "q1",
			Content:  "passage number " + string(rune('0'+n)),
			Language: r.URL.Query().Get("language"),
		})
	}))
}

func TestPassageForCachesPerRoom(t *testing.T) {
	var hits atomic.Int64
	srv := newQuoteServer(t, &hits)
	defer srv.Close()

	svc := NewService(clients.NewPassageClient(srv.URL))
	pref := models.MatchPreference{Language: "en", MaxPassageLength: 200}

	first := svc.PassageFor(context.Background(), "room-1", pref)
	second := svc.PassageFor(context.Background(), "room-1", pref)

	assert.Equal(t, first, second, "both room members must type the identical text")
	assert.Equal(t, int64(1), hits.Load())

	other := svc.PassageFor(context.Background(), "room-2", pref)
	assert.NotEqual(t, first, other)
	assert.Equal(t, int64(2), hits.Load())
}

func TestPassageForFallsBackWhenProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewService(clients.NewPassageClient(srv.URL))
	text := svc.PassageFor(context.Background(), "room-1", models.MatchPreference{Language: "en"})

	assert.Equal(t, fallbackPassage, text)
}

func TestRotateReplacesPassage(t *testing.T) {
	var hits atomic.Int64
	srv := newQuoteServer(t, &hits)
	defer srv.Close()

	svc := NewService(clients.NewPassageClient(srv.URL))
	pref := models.MatchPreference{Language: "en"}

	first := svc.PassageFor(context.Background(), "room-1", pref)
	rotated := svc.Rotate(context.Background(), "room-1", pref)

	assert.NotEqual(t, first, rotated)
	assert.Equal(t, rotated, svc.PassageFor(context.Background(), "room-1", pref))
}

func TestForgetDropsCache(t *testing.T) {
	var hits atomic.Int64
	srv := newQuoteServer(t, &hits)
	defer srv.Close()

	svc := NewService(clients.NewPassageClient(srv.URL))
	pref := models.MatchPreference{Language: "en"}

	svc.PassageFor(context.Background(), "room-1", pref)
	svc.Forget("room-1")
	svc.PassageFor(context.Background(), "room-1", pref)

	assert.Equal(t, int64(2), hits.Load())
}

func TestNilFetcherServesFallback(t *testing.T) {
	svc := NewService(nil)
	text := svc.PassageFor(context.Background(), "room-1", models.MatchPreference{})
	assert.Equal(t, fallbackPassage, text)
}
