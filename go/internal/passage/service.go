package passage

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typeracer/go/clients"
	"github.com/mcdev12/typeracer/go/internal/models"
)

// fallbackPassage is served when the quote provider is unreachable, so a
// matched pair can always start racing.
const fallbackPassage = "The quick brown fox jumps over the lazy dog while the " +
	"curious cat watches from the warm windowsill and the rain taps gently on the glass."

// Fetcher is the outbound quote-provider boundary.
type Fetcher interface {
	GetRandomQuote(ctx context.Context, language string, maxLength int) (*clients.Quote, error)
}

// Service hands out typing passages keyed by room. Both members of a room
// must type the identical text, so the first fetch for a room is cached and
// every later request for that room returns the same passage.
type Service struct {
	mu      sync.Mutex
	fetcher Fetcher
	byRoom  map[string]string
}

func NewService(fetcher Fetcher) *Service {
	return &Service{
		fetcher: fetcher,
		byRoom:  make(map[string]string),
	}
}

// PassageFor returns the room's passage, fetching one on first request. The
// provider being down degrades to a fixed fallback rather than blocking the
// race.
func (s *Service) PassageFor(ctx context.Context, roomID string, pref models.MatchPreference) string {
	s.mu.Lock()
	if text, ok := s.byRoom[roomID]; ok {
		s.mu.Unlock()
		return text
	}
	s.mu.Unlock()

	text := s.fetch(ctx, pref)

	s.mu.Lock()
	defer s.mu.Unlock()
	// A concurrent first fetch may have won; keep its passage so both room
	// members see the same text.
	if existing, ok := s.byRoom[roomID]; ok {
		return existing
	}
	s.byRoom[roomID] = text
	return text
}

// Rotate replaces the room's passage, for a rematch on fresh text. Returns
// the new passage.
func (s *Service) Rotate(ctx context.Context, roomID string, pref models.MatchPreference) string {
	text := s.fetch(ctx, pref)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRoom[roomID] = text
	return text
}

// Forget drops the cached passage for a room, typically when the room is
// deleted.
func (s *Service) Forget(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byRoom, roomID)
}

func (s *Service) fetch(ctx context.Context, pref models.MatchPreference) string {
	if s.fetcher == nil {
		return fallbackPassage
	}
	quote, err := s.fetcher.GetRandomQuote(ctx, pref.Language, pref.MaxPassageLength)
	if err != nil {
		log.Warn().Err(err).Msg("quote provider unavailable, serving fallback passage")
		return fallbackPassage
	}
	return quote.Content
}
