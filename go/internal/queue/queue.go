package queue

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typeracer/go/internal/models"
)

// DefaultTTL is how long a queue entry stays matchable without a refresh.
// It matches the client-side give-up timer so a searcher never outlives its
// own entry.
const DefaultTTL = 30 * time.Second

// Entry is a waiting searcher. Immutable except for EnqueuedAt, which a
// repeated search refreshes in place.
type Entry struct {
	Participant models.Participant
	Preference  models.MatchPreference
	EnqueuedAt  time.Time
}

// PreferenceQueue holds waiting searchers in FIFO order. Every operation
// runs under one mutex: FindMatch plus the removal of both matched parties
// must be a single critical section, otherwise two concurrent searches can
// each claim the same third entry.
type PreferenceQueue struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	ttl     time.Duration
	entries []*Entry
}

// New creates a queue with the given clock and entry TTL. A zero ttl falls
// back to DefaultTTL.
func New(clock clockwork.Clock, ttl time.Duration) *PreferenceQueue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PreferenceQueue{
		clock:   clock,
		ttl:     ttl,
		entries: make([]*Entry, 0),
	}
}

// Enqueue inserts the participant or, if already queued, refreshes the
// entry's timestamp. At most one live entry exists per participant id.
func (q *PreferenceQueue) Enqueue(participant models.Participant, pref models.MatchPreference) *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	q.evictExpiredLocked(now)

	if existing := q.findLocked(participant.ID); existing != nil {
		existing.EnqueuedAt = now
		return existing
	}

	entry := &Entry{
		Participant: participant,
		Preference:  pref,
		EnqueuedAt:  now,
	}
	q.entries = append(q.entries, entry)

	log.Debug().
		Str("participant_id", participant.ID).
		Str("language", pref.Language).
		Int("max_passage_length", pref.MaxPassageLength).
		Int("queue_len", len(q.entries)).
		Msg("participant enqueued")

	return entry
}

// FindMatch returns the oldest live entry, excluding the caller, whose
// preference equals pref exactly. It does not mutate the queue beyond
// eviction; pairing flows go through ClaimMatch.
func (q *PreferenceQueue) FindMatch(participantID string, pref models.MatchPreference) *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.evictExpiredLocked(q.clock.Now())
	return q.findMatchLocked(participantID, pref)
}

// ClaimMatch enqueues (or refreshes) the caller, then attempts a match.
// On success both the caller's and the opponent's entries are removed
// before the lock is released, so neither is independently matchable
// afterward. Returns nil when no compatible peer is waiting.
func (q *PreferenceQueue) ClaimMatch(participant models.Participant, pref models.MatchPreference) *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	q.evictExpiredLocked(now)

	if existing := q.findLocked(participant.ID); existing != nil {
		existing.EnqueuedAt = now
	} else {
		q.entries = append(q.entries, &Entry{
			Participant: participant,
			Preference:  pref,
			EnqueuedAt:  now,
		})
	}

	match := q.findMatchLocked(participant.ID, pref)
	if match == nil {
		return nil
	}

	q.removeLocked(match.Participant.ID)
	q.removeLocked(participant.ID)

	log.Info().
		Str("participant_id", participant.ID).
		Str("opponent_id", match.Participant.ID).
		Msg("queue entries paired")

	return match
}

// Remove deletes the participant's entry if present. Idempotent; used after
// a successful pairing or an explicit cancel.
func (q *PreferenceQueue) Remove(participantID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(participantID)
}

// Len reports the number of live entries.
func (q *PreferenceQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.evictExpiredLocked(q.clock.Now())
	return len(q.entries)
}

func (q *PreferenceQueue) findLocked(participantID string) *Entry {
	for _, e := range q.entries {
		if e.Participant.ID == participantID {
			return e
		}
	}
	return nil
}

func (q *PreferenceQueue) findMatchLocked(participantID string, pref models.MatchPreference) *Entry {
	for _, e := range q.entries {
		if e.Participant.ID == participantID {
			continue
		}
		if e.Preference == pref {
			return e
		}
	}
	return nil
}

func (q *PreferenceQueue) removeLocked(participantID string) {
	for i, e := range q.entries {
		if e.Participant.ID == participantID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

// evictExpiredLocked drops entries older than the TTL, oldest first. Safe
// to run repeatedly; running it twice yields the same result.
func (q *PreferenceQueue) evictExpiredLocked(now time.Time) {
	live := q.entries[:0]
	for _, e := range q.entries {
		if now.Sub(e.EnqueuedAt) > q.ttl {
			log.Debug().
				Str("participant_id", e.Participant.ID).
				Time("enqueued_at", e.EnqueuedAt).
				Msg("evicting stale queue entry")
			continue
		}
		live = append(live, e)
	}
	q.entries = live
}
