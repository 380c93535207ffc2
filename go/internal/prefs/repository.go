package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/typeracer/go/internal/models"
)

// ErrNotFound is returned when a participant has no stored preference.
var ErrNotFound = errors.New("search preference not found")

// Repository persists the last search preference per participant. The rows
// exist for observability and search resume; pairing correctness never
// depends on them.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert stores the participant's current search preference.
func (r *Repository) Upsert(ctx context.Context, participantID string, pref models.MatchPreference) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO search_preferences (participant_id, language, max_passage_length, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (participant_id) DO UPDATE
		 SET language = EXCLUDED.language,
		     max_passage_length = EXCLUDED.max_passage_length,
		     updated_at = NOW()`,
		participantID, pref.Language, pref.MaxPassageLength)
	if err != nil {
		return fmt.Errorf("failed to upsert search preference: %w", err)
	}
	return nil
}

// Get returns the participant's stored search preference.
func (r *Repository) Get(ctx context.Context, participantID string) (*models.MatchPreference, error) {
	var pref models.MatchPreference
	err := r.pool.QueryRow(ctx,
		`SELECT language, max_passage_length FROM search_preferences WHERE participant_id = $1`,
		participantID).Scan(&pref.Language, &pref.MaxPassageLength)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get search preference: %w", err)
	}
	return &pref, nil
}
