package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/typeracer/go/internal/models"
)

const uniqueViolation = "23505"

// Repository is the Postgres-backed room store.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateRoom inserts the room and its initial members in one transaction.
// A taken room id maps to ErrRoomExists.
func (r *Repository) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	settingsBytes, err := json.Marshal(req.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal room settings: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin create", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO rooms (id, max_players, settings) VALUES ($1, $2, $3)`,
		req.RoomID, req.MaxPlayers, settingsBytes)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrRoomExists
		}
		return nil, storageErr("insert room", err)
	}

	// A matched pair's deterministic room id can be reused after deletion;
	// the new session's race sequence restarts at 1, so results left over
	// from the previous incarnation must not block it.
	_, err = tx.Exec(ctx, `DELETE FROM race_results WHERE room_id = $1`, req.RoomID)
	if err != nil {
		return nil, storageErr("purge stale results", err)
	}

	for _, member := range req.Members {
		_, err = tx.Exec(ctx,
			`INSERT INTO room_members (room_id, participant_id, display_name) VALUES ($1, $2, $3)`,
			req.RoomID, member.ID, member.DisplayName)
		if err != nil {
			return nil, storageErr("insert member", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit create", err)
	}

	return r.GetRoom(ctx, req.RoomID)
}

// GetRoom loads the room row and its member list. Missing rooms map to
// ErrRoomNotFound.
func (r *Repository) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return r.getRoom(ctx, r.pool, roomID)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) getRoom(ctx context.Context, q queryer, roomID string) (*models.Room, error) {
	var (
		room          models.Room
		settingsBytes []byte
	)
	err := q.QueryRow(ctx,
		`SELECT id, max_players, settings, created_at FROM rooms WHERE id = $1`,
		roomID).Scan(&room.ID, &room.MaxPlayers, &settingsBytes, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, storageErr("select room", err)
	}

	if err := json.Unmarshal(settingsBytes, &room.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room settings: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT participant_id, display_name FROM room_members WHERE room_id = $1 ORDER BY joined_at`,
		roomID)
	if err != nil {
		return nil, storageErr("select members", err)
	}
	defer rows.Close()

	for rows.Next() {
		var member models.Participant
		if err := rows.Scan(&member.ID, &member.DisplayName); err != nil {
			return nil, storageErr("scan member", err)
		}
		room.Members = append(room.Members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate members", err)
	}

	return &room, nil
}

// FindRoomForParticipant returns the room the participant most recently
// joined, or ErrRoomNotFound when they are in none.
func (r *Repository) FindRoomForParticipant(ctx context.Context, participantID string) (*models.Room, error) {
	var roomID string
	err := r.pool.QueryRow(ctx,
		`SELECT room_id FROM room_members WHERE participant_id = $1
		 ORDER BY joined_at DESC LIMIT 1`,
		participantID).Scan(&roomID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, storageErr("find room for participant", err)
	}
	return r.GetRoom(ctx, roomID)
}

// AddMember appends the participant, enforcing capacity under a row lock so
// two simultaneous joins to the last open slot cannot both succeed.
func (r *Repository) AddMember(ctx context.Context, roomID string, participant models.Participant) (*models.Room, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin join", err)
	}
	defer tx.Rollback(ctx)

	var maxPlayers int
	err = tx.QueryRow(ctx,
		`SELECT max_players FROM rooms WHERE id = $1 FOR UPDATE`,
		roomID).Scan(&maxPlayers)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, storageErr("lock room", err)
	}

	var memberCount int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM room_members WHERE room_id = $1`,
		roomID).Scan(&memberCount)
	if err != nil {
		return nil, storageErr("count members", err)
	}
	if memberCount >= maxPlayers {
		return nil, ErrRoomFull
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO room_members (room_id, participant_id, display_name) VALUES ($1, $2, $3)`,
		roomID, participant.ID, participant.DisplayName)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyMember
		}
		return nil, storageErr("insert member", err)
	}

	room, err := r.getRoom(ctx, tx, roomID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit join", err)
	}

	return room, nil
}

// RemoveMember deletes the participant's membership row and returns the
// updated room.
func (r *Repository) RemoveMember(ctx context.Context, roomID string, participantID string) (*models.Room, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM room_members WHERE room_id = $1 AND participant_id = $2`,
		roomID, participantID)
	if err != nil {
		return nil, storageErr("delete member", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing room from a missing member.
		if _, getErr := r.GetRoom(ctx, roomID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrMemberNotFound
	}

	return r.GetRoom(ctx, roomID)
}

// DeleteRoom removes the room, its membership rows, and any settings.
// Idempotent: deleting an absent room is not an error.
func (r *Repository) DeleteRoom(ctx context.Context, roomID string) error {
	// room_members cascades on the rooms FK; race_results rows outlive the room.
	if _, err := r.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, roomID); err != nil {
		return storageErr("delete room", err)
	}
	return nil
}

// RecordResult persists a race outcome. Only the first result per race of
// a room is kept, keyed by the race sequence, so rematches in a reused room
// still record while a near-tie's second win does not overwrite the first.
// The return value reports whether this call inserted the row.
func (r *Repository) RecordResult(ctx context.Context, result models.RaceResult) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO race_results (id, room_id, race_seq, winner_id, speed_wpm, elapsed_seconds, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (room_id, race_seq) DO NOTHING`,
		result.ID, result.RoomID, result.RaceSeq, result.WinnerID, result.SpeedWPM, result.ElapsedSeconds, result.FinishedAt)
	if err != nil {
		return false, storageErr("insert result", err)
	}
	return tag.RowsAffected() > 0, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
