package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/reelmatch/backend/internal/db"
	"github.com/reelmatch/backend/internal/models"
)

// PostgresSessionRepository provides PostgreSQL-backed persistence for
// swipe sessions.
type PostgresSessionRepository struct {
	pool db.Pool
}

// NewPostgresSessionRepository constructs a session repository backed by PostgreSQL.
func NewPostgresSessionRepository(pool db.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

const sessionColumns = `id, code, status, media_type, host_participant_id, preferences,
        winner_item_key, timed_duration_minutes, timer_end_at, created_at, updated_at`

// Create persists a new session record. A code collision surfaces as
// ErrConflict so the coordinator can redraw.
func (r *PostgresSessionRepository) Create(ctx context.Context, session models.Session) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	prefs := session.Preferences
	if len(prefs) == 0 {
		prefs = json.RawMessage(`{}`)
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO sessions (id, code, status, media_type, host_participant_id, preferences,
                timed_duration_minutes, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, session.ID, session.Code, session.Status, session.MediaType, session.HostParticipantID,
		prefs, session.TimedDurationMins, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// FindByID fetches a session by its identifier.
func (r *PostgresSessionRepository) FindByID(ctx context.Context, id string) (models.Session, error) {
	return r.findWhere(ctx, `id = $1`, id)
}

// FindByCode fetches a session by its human-facing code, case-insensitively.
func (r *PostgresSessionRepository) FindByCode(ctx context.Context, code string) (models.Session, error) {
	return r.findWhere(ctx, `code = $1`, strings.ToUpper(strings.TrimSpace(code)))
}

func (r *PostgresSessionRepository) findWhere(ctx context.Context, where string, arg any) (models.Session, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Session{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE `+where, arg)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrNotFound
		}
		return models.Session{}, fmt.Errorf("select session: %w", err)
	}
	return session, nil
}

// Update rewrites the mutable session fields. Identity, code, and creation
// time never change.
func (r *PostgresSessionRepository) Update(ctx context.Context, session models.Session) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE sessions
        SET status = $2, preferences = $3, timed_duration_minutes = $4, timer_end_at = $5,
            host_participant_id = $6, updated_at = $7
        WHERE id = $1
    `, session.ID, session.Status, session.Preferences, session.TimedDurationMins,
		session.TimerEndAt, session.HostParticipantID, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// DeclareWinner sets the winner and completes the session, but only if no
// winner exists yet. It reports whether this call was the one that won the
// write; a false return with nil error means another writer got there first
// and the caller must treat its result as a no-op.
func (r *PostgresSessionRepository) DeclareWinner(ctx context.Context, sessionID, itemKey string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE sessions
        SET winner_item_key = $2, status = $3, updated_at = $4
        WHERE id = $1 AND winner_item_key IS NULL AND status NOT IN ($5, $6)
    `, sessionID, itemKey, models.StatusCompleted, time.Now().UTC(),
		models.StatusCompleted, models.StatusNoMatch)
	if err != nil {
		return false, fmt.Errorf("declare winner: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkNoMatch moves the session to the no-match outcome unless it already
// reached a terminal state.
func (r *PostgresSessionRepository) MarkNoMatch(ctx context.Context, sessionID string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE sessions
        SET status = $2, updated_at = $3
        WHERE id = $1 AND winner_item_key IS NULL AND status NOT IN ($2, $4)
    `, sessionID, models.StatusNoMatch, time.Now().UTC(), models.StatusCompleted)
	if err != nil {
		return false, fmt.Errorf("mark no match: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// CodeInUse reports whether an active (non-terminal) session already holds
// the code.
func (r *PostgresSessionRepository) CodeInUse(ctx context.Context, code string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var n int
	err = conn.QueryRow(ctx, `
        SELECT COUNT(*) FROM sessions
        WHERE code = $1 AND status NOT IN ($2, $3)
    `, strings.ToUpper(code), models.StatusCompleted, models.StatusNoMatch).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count sessions by code: %w", err)
	}

	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.ID, &session.Code, &session.Status, &session.MediaType,
		&session.HostParticipantID, &session.Preferences, &session.WinnerItemKey,
		&session.TimedDurationMins, &session.TimerEndAt, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		return models.Session{}, err
	}
	session.CreatedAt = session.CreatedAt.UTC()
	session.UpdatedAt = session.UpdatedAt.UTC()
	if session.TimerEndAt != nil {
		t := session.TimerEndAt.UTC()
		session.TimerEndAt = &t
	}
	return session, nil
}
