package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/reelmatch/backend/internal/db"
	"github.com/reelmatch/backend/internal/models"
)

// PostgresParticipantRepository provides PostgreSQL-backed persistence for
// session participants.
type PostgresParticipantRepository struct {
	pool db.Pool
}

// NewPostgresParticipantRepository constructs a participant repository backed by PostgreSQL.
func NewPostgresParticipantRepository(pool db.Pool) *PostgresParticipantRepository {
	return &PostgresParticipantRepository{pool: pool}
}

// Create appends a participant to a session's roster.
func (r *PostgresParticipantRepository) Create(ctx context.Context, p models.Participant) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	prefs, err := json.Marshal(p.Preferences)
	if err != nil {
		return fmt.Errorf("marshal participant preferences: %w", err)
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO participants (id, session_id, display_name, is_guest, auth_token,
                preferences, questions_completed, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, p.ID, p.SessionID, p.DisplayName, p.IsGuest, p.AuthToken, prefs, p.QuestionsCompleted, p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert participant: %w", err)
	}

	return nil
}

// FindByID fetches a single participant.
func (r *PostgresParticipantRepository) FindByID(ctx context.Context, id string) (models.Participant, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Participant{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, session_id, display_name, is_guest, auth_token, preferences,
               questions_completed, created_at
        FROM participants
        WHERE id = $1
    `, id)

	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Participant{}, ErrNotFound
		}
		return models.Participant{}, fmt.Errorf("select participant: %w", err)
	}
	return p, nil
}

// ListBySession returns the session's roster in join order.
func (r *PostgresParticipantRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Participant, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, session_id, display_name, is_guest, auth_token, preferences,
               questions_completed, created_at
        FROM participants
        WHERE session_id = $1
        ORDER BY created_at ASC
    `, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}

	return participants, nil
}

// CountBySession returns the roster size.
func (r *PostgresParticipantRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var n int
	if err := conn.QueryRow(ctx, `
        SELECT COUNT(*) FROM participants WHERE session_id = $1
    `, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}

	return n, nil
}

// Update rewrites a participant's mutable fields.
func (r *PostgresParticipantRepository) Update(ctx context.Context, p models.Participant) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	prefs, err := json.Marshal(p.Preferences)
	if err != nil {
		return fmt.Errorf("marshal participant preferences: %w", err)
	}

	tag, err := conn.Exec(ctx, `
        UPDATE participants
        SET display_name = $2, preferences = $3, questions_completed = $4
        WHERE id = $1
    `, p.ID, p.DisplayName, prefs, p.QuestionsCompleted)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ResetQuestions clears the questions flag for every participant in the
// session, used when the host restarts a round.
func (r *PostgresParticipantRepository) ResetQuestions(ctx context.Context, sessionID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        UPDATE participants SET questions_completed = FALSE WHERE session_id = $1
    `, sessionID); err != nil {
		return fmt.Errorf("reset participant questions: %w", err)
	}

	return nil
}

func scanParticipant(row rowScanner) (models.Participant, error) {
	var (
		p     models.Participant
		prefs []byte
	)
	if err := row.Scan(&p.ID, &p.SessionID, &p.DisplayName, &p.IsGuest, &p.AuthToken,
		&prefs, &p.QuestionsCompleted, &p.CreatedAt); err != nil {
		return models.Participant{}, err
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &p.Preferences); err != nil {
			return models.Participant{}, fmt.Errorf("decode participant preferences: %w", err)
		}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}
