package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/reelmatch/backend/internal/db"
	"github.com/reelmatch/backend/internal/models"
)

// PostgresFinalVoteRepository provides PostgreSQL-backed persistence for
// timed-mode final votes.
type PostgresFinalVoteRepository struct {
	pool db.Pool
}

// NewPostgresFinalVoteRepository constructs a final-vote repository backed by PostgreSQL.
func NewPostgresFinalVoteRepository(pool db.Pool) *PostgresFinalVoteRepository {
	return &PostgresFinalVoteRepository{pool: pool}
}

// Create records a participant's single final pick. A second pick for the
// same participant surfaces as ErrConflict; the existing vote is unchanged.
func (r *PostgresFinalVoteRepository) Create(ctx context.Context, vote models.FinalVote) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO final_votes (session_id, participant_id, item_key, created_at)
        VALUES ($1, $2, $3, $4)
    `, vote.SessionID, vote.ParticipantID, vote.ItemKey, vote.CreatedAt)
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
		return fmt.Errorf("insert final vote: %w", err)
	}

	return nil
}

// ListBySession returns every final vote cast in the session.
func (r *PostgresFinalVoteRepository) ListBySession(ctx context.Context, sessionID string) ([]models.FinalVote, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT session_id, participant_id, item_key, created_at
        FROM final_votes
        WHERE session_id = $1
        ORDER BY created_at ASC
    `, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query final votes: %w", err)
	}
	defer rows.Close()

	var votes []models.FinalVote
	for rows.Next() {
		var v models.FinalVote
		if err := rows.Scan(&v.SessionID, &v.ParticipantID, &v.ItemKey, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan final vote: %w", err)
		}
		v.CreatedAt = v.CreatedAt.UTC()
		votes = append(votes, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate final votes: %w", err)
	}

	return votes, nil
}

// DeleteBySession clears final votes for a session (round restart).
func (r *PostgresFinalVoteRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `DELETE FROM final_votes WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session final votes: %w", err)
	}

	return nil
}
