package repositories

import (
	"context"
	"fmt"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"

	"github.com/reelmatch/backend/internal/db"
	"github.com/reelmatch/backend/internal/models"
)

// PostgresVoteRepository provides PostgreSQL-backed persistence for swipe votes.
type PostgresVoteRepository struct {
	pool db.Pool
}

// NewPostgresVoteRepository constructs a vote repository backed by PostgreSQL.
func NewPostgresVoteRepository(pool db.Pool) *PostgresVoteRepository {
	return &PostgresVoteRepository{pool: pool}
}

// Save upserts a vote: a later vote for the same (participant, item) pair
// replaces the earlier one, which also makes retries of a failed submission
// idempotent.
func (r *PostgresVoteRepository) Save(ctx context.Context, vote models.Vote) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO votes (session_id, participant_id, item_key, liked, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (session_id, participant_id, item_key)
        DO UPDATE SET liked = EXCLUDED.liked, created_at = EXCLUDED.created_at
    `, vote.SessionID, vote.ParticipantID, vote.ItemKey, vote.Liked, vote.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert vote: %w", err)
	}

	return nil
}

// Delete removes a vote outright (undo swipe).
func (r *PostgresVoteRepository) Delete(ctx context.Context, sessionID, participantID, itemKey string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM votes
        WHERE session_id = $1 AND participant_id = $2 AND item_key = $3
    `, sessionID, participantID, itemKey)
	if err != nil {
		return fmt.Errorf("delete vote: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// DetectMatch evaluates the consensus predicate for one item and, when it
// holds, declares the winner inside the same serializable transaction. The
// conditional winner update is the single serialization point: under
// concurrent deciding votes exactly one caller observes declared=true, every
// other caller is a harmless no-op.
func (r *PostgresVoteRepository) DetectMatch(ctx context.Context, sessionID, itemKey string, rosterSize int) (bool, error) {
	if rosterSize < 1 {
		return false, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	declared := false
	err = crdbpgx.ExecuteTx(ctx, conn, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		declared = false

		var likers int
		if err := tx.QueryRow(ctx, `
            SELECT COUNT(DISTINCT participant_id)
            FROM votes
            WHERE session_id = $1 AND item_key = $2 AND liked
        `, sessionID, itemKey).Scan(&likers); err != nil {
			return fmt.Errorf("count likers: %w", err)
		}

		if likers < rosterSize {
			return nil
		}

		tag, err := tx.Exec(ctx, `
            UPDATE sessions
            SET winner_item_key = $2, status = $3, updated_at = NOW()
            WHERE id = $1 AND winner_item_key IS NULL AND status NOT IN ($3, $4)
        `, sessionID, itemKey, models.StatusCompleted, models.StatusNoMatch)
		if err != nil {
			return fmt.Errorf("declare match winner: %w", err)
		}

		declared = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("detect match: %w", err)
	}

	return declared, nil
}

// ListByParticipant returns a participant's current votes within a session.
func (r *PostgresVoteRepository) ListByParticipant(ctx context.Context, sessionID, participantID string) ([]models.Vote, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT session_id, participant_id, item_key, liked, created_at
        FROM votes
        WHERE session_id = $1 AND participant_id = $2
        ORDER BY created_at ASC
    `, sessionID, participantID)
	if err != nil {
		return nil, fmt.Errorf("query votes: %w", err)
	}
	defer rows.Close()

	var votes []models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.SessionID, &v.ParticipantID, &v.ItemKey, &v.Liked, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.CreatedAt = v.CreatedAt.UTC()
		votes = append(votes, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}

	return votes, nil
}

// CountsPerParticipant returns how many votes each participant has cast,
// used by the deck-exhaustion check.
func (r *PostgresVoteRepository) CountsPerParticipant(ctx context.Context, sessionID string) (map[string]int, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT participant_id, COUNT(*)
        FROM votes
        WHERE session_id = $1
        GROUP BY participant_id
    `, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query vote counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan vote count: %w", err)
		}
		counts[id] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vote counts: %w", err)
	}

	return counts, nil
}

// UnanimousItems returns the items liked by every one of rosterSize
// participants, ordered by item key for deterministic downstream handling.
func (r *PostgresVoteRepository) UnanimousItems(ctx context.Context, sessionID string, rosterSize int) ([]string, error) {
	if rosterSize < 1 {
		return nil, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT item_key
        FROM votes
        WHERE session_id = $1 AND liked
        GROUP BY item_key
        HAVING COUNT(DISTINCT participant_id) >= $2
        ORDER BY item_key ASC
    `, sessionID, rosterSize)
	if err != nil {
		return nil, fmt.Errorf("query unanimous items: %w", err)
	}
	defer rows.Close()

	return scanKeys(rows)
}

// TopLiked returns up to limit item keys ordered by like count descending,
// ties broken by item key so the candidate set is stable.
func (r *PostgresVoteRepository) TopLiked(ctx context.Context, sessionID string, limit int) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT item_key
        FROM votes
        WHERE session_id = $1 AND liked
        GROUP BY item_key
        ORDER BY COUNT(DISTINCT participant_id) DESC, item_key ASC
        LIMIT $2
    `, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query top liked items: %w", err)
	}
	defer rows.Close()

	return scanKeys(rows)
}

// DeleteBySession clears all votes for a session (round restart).
func (r *PostgresVoteRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `DELETE FROM votes WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session votes: %w", err)
	}

	return nil
}

func scanKeys(rows pgx.Rows) ([]string, error) {
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan item key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item keys: %w", err)
	}
	return keys, nil
}
