package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelmatch/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresSessionRepository_CreateFindAndUpdate(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresSessionRepository(testPool)

	session := createTestSession(t, repo, "ABC234")

	fetched, err := repo.FindByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if fetched.Code != session.Code || fetched.Status != models.StatusWaiting {
		t.Fatalf("unexpected session fetched: %+v", fetched)
	}

	fetched, err = repo.FindByCode(ctx, " abc234 ")
	if err != nil {
		t.Fatalf("find by code: %v", err)
	}
	if fetched.ID != session.ID {
		t.Fatalf("code lookup resolved wrong session: %+v", fetched)
	}

	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing session, got %v", err)
	}

	updated := fetched
	updated.Status = models.StatusSwiping
	updated.Preferences = json.RawMessage(`{"libraries":["10"]}`)
	updated.UpdatedAt = time.Now().UTC()

	if err := repo.Update(ctx, updated); err != nil {
		t.Fatalf("update session: %v", err)
	}

	fetched, err = repo.FindByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("refetch session: %v", err)
	}
	if fetched.Status != models.StatusSwiping {
		t.Fatalf("expected status to persist, got %q", fetched.Status)
	}
	var prefs map[string]any
	if err := json.Unmarshal(fetched.Preferences, &prefs); err != nil {
		t.Fatalf("decode preferences: %v", err)
	}
	if _, ok := prefs["libraries"]; !ok {
		t.Fatalf("expected preferences to persist, got %s", fetched.Preferences)
	}

	missing := updated
	missing.ID = uuid.NewString()
	if err := repo.Update(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing session, got %v", err)
	}
}

func TestPostgresSessionRepository_CodeReuseAfterTerminalState(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresSessionRepository(testPool)

	first := createTestSession(t, repo, "JKLM56")

	dup := first
	dup.ID = uuid.NewString()
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for a live duplicate code, got %v", err)
	}

	inUse, err := repo.CodeInUse(ctx, first.Code)
	if err != nil {
		t.Fatalf("code in use: %v", err)
	}
	if !inUse {
		t.Fatal("expected live code to be reported in use")
	}

	if declared, err := repo.MarkNoMatch(ctx, first.ID); err != nil || !declared {
		t.Fatalf("mark no match: declared=%v err=%v", declared, err)
	}

	inUse, err = repo.CodeInUse(ctx, first.Code)
	if err != nil {
		t.Fatalf("code in use after close: %v", err)
	}
	if inUse {
		t.Fatal("terminal session must release its code")
	}

	if err := repo.Create(ctx, dup); err != nil {
		t.Fatalf("expected code reuse after terminal state, got %v", err)
	}
}

func TestPostgresSessionRepository_WinnerWriteOnce(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresSessionRepository(testPool)
	session := createTestSession(t, repo, "NPQR78")

	declared, err := repo.DeclareWinner(ctx, session.ID, "movie-7")
	if err != nil {
		t.Fatalf("declare winner: %v", err)
	}
	if !declared {
		t.Fatal("first declaration must win the write")
	}

	declared, err = repo.DeclareWinner(ctx, session.ID, "movie-9")
	if err != nil {
		t.Fatalf("second declaration: %v", err)
	}
	if declared {
		t.Fatal("second declaration must be a no-op")
	}

	declared, err = repo.MarkNoMatch(ctx, session.ID)
	if err != nil {
		t.Fatalf("mark no match: %v", err)
	}
	if declared {
		t.Fatal("no-match after a winner must be a no-op")
	}

	fetched, err := repo.FindByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("refetch session: %v", err)
	}
	if fetched.Status != models.StatusCompleted || fetched.WinnerItemKey == nil || *fetched.WinnerItemKey != "movie-7" {
		t.Fatalf("expected first winner to stick, got %+v", fetched)
	}
}

func TestPostgresParticipantRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	sessionRepo := NewPostgresSessionRepository(testPool)
	session := createTestSession(t, sessionRepo, "STUV23")

	repo := NewPostgresParticipantRepository(testPool)

	orphan := models.Participant{
		ID:          uuid.NewString(),
		SessionID:   uuid.NewString(),
		DisplayName: "Nobody",
		IsGuest:     true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.Create(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown session, got %v", err)
	}

	host := createTestParticipant(t, repo, session.ID, "Alex", time.Now().UTC().Add(-time.Minute))
	guest := createTestParticipant(t, repo, session.ID, "Sam", time.Now().UTC())

	if err := repo.Create(ctx, host); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate id, got %v", err)
	}

	roster, err := repo.ListBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("list roster: %v", err)
	}
	if len(roster) != 2 || roster[0].ID != host.ID || roster[1].ID != guest.ID {
		t.Fatalf("expected join-order roster, got %+v", roster)
	}

	count, err := repo.CountBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("count roster: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected roster size 2, got %d", count)
	}

	host.Preferences = models.FacetPreferences{Genres: []string{"comedy"}, ExcludedGenres: []string{"horror"}}
	host.QuestionsCompleted = true
	if err := repo.Update(ctx, host); err != nil {
		t.Fatalf("update participant: %v", err)
	}

	fetched, err := repo.FindByID(ctx, host.ID)
	if err != nil {
		t.Fatalf("refetch participant: %v", err)
	}
	if !fetched.QuestionsCompleted || !reflect.DeepEqual(fetched.Preferences.Genres, []string{"comedy"}) {
		t.Fatalf("expected updated participant to persist, got %+v", fetched)
	}

	if err := repo.ResetQuestions(ctx, session.ID); err != nil {
		t.Fatalf("reset questions: %v", err)
	}
	fetched, err = repo.FindByID(ctx, host.ID)
	if err != nil {
		t.Fatalf("refetch after reset: %v", err)
	}
	if fetched.QuestionsCompleted {
		t.Fatal("expected questions flag cleared")
	}
	if len(fetched.Preferences.Genres) == 0 {
		t.Fatal("reset must not touch preferences")
	}

	missing := host
	missing.ID = uuid.NewString()
	if err := repo.Update(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing participant, got %v", err)
	}
}

func TestPostgresVoteRepository_SaveDetectAndUndo(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	sessionRepo := NewPostgresSessionRepository(testPool)
	participantRepo := NewPostgresParticipantRepository(testPool)
	session := createTestSession(t, sessionRepo, "WXYZ45")
	alice := createTestParticipant(t, participantRepo, session.ID, "Alice", time.Now().UTC())
	bob := createTestParticipant(t, participantRepo, session.ID, "Bob", time.Now().UTC())

	repo := NewPostgresVoteRepository(testPool)

	saveVote(t, repo, session.ID, alice.ID, "movie-1", true)

	declared, err := repo.DetectMatch(ctx, session.ID, "movie-1", 2)
	if err != nil {
		t.Fatalf("detect match: %v", err)
	}
	if declared {
		t.Fatal("one like out of two must not match")
	}

	// A re-vote replaces the earlier one rather than stacking.
	saveVote(t, repo, session.ID, alice.ID, "movie-1", false)
	votes, err := repo.ListByParticipant(ctx, session.ID, alice.ID)
	if err != nil {
		t.Fatalf("list votes: %v", err)
	}
	if len(votes) != 1 || votes[0].Liked {
		t.Fatalf("expected single replaced vote, got %+v", votes)
	}

	saveVote(t, repo, session.ID, alice.ID, "movie-1", true)
	saveVote(t, repo, session.ID, bob.ID, "movie-1", true)

	declared, err = repo.DetectMatch(ctx, session.ID, "movie-1", 2)
	if err != nil {
		t.Fatalf("detect match with full roster: %v", err)
	}
	if !declared {
		t.Fatal("expected unanimous like to declare the winner")
	}

	fetched, err := sessionRepo.FindByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("refetch session: %v", err)
	}
	if fetched.WinnerItemKey == nil || *fetched.WinnerItemKey != "movie-1" {
		t.Fatalf("expected winner recorded, got %+v", fetched)
	}

	// Another unanimous item after the winner is a no-op.
	saveVote(t, repo, session.ID, alice.ID, "movie-2", true)
	saveVote(t, repo, session.ID, bob.ID, "movie-2", true)
	declared, err = repo.DetectMatch(ctx, session.ID, "movie-2", 2)
	if err != nil {
		t.Fatalf("detect match on closed session: %v", err)
	}
	if declared {
		t.Fatal("a completed session must not accept a second winner")
	}

	if err := repo.Delete(ctx, session.ID, alice.ID, "movie-2"); err != nil {
		t.Fatalf("delete vote: %v", err)
	}
	if err := repo.Delete(ctx, session.ID, alice.ID, "movie-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting a deleted vote, got %v", err)
	}
}

func TestPostgresVoteRepository_Tallies(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	sessionRepo := NewPostgresSessionRepository(testPool)
	participantRepo := NewPostgresParticipantRepository(testPool)
	session := createTestSession(t, sessionRepo, "BCDF67")
	alice := createTestParticipant(t, participantRepo, session.ID, "Alice", time.Now().UTC())
	bob := createTestParticipant(t, participantRepo, session.ID, "Bob", time.Now().UTC())

	repo := NewPostgresVoteRepository(testPool)

	saveVote(t, repo, session.ID, alice.ID, "movie-1", true)
	saveVote(t, repo, session.ID, bob.ID, "movie-1", true)
	saveVote(t, repo, session.ID, alice.ID, "movie-2", true)
	saveVote(t, repo, session.ID, bob.ID, "movie-2", false)
	saveVote(t, repo, session.ID, alice.ID, "movie-3", true)

	unanimous, err := repo.UnanimousItems(ctx, session.ID, 2)
	if err != nil {
		t.Fatalf("unanimous items: %v", err)
	}
	if !reflect.DeepEqual(unanimous, []string{"movie-1"}) {
		t.Fatalf("expected only the fully liked item, got %v", unanimous)
	}

	top, err := repo.TopLiked(ctx, session.ID, 2)
	if err != nil {
		t.Fatalf("top liked: %v", err)
	}
	if !reflect.DeepEqual(top, []string{"movie-1", "movie-2"}) {
		t.Fatalf("expected like-count order with key tie-break, got %v", top)
	}

	counts, err := repo.CountsPerParticipant(ctx, session.ID)
	if err != nil {
		t.Fatalf("counts per participant: %v", err)
	}
	if counts[alice.ID] != 3 || counts[bob.ID] != 2 {
		t.Fatalf("unexpected vote counts: %v", counts)
	}

	if err := repo.DeleteBySession(ctx, session.ID); err != nil {
		t.Fatalf("delete session votes: %v", err)
	}
	counts, err = repo.CountsPerParticipant(ctx, session.ID)
	if err != nil {
		t.Fatalf("counts after delete: %v", err)
	}
	if len(counts) != 0 {
		t.Fatalf("expected cleared votes, got %v", counts)
	}
}

func TestPostgresFinalVoteRepository_OneVotePerParticipant(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	sessionRepo := NewPostgresSessionRepository(testPool)
	participantRepo := NewPostgresParticipantRepository(testPool)
	session := createTestSession(t, sessionRepo, "GHJK89")
	alice := createTestParticipant(t, participantRepo, session.ID, "Alice", time.Now().UTC())
	bob := createTestParticipant(t, participantRepo, session.ID, "Bob", time.Now().UTC())

	repo := NewPostgresFinalVoteRepository(testPool)

	first := models.FinalVote{SessionID: session.ID, ParticipantID: alice.ID, ItemKey: "movie-1", CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("cast final vote: %v", err)
	}

	change := first
	change.ItemKey = "movie-2"
	if err := repo.Create(ctx, change); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict changing a final vote, got %v", err)
	}

	second := models.FinalVote{SessionID: session.ID, ParticipantID: bob.ID, ItemKey: "movie-2", CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("cast second final vote: %v", err)
	}

	votes, err := repo.ListBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("list final votes: %v", err)
	}
	if len(votes) != 2 {
		t.Fatalf("expected two final votes, got %+v", votes)
	}

	if err := repo.DeleteBySession(ctx, session.ID); err != nil {
		t.Fatalf("delete final votes: %v", err)
	}
	votes, err = repo.ListBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(votes) != 0 {
		t.Fatalf("expected cleared final votes, got %+v", votes)
	}
}

func TestPostgresSettingsRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresSettingsRepository(testPool)

	if _, err := repo.Get(ctx, "theme"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing setting, got %v", err)
	}

	if err := repo.Put(ctx, "theme", json.RawMessage(`{"primary":"#e5a00d"}`)); err != nil {
		t.Fatalf("put setting: %v", err)
	}

	value, err := repo.Get(ctx, "theme")
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	var theme map[string]string
	if err := json.Unmarshal(value, &theme); err != nil {
		t.Fatalf("decode setting: %v", err)
	}
	if theme["primary"] != "#e5a00d" {
		t.Fatalf("unexpected setting value: %s", value)
	}

	if err := repo.Put(ctx, "theme", json.RawMessage(`{"primary":"#cc7b19"}`)); err != nil {
		t.Fatalf("replace setting: %v", err)
	}
	value, err = repo.Get(ctx, "theme")
	if err != nil {
		t.Fatalf("get replaced setting: %v", err)
	}
	if err := json.Unmarshal(value, &theme); err != nil {
		t.Fatalf("decode replaced setting: %v", err)
	}
	if theme["primary"] != "#cc7b19" {
		t.Fatalf("expected replacement to persist, got %s", value)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE final_votes, votes, participants, sessions, admin_settings CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestSession(t *testing.T, repo *PostgresSessionRepository, code string) models.Session {
	t.Helper()
	now := time.Now().UTC()
	session := models.Session{
		ID:        uuid.NewString(),
		Code:      code,
		Status:    models.StatusWaiting,
		MediaType: models.MediaTypeMovies,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("create test session: %v", err)
	}
	return session
}

func createTestParticipant(t *testing.T, repo *PostgresParticipantRepository, sessionID, name string, at time.Time) models.Participant {
	t.Helper()
	participant := models.Participant{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		DisplayName: name,
		IsGuest:     true,
		CreatedAt:   at,
	}
	if err := repo.Create(context.Background(), participant); err != nil {
		t.Fatalf("create test participant: %v", err)
	}
	return participant
}

func saveVote(t *testing.T, repo *PostgresVoteRepository, sessionID, participantID, itemKey string, liked bool) {
	t.Helper()
	vote := models.Vote{
		SessionID:     sessionID,
		ParticipantID: participantID,
		ItemKey:       itemKey,
		Liked:         liked,
		CreatedAt:     time.Now().UTC(),
	}
	if err := repo.Save(context.Background(), vote); err != nil {
		t.Fatalf("save vote: %v", err)
	}
}
