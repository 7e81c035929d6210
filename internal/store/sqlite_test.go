package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/leadflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "data", "leadflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleSession(id string, updated time.Time) *domain.Session {
	score := 70
	s := domain.NewSession(id, updated.Add(-time.Minute))
	s.UpdatedAt = updated
	s.Step = domain.StepAwaitingPhone
	s.Answers = domain.Answers{
		domain.AnswerName:          "Maria Silva",
		domain.AnswerContactReason: "Preciso de ajuda",
		domain.AnswerLegalArea:     "Direito Penal",
		domain.AnswerDetails:       "Fui notificado por um processo",
	}
	s.FollowUps = []string{"tenho audiência"}
	s.MessageCount = 4
	s.FlowCompleted = true
	s.Score = &score
	return s
}

func TestSQLiteSessionRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestSQLite(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	want := sampleSession("sess-1", now)

	require.NoError(t, s.SaveSession(ctx, want))
	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	want.Phone = "11999999999"
	want.PhoneCollected = true
	want.Step = domain.StepDone
	want.LawyersNotified = true
	want.Confirmation = "Perfeito, Maria!"
	require.NoError(t, s.SaveSession(ctx, want))

	got, err = s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSQLiteMissingSession(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	got, err := s.GetSession(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, s.DeleteSession(context.Background(), "nope"))
}

func TestSQLiteFreshSessionHasNoScore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestSQLite(t)
	require.NoError(t, s.SaveSession(ctx, domain.NewSession("fresh", time.Now())))

	got, err := s.GetSession(ctx, "fresh")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Score)
	assert.Empty(t, got.FollowUps)
	assert.NotNil(t, got.Answers)
}

func TestSQLiteCleanupExpiredSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestSQLite(t)
	require.NoError(t, s.SaveSession(ctx, sampleSession("old", time.Now().Add(-2*time.Hour))))
	require.NoError(t, s.SaveSession(ctx, sampleSession("new", time.Now())))

	n, err := s.CleanupExpiredSessions(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	old, err := s.GetSession(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, old)
	fresh, err := s.GetSession(ctx, "new")
	require.NoError(t, err)
	assert.NotNil(t, fresh)
}

func TestSQLiteSaveLeadUpserts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestSQLite(t)
	lead := sampleSession("sess-1", time.Now()).Snapshot()
	lead.Phone = "11999999999"
	lead.Decision = domain.LeadDecision{Qualified: true, Priority: "high", Area: "penal"}

	require.NoError(t, s.SaveLead(ctx, lead))
	lead.Decision.Priority = "normal"
	require.NoError(t, s.SaveLead(ctx, lead))

	var count int
	var priority string
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(priority) FROM leads`)
	require.NoError(t, row.Scan(&count, &priority))
	assert.Equal(t, 1, count)
	assert.Equal(t, "normal", priority)
}

func TestRebind(t *testing.T) {
	t.Parallel()

	pg := &SQLStore{dialect: dialectPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &SQLStore{dialect: dialectSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}
