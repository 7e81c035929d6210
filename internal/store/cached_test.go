package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/leadflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingOrigin struct {
	*MemoryStore
	gets    int
	saveErr error
}

func (c *countingOrigin) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	c.gets++
	return c.MemoryStore.GetSession(ctx, id)
}

func (c *countingOrigin) SaveSession(ctx context.Context, s *domain.Session) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	return c.MemoryStore.SaveSession(ctx, s)
}

func TestCachedReadThrough(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	origin := &countingOrigin{MemoryStore: NewMemory()}
	require.NoError(t, origin.MemoryStore.SaveSession(ctx, domain.NewSession("a", time.Now())))

	c, err := NewCached(origin, 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		s, err := c.GetSession(ctx, "a")
		require.NoError(t, err)
		require.NotNil(t, s)
	}
	assert.Equal(t, 1, origin.gets)

	missing, err := c.GetSession(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCachedReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, err := NewCached(NewMemory(), 8)
	require.NoError(t, err)
	require.NoError(t, c.SaveSession(ctx, domain.NewSession("a", time.Now())))

	s, err := c.GetSession(ctx, "a")
	require.NoError(t, err)
	s.Answers[domain.AnswerName] = "mutated"

	again, err := c.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, again.Answers[domain.AnswerName])
}

func TestCachedWriteFailureEvicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	origin := &countingOrigin{MemoryStore: NewMemory()}
	c, err := NewCached(origin, 8)
	require.NoError(t, err)

	sess := domain.NewSession("a", time.Now())
	require.NoError(t, c.SaveSession(ctx, sess))

	origin.saveErr = errors.New("db down")
	changed := sess.Clone()
	changed.MessageCount = 3
	require.Error(t, c.SaveSession(ctx, changed))

	got, err := c.GetSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, got.MessageCount)
	assert.Equal(t, 1, origin.gets)
}

func TestCachedDeleteAndCleanup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, err := NewCached(NewMemory(), 8)
	require.NoError(t, err)

	old := domain.NewSession("old", time.Now().Add(-2*time.Hour))
	require.NoError(t, c.SaveSession(ctx, old))
	require.NoError(t, c.SaveSession(ctx, domain.NewSession("keep", time.Now())))

	n, err := c.CleanupExpiredSessions(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err := c.GetSession(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.DeleteSession(ctx, "keep"))
	got, err = c.GetSession(ctx, "keep")
	require.NoError(t, err)
	assert.Nil(t, got)
}
