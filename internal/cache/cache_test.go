package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type board struct {
	Users []string `json:"users"`
}

func exercise(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	var got board
	hit, err := c.Get(ctx, "leaderboard:all:10", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "leaderboard:all:10", board{Users: []string{"ada", "bob"}}, time.Minute))
	require.NoError(t, c.Set(ctx, "leaderboard:week:5", board{Users: []string{"ada"}}, time.Minute))
	require.NoError(t, c.Set(ctx, "progress:ada", board{}, time.Minute))

	hit, err = c.Get(ctx, "leaderboard:all:10", &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, []string{"ada", "bob"}, got.Users)

	require.NoError(t, c.DeletePrefix(ctx, "leaderboard:"))
	hit, _ = c.Get(ctx, "leaderboard:week:5", &got)
	assert.False(t, hit)
	hit, _ = c.Get(ctx, "progress:ada", &got)
	assert.True(t, hit, "keys outside the prefix survive")
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	clock := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return clock }

	require.NoError(t, m.Set(context.Background(), "k", 1, time.Minute))
	var v int
	hit, _ := m.Get(context.Background(), "k", &v)
	assert.True(t, hit)

	clock = clock.Add(time.Minute)
	hit, _ = m.Get(context.Background(), "k", &v)
	assert.False(t, hit)
}

func TestNoop(t *testing.T) {
	var c Cache = Noop{}
	require.NoError(t, c.Set(context.Background(), "k", 1, time.Minute))
	var v int
	hit, err := c.Get(context.Background(), "k", &v)
	assert.NoError(t, err)
	assert.False(t, hit)
}

// TestRedis runs against a live server when CODEQUIZ_TEST_REDIS_ADDR is set.
func TestRedis(t *testing.T) {
	addr := os.Getenv("CODEQUIZ_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CODEQUIZ_TEST_REDIS_ADDR not set")
	}
	r, err := NewRedis(context.Background(), addr, "", 0, "test-"+uuid.NewString())
	require.NoError(t, err)
	defer r.Close()
	exercise(t, r)
}

func TestRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedis(ctx, "127.0.0.1:1", "", 0, "")
	assert.Error(t, err)
}
