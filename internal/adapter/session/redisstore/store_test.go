package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurorael/chat-backend/internal/adapter/session/redisstore"
	"github.com/aurorael/chat-backend/internal/domain"
)

func newStore(t *testing.T, ttl time.Duration) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redisstore.New(rdb, ttl), mr
}

func TestGetOrCreate_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st, _ := newStore(t, 72*time.Hour)

	s1, err := st.GetOrCreate(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, s1.ID)

	require.NoError(t, st.AppendHistory(ctx, s1.ID,
		domain.Message{Role: domain.RoleUser, Content: "what time is it in Paris"},
		domain.Message{Role: domain.RoleAssistant, Content: "¿De qué ciudad hablas? (Ciudad, País)"},
	))
	require.NoError(t, st.SetLastLocation(ctx, s1.ID, "Paris, France"))
	require.NoError(t, st.SetPendingLocation(ctx, s1.ID, true))

	s2, err := st.GetOrCreate(ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, s2.ID)
	assert.Len(t, s2.History, 2)
	assert.Equal(t, "Paris, France", s2.LastLocation)
	assert.True(t, s2.PendingLocation)
}

func TestGetOrCreate_TTLExpiryBehavesAsAbsent(t *testing.T) {
	ctx := context.Background()
	st, mr := newStore(t, time.Hour)

	s1, err := st.GetOrCreate(ctx, "")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	s2, err := st.GetOrCreate(ctx, s1.ID)
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)
}

func TestUpdate_UnknownSessionFails(t *testing.T) {
	st, _ := newStore(t, time.Hour)
	err := st.SetLastLocation(context.Background(), "missing", "Lima")
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	st, mr := newStore(t, time.Hour)
	require.NoError(t, st.Ping(context.Background()))
	mr.Close()
	assert.Error(t, st.Ping(context.Background()))
}
