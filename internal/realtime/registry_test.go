package realtime

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRegistry(rdb), mr
}

func TestRegisterAndLookup(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, "alice", "room-1", "conn-1"))
	require.NoError(t, reg.Register(ctx, "bob", "room-1", "conn-2"))

	ids, err := reg.RoomConnections(ctx, "room-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"conn-1", "conn-2"}, ids)

	online, err := reg.UserOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)

	online, err = reg.UserOnline(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestRegisterIsIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, "alice", "room-1", "conn-1"))
	require.NoError(t, reg.Register(ctx, "alice", "room-1", "conn-1"))

	ids, err := reg.RoomConnections(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"conn-1"}, ids)
}

func TestUnregisterRemovesLastMemberEntry(t *testing.T) {
	reg, mr := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, "alice", "room-1", "conn-1"))
	require.NoError(t, reg.Unregister(ctx, "alice", "room-1", "conn-1"))

	ids, err := reg.RoomConnections(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.False(t, mr.Exists("conn:room:room-1"), "an emptied room set disappears")

	online, err := reg.UserOnline(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestUnregisterUnknownConnection(t *testing.T) {
	reg, _ := newTestRegistry(t)
	assert.NoError(t, reg.Unregister(context.Background(), "alice", "room-1", "never-registered"))
}

func TestRegisterWithoutRoom(t *testing.T) {
	reg, mr := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, "alice", "", "conn-1"))

	online, err := reg.UserOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)
	assert.False(t, mr.Exists("conn:room:"), "no room key for roomless connections")
}
