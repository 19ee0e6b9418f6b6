package booking

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentview/internal/calendar"
)

func testSnapshot() Snapshot {
	return Snapshot{
		RequesterRef: "req-1",
		Room:         testRoom,
		Contact:      testContact,
		Selection: Selection{
			Date:   date(2026, time.October, 20),
			Slot:   "2:00 PM",
			Cursor: testCursor(),
			Step:   StepReview,
		},
		UpdatedAt: testNow,
	}
}

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(time.Minute)
	now := testNow
	store.now = func() time.Time { return now }
	key := SessionKey{RequesterRef: "req-1", RoomRef: "room-7"}

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Save(ctx, key, testSnapshot()))
	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, testSnapshot(), *got)

	other := SessionKey{RequesterRef: "req-2", RoomRef: "room-7"}
	require.NoError(t, store.Save(ctx, other, testSnapshot()))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, store.Cleanup())
	assert.Equal(t, 0, store.Len())

	require.NoError(t, store.Save(ctx, key, testSnapshot()))
	require.NoError(t, store.Delete(ctx, key))
	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemorySessionStore_GetDropsExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(time.Minute)
	now := testNow
	store.now = func() time.Time { return now }
	key := SessionKey{RequesterRef: "req-1", RoomRef: "room-7"}

	require.NoError(t, store.Save(ctx, key, testSnapshot()))
	now = now.Add(61 * time.Second)

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, store.Len())
}

func TestRedisSessionStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisSessionStore(client, 5*time.Minute)
	key := SessionKey{RequesterRef: "req-1", RoomRef: "room-7"}

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Save(ctx, key, testSnapshot()))
	assert.True(t, mr.Exists(key.String()))

	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	want := testSnapshot()
	assert.Equal(t, want.Selection, got.Selection)
	assert.Equal(t, want.Room, got.Room)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))

	mr.FastForward(6 * time.Minute)
	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Save(ctx, key, testSnapshot()))
	require.NoError(t, store.Delete(ctx, key))
	assert.False(t, mr.Exists(key.String()))
}

func TestRedisSessionStore_CorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	key := SessionKey{RequesterRef: "req-1", RoomRef: "room-7"}
	require.NoError(t, mr.Set(key.String(), "{not json"))

	_, err := NewRedisSessionStore(client, time.Minute).Get(context.Background(), key)
	assert.Error(t, err)
}

func testCursor() calendar.Month {
	return calendar.Month{Year: 2026, Month: time.October}
}
