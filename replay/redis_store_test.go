package replay

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	return NewRedisStore(client, WithKeyPrefix("test:"))
}

func TestRedisStoreRecordAndLoadRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	exchange := Exchange{
		Method:       "GET",
		URL:          "https://api.example.com/users/1",
		ResponseBody: []byte(`{"id":1}`),
		Status:       200,
		RecordedAt:   time.Unix(0, 0).UTC(),
	}

	require.NoError(t, store.Record(ctx, "fp-1", exchange))

	got, err := store.Load(ctx, "fp-1", nil)
	require.NoError(t, err)
	assert.Equal(t, exchange.ResponseBody, got.ResponseBody)
}

func TestRedisStoreLoadMissReturnsErrNotFound(t *testing.T) {
	store := newTestRedisStore(t)
	_, err := store.Load(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreDiscardsBadStatusWhenNotSuccess(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	exchange := Exchange{
		Status:             503,
		DiscardOnBadStatus: true,
		RecordedAt:         time.Unix(0, 0).UTC(),
	}
	require.NoError(t, store.Record(ctx, "fp-2", exchange))

	isSuccess := func(status int) bool { return status >= 200 && status < 300 }
	_, err := store.Load(ctx, "fp-2", isSuccess)
	assert.ErrorIs(t, err, ErrNotFound)
}
