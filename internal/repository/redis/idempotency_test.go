package redisrepo

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStoreFlow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewIdempotencyStore(db, time.Hour)
	ctx := context.Background()

	mock.ExpectGet("k").SetVal("LOCK")
	mock.ExpectSetNX("k", "LOCK", time.Minute).SetVal(true)
	mock.ExpectSet("k", `RES:{"ok":true}`, time.Hour).SetVal("OK")
	mock.ExpectGet("k").SetVal(`RES:{"ok":true}`)
	mock.ExpectDel("k").SetVal(1)

	_, ok, err := s.GetResult(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "in-flight marker is not a result")

	locked, err := s.AcquireLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, s.SaveResult(ctx, "k", `{"ok":true}`))

	payload, ok, err := s.GetResult(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"ok":true}`, payload)

	require.NoError(t, s.Release(ctx, "k"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStoreMissingKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewIdempotencyStore(db, time.Hour)

	mock.ExpectGet("k").RedisNil()

	_, ok, err := s.GetResult(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
