package redisrepo

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserLockerAcquireAndRelease(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewUserLocker(db, 10*time.Second, 10*time.Millisecond, nil)
	l.newToken = func() string { return "tok" }

	key := "checkout:v1:lock:user:1"
	mock.ExpectSetNX(key, "tok", 10*time.Second).SetVal(true)
	mock.ExpectEvalSha(l.release.Hash(), []string{key}, "tok").SetVal(int64(1))

	unlock, err := l.Lock(context.Background(), 1)
	require.NoError(t, err)
	unlock()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserLockerRetriesUntilFree(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewUserLocker(db, 10*time.Second, time.Millisecond, nil)
	l.newToken = func() string { return "tok" }

	key := "checkout:v1:lock:user:1"
	mock.ExpectSetNX(key, "tok", 10*time.Second).SetVal(false)
	mock.ExpectSetNX(key, "tok", 10*time.Second).SetVal(true)

	_, err := l.Lock(context.Background(), 1)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserLockerGivesUpWithContext(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewUserLocker(db, 10*time.Second, time.Second, nil)
	l.newToken = func() string { return "tok" }

	mock.ExpectSetNX("checkout:v1:lock:user:1", "tok", 10*time.Second).SetVal(false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := l.Lock(ctx, 1)
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUserLockerLogsFailedRelease(t *testing.T) {
	tests := []struct {
		name      string
		scriptErr error
		want      string
	}{
		{
			name:      "script error",
			scriptErr: errors.New("connection reset"),
			want:      "user lock release failed",
		},
		{
			name: "lock already expired",
			want: "user lock expired before release",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			db, mock := redismock.NewClientMock()
			l := NewUserLocker(db, 10*time.Second, time.Millisecond, logger)
			l.newToken = func() string { return "tok" }

			key := "checkout:v1:lock:user:1"
			mock.ExpectSetNX(key, "tok", 10*time.Second).SetVal(true)
			release := mock.ExpectEvalSha(l.release.Hash(), []string{key}, "tok")
			if tt.scriptErr != nil {
				release.SetErr(tt.scriptErr)
			} else {
				release.SetVal(int64(0))
			}

			unlock, err := l.Lock(context.Background(), 1)
			require.NoError(t, err)
			unlock()

			assert.NoError(t, mock.ExpectationsWereMet())
			assert.Contains(t, buf.String(), "level=WARN")
			assert.Contains(t, buf.String(), tt.want)
			assert.Contains(t, buf.String(), "component=user_lock")
		})
	}
}
