package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tix-checkout/internal/authority"
	"github.com/kirinyoku/tix-checkout/internal/domain"
	redisrepo "github.com/kirinyoku/tix-checkout/internal/repository/redis"
)

type fakeFetcher struct {
	events map[int64]domain.EventInfo
	err    error
	calls  int
}

func (f *fakeFetcher) Event(_ context.Context, id int64) (domain.EventInfo, error) {
	f.calls++
	if f.err != nil {
		return domain.EventInfo{}, f.err
	}
	ev, ok := f.events[id]
	if !ok {
		return domain.EventInfo{}, authority.ErrEventNotFound
	}
	return ev, nil
}

type countingRecorder map[string]int

func (c countingRecorder) ObserveInvalidation(source string) { c[source]++ }

type recordingBroadcaster struct {
	ids []int64
}

func (b *recordingBroadcaster) PublishCatalogChanged(_ context.Context, id int64) error {
	b.ids = append(b.ids, id)
	return nil
}

var (
	concert     = domain.EventInfo{EventID: 3, Title: "Concierto", MaxRows: 10, MaxColumns: 20, PriceCents: 250000}
	concertJSON = `{"event_id":3,"title":"Concierto","max_rows":10,"max_columns":20,"price_cents":250000}`
	concertKey  = "checkout:v1:catalog:event:3"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestEventCachesAuthorityResult(t *testing.T) {
	db, mock := redismock.NewClientMock()
	f := &fakeFetcher{events: map[int64]domain.EventInfo{3: concert}}
	svc := New(f, redisrepo.NewCache(db), nil, nil, Config{EventTTL: time.Minute}, discard())

	mock.ExpectGet(concertKey).RedisNil()
	mock.ExpectGet(concertKey).RedisNil()
	mock.ExpectSet(concertKey, concertJSON, time.Minute).SetVal("OK")
	mock.ExpectGet(concertKey).SetVal(concertJSON)

	grid, err := svc.EventGrid(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, domain.EventGrid{EventID: 3, MaxRows: 10, MaxColumns: 20}, grid)

	price, err := svc.UnitPrice(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(250000), price)

	assert.Equal(t, 1, f.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventNotFound(t *testing.T) {
	f := &fakeFetcher{events: map[int64]domain.EventInfo{}}
	svc := New(f, nil, nil, nil, Config{}, discard())

	_, err := svc.EventGrid(context.Background(), 9)
	assert.ErrorIs(t, err, ErrEventNotFound)

	_, err = svc.UnitPrice(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidEvent)
	assert.Equal(t, 1, f.calls)
}

func TestEventFallsBackWhenCacheDown(t *testing.T) {
	db, mock := redismock.NewClientMock()
	f := &fakeFetcher{events: map[int64]domain.EventInfo{3: concert}}
	svc := New(f, redisrepo.NewCache(db), nil, nil, Config{}, discard())

	mock.ExpectGet(concertKey).SetErr(errors.New("connection refused"))

	ev, err := svc.Event(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, concert, ev)
	assert.Equal(t, 1, f.calls)
}

func TestEventAuthorityUnavailableIsNotCached(t *testing.T) {
	db, mock := redismock.NewClientMock()
	f := &fakeFetcher{err: authority.ErrUnavailable}
	svc := New(f, redisrepo.NewCache(db), nil, nil, Config{}, discard())

	mock.ExpectGet(concertKey).RedisNil()
	mock.ExpectGet(concertKey).RedisNil()

	_, err := svc.Event(context.Background(), 3)
	assert.ErrorIs(t, err, authority.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrEventNotFound)
	assert.Equal(t, 1, f.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rec := countingRecorder{}
	svc := New(&fakeFetcher{}, redisrepo.NewCache(db), nil, rec, Config{}, discard())

	mock.ExpectDel(concertKey).SetVal(1)
	mock.ExpectScan(0, "checkout:v1:catalog:event:*", 200).SetVal([]string{concertKey}, 0)
	mock.ExpectDel(concertKey).SetVal(1)

	require.NoError(t, svc.Invalidate(context.Background(), 3, SourceAMQP))
	require.NoError(t, svc.Invalidate(context.Background(), 0, SourcePubSub))

	assert.Equal(t, 1, rec[SourceAMQP])
	assert.Equal(t, 1, rec[SourcePubSub])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncBroadcasts(t *testing.T) {
	db, mock := redismock.NewClientMock()
	b := &recordingBroadcaster{}
	rec := countingRecorder{}
	svc := New(&fakeFetcher{}, redisrepo.NewCache(db), b, rec, Config{}, discard())

	mock.ExpectDel(concertKey).SetVal(1)

	require.NoError(t, svc.Sync(context.Background(), 3))
	assert.Equal(t, []int64{3}, b.ids)
	assert.Equal(t, 1, rec[SourceHTTP])

	assert.ErrorIs(t, svc.Sync(context.Background(), -1), ErrInvalidEvent)
	assert.NoError(t, mock.ExpectationsWereMet())
}
