package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tix-checkout/internal/domain"
	redisx "github.com/kirinyoku/tix-checkout/internal/redis"
	"github.com/kirinyoku/tix-checkout/internal/repository"
	postgresrepo "github.com/kirinyoku/tix-checkout/internal/repository/postgres"
	"github.com/kirinyoku/tix-checkout/internal/uow"
)

type fakeRunner struct {
	calls int
}

func (f *fakeRunner) RunTx(ctx context.Context, _ *pgx.TxOptions, fn func(ctx context.Context, tx postgresrepo.DB) error) error {
	f.calls++
	return fn(ctx, nil)
}

type mockSales struct{ mock.Mock }

func (m *mockSales) Insert(ctx context.Context, rec *domain.SaleRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockSales) Get(ctx context.Context, userID int64, localID uuid.UUID) (*domain.SaleRecord, error) {
	args := m.Called(ctx, userID, localID)
	rec, _ := args.Get(0).(*domain.SaleRecord)
	return rec, args.Error(1)
}

func (m *mockSales) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.SaleSummary, error) {
	args := m.Called(ctx, userID, limit, offset)
	out, _ := args.Get(0).([]domain.SaleSummary)
	return out, args.Error(1)
}

type recordingNotifier struct {
	msgs []redisx.SaleCompleted
	err  error
}

func (n *recordingNotifier) PublishSaleCompleted(_ context.Context, msg redisx.SaleCompleted) error {
	n.msgs = append(n.msgs, msg)
	return n.err
}

func newTestLedger(sales *mockSales, notifiers ...Notifier) (*Service, *fakeRunner) {
	r := &fakeRunner{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(uow.NewUoW(r), func(postgresrepo.DB) SaleRepository { return sales }, notifiers, logger)
	return svc, r
}

func sampleRecord(outcome bool) *domain.SaleRecord {
	id := int64(999)
	return &domain.SaleRecord{
		LocalID:     uuid.New(),
		AuthorityID: &id,
		EventID:     3,
		UserID:      7,
		PriceCents:  150000,
		Timestamp:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Outcome:     outcome,
		Seats: []domain.Seat{
			{Row: 1, Column: 1, Status: domain.SeatSold, Occupant: "Ana"},
			{Row: 1, Column: 2, Status: domain.SeatSold, Occupant: "Luis"},
		},
	}
}

func TestSaveNotifiesAfterCommit(t *testing.T) {
	sales := &mockSales{}
	redisN, amqpN := &recordingNotifier{}, &recordingNotifier{err: errors.New("broker down")}
	svc, _ := newTestLedger(sales, redisN, amqpN)

	rec := sampleRecord(true)
	sales.On("Insert", mock.Anything, rec).Return(nil).Once()

	require.NoError(t, svc.Save(context.Background(), rec))

	require.Len(t, redisN.msgs, 1)
	assert.Len(t, amqpN.msgs, 1)
	msg := redisN.msgs[0]
	assert.Equal(t, rec.LocalID.String(), msg.LocalID)
	assert.Equal(t, int64(999), *msg.AuthorityID)
	assert.Equal(t, 2, msg.SeatCount)
	assert.Equal(t, rec.Timestamp.Unix(), msg.TsUnix)
	sales.AssertExpectations(t)
}

func TestSaveRefusedSaleIsNotNotified(t *testing.T) {
	sales := &mockSales{}
	n := &recordingNotifier{}
	svc, _ := newTestLedger(sales, n)

	rec := sampleRecord(false)
	sales.On("Insert", mock.Anything, rec).Return(nil).Once()

	require.NoError(t, svc.Save(context.Background(), rec))
	assert.Empty(t, n.msgs)
}

func TestSaveRetriesSerializationFailures(t *testing.T) {
	sales := &mockSales{}
	n := &recordingNotifier{}
	svc, runner := newTestLedger(sales, n)

	rec := sampleRecord(true)
	serial := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "40001"})
	sales.On("Insert", mock.Anything, rec).Return(serial).Once()
	sales.On("Insert", mock.Anything, rec).Return(nil).Once()

	require.NoError(t, svc.Save(context.Background(), rec))
	assert.Equal(t, 2, runner.calls)
	assert.Len(t, n.msgs, 1)
}

func TestSaveGivesUpAfterMaxAttempts(t *testing.T) {
	sales := &mockSales{}
	svc, runner := newTestLedger(sales)

	rec := sampleRecord(true)
	sales.On("Insert", mock.Anything, rec).Return(&pgconn.PgError{Code: "40P01"})

	err := svc.Save(context.Background(), rec)
	require.Error(t, err)
	assert.Equal(t, maxAttempts, runner.calls)
}

func TestSaveDuplicate(t *testing.T) {
	sales := &mockSales{}
	svc, runner := newTestLedger(sales)

	rec := sampleRecord(true)
	sales.On("Insert", mock.Anything, rec).Return(fmt.Errorf("x: %w", repository.ErrConflict))

	assert.ErrorIs(t, svc.Save(context.Background(), rec), ErrDuplicateSale)
	assert.Equal(t, 1, runner.calls)
}

func TestGet(t *testing.T) {
	sales := &mockSales{}
	svc, _ := newTestLedger(sales)
	rec := sampleRecord(true)
	missing := uuid.New()

	sales.On("Get", mock.Anything, int64(7), rec.LocalID).Return(rec, nil)
	sales.On("Get", mock.Anything, int64(7), missing).Return(nil, repository.ErrNotFound)

	got, err := svc.Get(context.Background(), 7, rec.LocalID)
	require.NoError(t, err)
	assert.Same(t, rec, got)

	_, err = svc.Get(context.Background(), 7, missing)
	assert.ErrorIs(t, err, ErrSaleNotFound)
}

func TestListByUserPaging(t *testing.T) {
	tests := []struct {
		name          string
		limit, offset int
		wantLimit     int
		wantErr       error
	}{
		{name: "default", limit: 0, wantLimit: defaultLimit},
		{name: "clamped", limit: 500, offset: 10, wantLimit: maxLimit},
		{name: "as given", limit: 5, offset: 5, wantLimit: 5},
		{name: "negative limit", limit: -1, wantErr: ErrInvalidPaging},
		{name: "negative offset", limit: 5, offset: -1, wantErr: ErrInvalidPaging},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sales := &mockSales{}
			svc, _ := newTestLedger(sales)

			if tt.wantErr == nil {
				sales.On("ListByUser", mock.Anything, int64(7), tt.wantLimit, tt.offset).
					Return([]domain.SaleSummary{{EventID: 3, SeatCount: 2}}, nil).Once()
			}

			out, err := svc.ListByUser(context.Background(), 7, tt.limit, tt.offset)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Len(t, out, 1)
			sales.AssertExpectations(t)
		})
	}
}
