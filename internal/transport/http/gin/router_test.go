package httpgin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tix-checkout/internal/authority"
	"github.com/kirinyoku/tix-checkout/internal/clock"
	"github.com/kirinyoku/tix-checkout/internal/domain"
	"github.com/kirinyoku/tix-checkout/internal/repository"
	memoryrepo "github.com/kirinyoku/tix-checkout/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/tix-checkout/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tix-checkout/internal/repository/redis"
	"github.com/kirinyoku/tix-checkout/internal/service"
	"github.com/kirinyoku/tix-checkout/internal/service/catalog"
	"github.com/kirinyoku/tix-checkout/internal/service/ledger"
	"github.com/kirinyoku/tix-checkout/internal/service/reservation"
	"github.com/kirinyoku/tix-checkout/internal/uow"
)

const testSecret = "test-secret"

type staticFetcher struct{}

func (staticFetcher) Event(_ context.Context, id int64) (domain.EventInfo, error) {
	if id != 3 {
		return domain.EventInfo{}, authority.ErrEventNotFound
	}
	return domain.EventInfo{EventID: 3, Title: "Concierto", MaxRows: 10, MaxColumns: 20, PriceCents: 250000}, nil
}

type emptyOracle struct{}

func (emptyOracle) OccupiedSeats(context.Context, int64) ([]domain.OccupiedSeat, error) {
	return nil, nil
}

type stubAuthority struct {
	lockOK  bool
	saleOK  bool
	saleErr error
}

func (a *stubAuthority) LockSeats(context.Context, int64, []domain.Seat) (bool, error) {
	return a.lockOK, nil
}

func (a *stubAuthority) ExecuteSale(_ context.Context, eventID, price int64, seats []domain.Seat) (domain.SaleRecord, error) {
	if a.saleErr != nil {
		return domain.SaleRecord{}, a.saleErr
	}
	rec := domain.SaleRecord{EventID: eventID, PriceCents: price, Outcome: a.saleOK}
	if a.saleOK {
		id := int64(999)
		rec.AuthorityID = &id
	}
	return rec, nil
}

type directRunner struct{}

func (directRunner) RunTx(ctx context.Context, _ *pgx.TxOptions, fn func(ctx context.Context, tx postgresrepo.DB) error) error {
	return fn(ctx, nil)
}

type memorySales struct {
	mu   sync.Mutex
	recs []domain.SaleRecord
}

func (m *memorySales) Insert(_ context.Context, rec *domain.SaleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, *rec)
	return nil
}

func (m *memorySales) Get(_ context.Context, userID int64, id uuid.UUID) (*domain.SaleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.recs {
		if m.recs[i].LocalID == id && m.recs[i].UserID == userID {
			rec := m.recs[i]
			return &rec, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memorySales) ListByUser(_ context.Context, userID int64, limit, offset int) ([]domain.SaleSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.SaleSummary{}
	for _, r := range m.recs {
		if r.UserID == userID {
			out = append(out, domain.SaleSummary{LocalID: r.LocalID, EventID: r.EventID, SeatCount: len(r.Seats)})
		}
	}
	return out, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (bool, int64, time.Duration, error) {
	return false, 61, 1500 * time.Millisecond, nil
}

type testEnv struct {
	router *gin.Engine
	auth   *stubAuthority
	sales  *memorySales
}

func newTestEnv(t *testing.T, limiter Limiter) *testEnv {
	t.Helper()
	return newTestEnvWithDeps(t, RouterDeps{Limiter: limiter})
}

func newTestEnvWithDeps(t *testing.T, deps RouterDeps) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := &stubAuthority{lockOK: true, saleOK: true}
	sales := &memorySales{}

	cat := catalog.New(staticFetcher{}, nil, nil, nil, catalog.Config{}, logger)
	led := ledger.New(uow.NewUoW(directRunner{}), func(postgresrepo.DB) ledger.SaleRepository { return sales }, nil, logger)

	svcs := service.NewServices(reservation.Deps{
		Sessions:  memoryrepo.NewSessionStore(),
		Oracle:    emptyOracle{},
		Authority: auth,
		Clock:     clock.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}, cat, led, service.Config{}, logger)

	deps.JWTSecret = testSecret
	deps.Logger = logger
	r := NewRouter(svcs, deps)

	return &testEnv{router: r, auth: auth, sales: sales}
}

func token(t *testing.T, sub string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token(t, "7"))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) readyToConfirm(t *testing.T) {
	t.Helper()

	w := e.do(t, http.MethodPost, "/session", StartSessionRequest{EventID: 3})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/session/seats", SelectSeatsRequest{
		EventID: 3,
		Seats:   []SeatPosition{{Row: 1, Column: 1}, {Row: 1, Column: 2}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.True(t, decode[AvailableResponse](t, w).Available)

	w = e.do(t, http.MethodPost, "/session/lock", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, decode[LockedResponse](t, w).Locked)

	w = e.do(t, http.MethodPost, "/session/occupants", AssignOccupantsRequest{Seats: []OccupantInput{
		{Row: 1, Column: 2, Occupant: "Luis"},
		{Row: 1, Column: 1, Occupant: "Ana"},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.True(t, decode[AssignedResponse](t, w).Assigned)
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t, nil)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestReadyz(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var down error
	r := NewRouter(&service.Services{}, RouterDeps{
		JWTSecret: testSecret,
		Ready:     func(context.Context) error { return down },
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	down = errors.New("redis: connection refused")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSessionRoutesRequireToken(t *testing.T) {
	e := newTestEnv(t, nil)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/session", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFullPurchaseFlow(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.do(t, http.MethodGet, "/session", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	e.readyToConfirm(t)

	w = e.do(t, http.MethodGet, "/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sess := decode[SessionResponse](t, w)
	assert.Equal(t, string(domain.StateAssigningOccupants), sess.State)
	assert.Equal(t, sess.LastActivityAt.Add(30*time.Minute), sess.ExpiresAt)

	w = e.do(t, http.MethodPost, "/session/confirm", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sale := decode[SaleResponse](t, w)
	assert.True(t, sale.Outcome)
	require.NotNil(t, sale.AuthorityID)
	assert.Equal(t, int64(999), *sale.AuthorityID)
	assert.Equal(t, int64(250000), sale.PriceCents)
	require.Len(t, e.sales.recs, 1)

	w = e.do(t, http.MethodGet, "/session/expired", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[ExpiredResponse](t, w).Expired)

	w = e.do(t, http.MethodGet, "/sales/"+sale.LocalID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = e.do(t, http.MethodGet, "/sales/"+sale.LocalID, nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)

	w = e.do(t, http.MethodGet, "/sales", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[SalesPage](t, w)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 2, page.Items[0].SeatCount)
}

func TestConfirmRefusedReturns200(t *testing.T) {
	e := newTestEnv(t, nil)
	e.readyToConfirm(t)
	e.auth.saleOK = false

	w := e.do(t, http.MethodPost, "/session/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[SaleResponse](t, w).Outcome)

	w = e.do(t, http.MethodGet, "/session", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, e.sales.recs)
}

func TestConfirmRefusedReleasesIdempotencyKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	e := newTestEnvWithDeps(t, RouterDeps{Idempotency: redisrepo.NewIdempotencyStore(db, time.Hour)})
	e.readyToConfirm(t)
	e.auth.saleOK = false

	key := "checkout:v1:idem:confirm:7:retry-1"

	// Both attempts reach the authority; the first refusal is not replayed.
	for range 2 {
		mock.ExpectGet(key).RedisNil()
		mock.ExpectSetNX(key, "LOCK", idemLockTTL).SetVal(true)
		mock.ExpectDel(key).SetVal(1)

		w := e.do(t, http.MethodPost, "/session/confirm", nil, "Idempotency-Key", "retry-1")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.False(t, decode[SaleResponse](t, w).Outcome)
		assert.Empty(t, w.Header().Get("Idempotency-Key"))
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectSeatsErrors(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.do(t, http.MethodPost, "/session", StartSessionRequest{EventID: 3})
	require.Equal(t, http.StatusCreated, w.Code)

	tests := []struct {
		name string
		req  SelectSeatsRequest
		want int
	}{
		{
			name: "too many seats",
			req: SelectSeatsRequest{EventID: 3, Seats: []SeatPosition{
				{1, 1}, {1, 2}, {1, 3}, {1, 4}, {1, 5},
			}},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "out of range",
			req:  SelectSeatsRequest{EventID: 3, Seats: []SeatPosition{{Row: 11, Column: 1}}},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "event mismatch",
			req:  SelectSeatsRequest{EventID: 4, Seats: []SeatPosition{{Row: 1, Column: 1}}},
			want: http.StatusConflict,
		},
		{
			name: "missing event",
			req:  SelectSeatsRequest{Seats: []SeatPosition{{Row: 1, Column: 1}}},
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/session/seats", tt.req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestStartSessionUnknownEventStillStarts(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.do(t, http.MethodPost, "/session", StartSessionRequest{EventID: 42})
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(t, http.MethodPost, "/session/seats", SelectSeatsRequest{EventID: 42, Seats: []SeatPosition{{Row: 1, Column: 1}}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAssignOccupantsMismatch(t *testing.T) {
	e := newTestEnv(t, nil)
	e.readyToConfirm(t)

	w := e.do(t, http.MethodPost, "/session/occupants", AssignOccupantsRequest{Seats: []OccupantInput{
		{Row: 1, Column: 1, Occupant: "Ana"},
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = e.do(t, http.MethodPost, "/session/occupants", AssignOccupantsRequest{Seats: []OccupantInput{
		{Row: 1, Column: 1, Occupant: "Ana"},
		{Row: 1, Column: 2, Occupant: "  "},
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCancel(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.do(t, http.MethodDelete, "/session", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	e.do(t, http.MethodPost, "/session", StartSessionRequest{EventID: 3})

	w = e.do(t, http.MethodDelete, "/session", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, http.MethodGet, "/session", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimitedSteps(t *testing.T) {
	e := newTestEnv(t, denyLimiter{})

	w := e.do(t, http.MethodPost, "/session", StartSessionRequest{EventID: 3})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))

	w = e.do(t, http.MethodGet, "/session", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSync(t *testing.T) {
	e := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/internal/sync", bytes.NewBufferString(`{"event_id":3}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/internal/sync", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestGetSaleBadID(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.do(t, http.MethodGet, "/sales/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/sales/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJWTAuthRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", JWTAuth(testSecret), func(c *gin.Context) {
		c.String(http.StatusOK, strconv.FormatInt(userID(c), 10))
	})

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "7"}).
		SignedString([]byte("other"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid", header: "Bearer " + token(t, "7"), want: http.StatusOK},
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, want: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer " + wrongKey, want: http.StatusUnauthorized},
		{name: "non numeric subject", header: "Bearer " + token(t, "alice"), want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "7", w.Body.String())
			}
		})
	}
}
