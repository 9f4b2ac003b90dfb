package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	crerrors "github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/tix-checkout/internal/authority"
	redisx "github.com/kirinyoku/tix-checkout/internal/redis"
	redisrepo "github.com/kirinyoku/tix-checkout/internal/repository/redis"
	"github.com/kirinyoku/tix-checkout/internal/service"
	"github.com/kirinyoku/tix-checkout/internal/service/catalog"
	"github.com/kirinyoku/tix-checkout/internal/service/ledger"
	"github.com/kirinyoku/tix-checkout/internal/service/reservation"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const idemLockTTL = 60 * time.Second

type RouterDeps struct {
	// Idempotency and Limiter are optional.
	Idempotency *redisrepo.IdempotencyStore
	Limiter     Limiter
	JWTSecret   string
	Metrics     http.Handler

	// Ready backs /readyz; nil always reports ready.
	Ready  func(ctx context.Context) error
	Logger *slog.Logger
}

func NewRouter(svcs *service.Services, deps RouterDeps, middlewares ...gin.HandlerFunc) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/readyz", handleReady(deps.Ready, logger))

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	r.POST("/internal/sync", handleSync(svcs))

	authed := r.Group("/", JWTAuth(deps.JWTSecret))

	sess := authed.Group("/session")
	{
		sess.GET("", handleGetSession(svcs))
		sess.GET("/expired", handleIsExpired(svcs))
		sess.DELETE("", handleCancel(svcs))

		steps := sess.Group("", RateLimit(deps.Limiter, logger))
		steps.POST("", handleStartSession(svcs))
		steps.POST("/seats", handleSelectSeats(svcs))
		steps.POST("/lock", handleLockSeats(svcs))
		steps.POST("/occupants", handleAssignOccupants(svcs))
		steps.POST("/confirm", handleConfirmSale(svcs, deps.Idempotency))
	}

	authed.GET("/sales", handleListSales(svcs))
	authed.GET("/sales/:id", handleGetSale(svcs))

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Readiness of the backing stores
// @Success  200
// @Failure  503  {object}  ErrorResponse
// @Router   /readyz [get]
func handleReady(ready func(ctx context.Context) error, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready != nil {
			if err := ready(c.Request.Context()); err != nil {
				logger.Warn("readiness check failed", "err", err)
				c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "not ready"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// @Summary   Get current session
// @Security  BearerAuth
// @Success   200  {object}  SessionResponse
// @Failure   404  {object}  ErrorResponse  "no active session"
// @Router    /session [get]
func handleGetSession(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := svcs.Reservation.GetCurrentSession(c.Request.Context(), userID(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toSessionResponse(s, svcs.Reservation.TTL()))
	}
}

// @Summary   Whether the current session has expired
// @Security  BearerAuth
// @Success   200  {object}  ExpiredResponse
// @Router    /session/expired [get]
func handleIsExpired(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		expired, err := svcs.Reservation.IsExpired(c.Request.Context(), userID(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, ExpiredResponse{Expired: expired})
	}
}

// @Summary   Start a session for an event
// @Security  BearerAuth
// @Param     req  body  StartSessionRequest  true  "payload"
// @Success   201  {object}  SessionResponse
// @Failure   400  {object}  ErrorResponse
// @Failure   429  {object}  ErrorResponse  "rate limited"
// @Router    /session [post]
func handleStartSession(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StartSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		s, err := svcs.Reservation.StartSession(c.Request.Context(), userID(c), req.EventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, toSessionResponse(s, svcs.Reservation.TTL()))
	}
}

// @Summary   Cancel the current session
// @Security  BearerAuth
// @Success   204
// @Router    /session [delete]
func handleCancel(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svcs.Reservation.Cancel(c.Request.Context(), userID(c)); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary   Select seats
// @Security  BearerAuth
// @Param     req  body  SelectSeatsRequest  true  "payload"
// @Success   200  {object}  AvailableResponse  "available=false when a seat is taken"
// @Failure   404  {object}  ErrorResponse  "no active session / event not found"
// @Failure   409  {object}  ErrorResponse  "event mismatch"
// @Failure   422  {object}  ErrorResponse  "too many seats / seat out of range"
// @Router    /session/seats [post]
func handleSelectSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SelectSeatsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ok, err := svcs.Reservation.SelectSeats(
			c.Request.Context(),
			userID(c),
			req.EventID,
			toSeatKeys(req.Seats),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, AvailableResponse{Available: ok})
	}
}

// @Summary   Lock the selected seats at the sale authority
// @Security  BearerAuth
// @Success   200  {object}  LockedResponse
// @Failure   404  {object}  ErrorResponse  "no active session"
// @Router    /session/lock [post]
func handleLockSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := svcs.Reservation.LockSeats(c.Request.Context(), userID(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, LockedResponse{Locked: ok})
	}
}

// @Summary   Assign occupant names
// @Security  BearerAuth
// @Param     req  body  AssignOccupantsRequest  true  "payload"
// @Success   200  {object}  AssignedResponse
// @Failure   404  {object}  ErrorResponse  "no active session"
// @Failure   422  {object}  ErrorResponse  "seats differ from selection / blank name"
// @Router    /session/occupants [post]
func handleAssignOccupants(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AssignOccupantsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ok, err := svcs.Reservation.AssignOccupants(c.Request.Context(), userID(c), toOccupiedSeats(req.Seats))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, AssignedResponse{Assigned: ok})
	}
}

type idemEnvelope struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// @Summary   Confirm the sale (idempotent)
// @Security  BearerAuth
// @Param     Idempotency-Key  header  string  false  "replays the first successful response"
// @Success   201  {object}  SaleResponse  "outcome=true"
// @Success   200  {object}  SaleResponse  "outcome=false"
// @Failure   404  {object}  ErrorResponse  "no active session / event not found"
// @Failure   409  {object}  ErrorResponse  "idempotency key in progress"
// @Router    /session/confirm [post]
func handleConfirmSale(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := userID(c)

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisx.KeyIdemConfirm(uid, idemKey)

			if replayIdem(c, idem, idemStorageKey, idemKey) {
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, idemLockTTL)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if replayIdem(c, idem, idemStorageKey, idemKey) {
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		rec, err := svcs.Reservation.ConfirmSale(c.Request.Context(), uid)
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		status := http.StatusOK
		if rec.Outcome {
			status = http.StatusCreated
		}

		body, err := json.Marshal(toSaleResponse(rec))
		if err != nil {
			respondErr(c, err)
			return
		}

		// A refused sale is not final; a retry with the same key must reach
		// the authority again.
		if idemStorageKey != "" && !rec.Outcome {
			_ = idem.Release(c.Request.Context(), idemStorageKey)
		}
		if idemStorageKey != "" && rec.Outcome {
			env, _ := json.Marshal(idemEnvelope{Status: status, Body: body})
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(env))
			c.Header("Idempotency-Key", idemKey)
		}

		c.Data(status, "application/json; charset=utf-8", body)
	}
}

func replayIdem(c *gin.Context, idem *redisrepo.IdempotencyStore, storageKey, idemKey string) bool {
	payload, ok, _ := idem.GetResult(c.Request.Context(), storageKey)
	if !ok {
		return false
	}

	var env idemEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil || env.Status == 0 {
		return false
	}

	c.Header("Idempotency-Key", idemKey)
	c.Data(env.Status, "application/json; charset=utf-8", env.Body)

	return true
}

// @Summary   List own sales
// @Security  BearerAuth
// @Param     limit   query  int  false  "page size"
// @Param     offset  query  int  false  "offset"
// @Success   200  {object}  SalesPage
// @Router    /sales [get]
func handleListSales(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 0)
		offset := parseIntDefault(c.Query("offset"), 0)

		items, err := svcs.Ledger.ListByUser(c.Request.Context(), userID(c), limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, SalesPage{Items: items, Limit: limit, Offset: offset}, "private, no-cache", true)
	}
}

// @Summary   Get one of own sales
// @Security  BearerAuth
// @Param     id  path  string  true  "Local sale ID (uuid)"
// @Success   200  {object}  SaleResponse
// @Failure   404  {object}  ErrorResponse
// @Router    /sales/{id} [get]
func handleGetSale(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid id")
			return
		}

		rec, err := svcs.Ledger.Get(c.Request.Context(), userID(c), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		// a recorded sale never changes
		writeJSONWithCache(c, http.StatusOK, toSaleResponse(rec), "private, max-age=300", false)
	}
}

// @Summary  Invalidate cached catalog data
// @Param    req  body  SyncRequest  false  "event_id=0 or empty body invalidates everything"
// @Success  202
// @Router   /internal/sync [post]
func handleSync(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SyncRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}

		if err := svcs.Catalog.Sync(c.Request.Context(), req.EventID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusAccepted)
	}
}

// --- Helpers ---

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func unprocessable(c *gin.Context, err error) {
	c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var (
		tooMany    reservation.TooManySeatsError
		outOfRange reservation.SeatOutOfRangeError
		count      reservation.CountMismatchError
		missing    reservation.MissingOccupantError
	)

	switch {
	// reservation service
	case errors.Is(err, reservation.ErrNoActiveSession):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no active session"})
	case errors.Is(err, reservation.ErrEventMismatch):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "event does not match the session"})
	case errors.As(err, &tooMany):
		unprocessable(c, tooMany)
	case errors.As(err, &outOfRange):
		unprocessable(c, outOfRange)
	case errors.As(err, &count):
		unprocessable(c, count)
	case errors.As(err, &missing):
		unprocessable(c, missing)
	case errors.Is(err, reservation.ErrSeatSetMismatch):
		unprocessable(c, reservation.ErrSeatSetMismatch)
	case errors.Is(err, reservation.ErrLockTimeout):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "session busy"})
	case crerrors.Is(err, authority.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "sale authority unavailable"})
	case errors.Is(err, reservation.ErrEventNotFound),
		errors.Is(err, catalog.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	case errors.Is(err, catalog.ErrInvalidEvent):
		badRequest(c, "invalid event id")
	// ledger service
	case errors.Is(err, ledger.ErrSaleNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "sale not found"})
	case errors.Is(err, ledger.ErrInvalidPaging):
		badRequest(c, "invalid paging parameters")
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
