package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kirinyoku/tix-checkout/internal/domain"
)

const (
	pathLockSeats = "/api/endpoints/v1/bloquear-asientos"
	pathSale      = "/api/endpoints/v1/realizar-venta"
	pathEvent     = "/api/endpoints/v1/evento/"

	maxErrorBody = 4 << 10
)

type Config struct {
	BaseURL        string
	Token          string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Client talks to the external sale authority. It never retries: a second
// sale attempt after an unknown outcome could sell the seats twice.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	now     func() time.Time
	logger  *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
		},
		now:    time.Now,
		logger: logger.With("component", "authority"),
	}
}

// LockSeats asks the authority to hold seats for the event.
//
// Returns:
//   - bool: the authority's verdict.
//   - error: marked authority.ErrUnavailable when no verdict was obtained.
func (c *Client) LockSeats(ctx context.Context, eventID int64, seats []domain.Seat) (bool, error) {
	const op = "authority.Client.LockSeats"

	req := lockRequest{EventID: eventID, Seats: make([]seatDTO, 0, len(seats))}
	for _, s := range seats {
		req.Seats = append(req.Seats, seatDTO{Row: s.Row, Column: s.Column})
	}

	var resp lockResponse
	if err := c.do(ctx, http.MethodPost, pathLockSeats, req, &resp); err != nil {
		return false, errors.Wrap(err, op)
	}

	if !resp.Result {
		c.logger.Info("lock refused", "event_id", eventID, "description", resp.Description)
	}

	return resp.Result, nil
}

// ExecuteSale finalizes a sale at the given unit price.
//
// Returns:
//   - domain.SaleRecord: the authority's answer; Outcome=false when it refused.
//   - error: marked authority.ErrUnavailable when the outcome is unknown.
func (c *Client) ExecuteSale(ctx context.Context, eventID, priceCents int64, seats []domain.Seat) (domain.SaleRecord, error) {
	const op = "authority.Client.ExecuteSale"

	req := saleRequest{
		EventID: eventID,
		Date:    c.now().UTC().Format(time.RFC3339Nano),
		Price:   formatCents(priceCents),
		Seats:   make([]seatDTO, 0, len(seats)),
	}
	for _, s := range seats {
		req.Seats = append(req.Seats, seatDTO{Row: s.Row, Column: s.Column, Occupant: s.Occupant})
	}

	var resp saleResponse
	if err := c.do(ctx, http.MethodPost, pathSale, req, &resp); err != nil {
		return domain.SaleRecord{}, errors.Wrap(err, op)
	}

	rec := domain.SaleRecord{
		AuthorityID:      resp.SaleID,
		EventID:          resp.EventID,
		Outcome:          resp.Result,
		AuthorityMessage: resp.Description,
	}

	if cents, err := parseCents(resp.Price); err == nil {
		rec.PriceCents = cents
	} else {
		rec.AppendNote(err.Error())
	}

	if resp.SaleDate != "" {
		if ts, err := time.Parse(time.RFC3339Nano, resp.SaleDate); err == nil {
			rec.Timestamp = ts
		}
	}

	if len(resp.Seats) > 0 {
		status := domain.SeatLocked
		if resp.Result {
			status = domain.SeatSold
		}
		rec.Seats = make([]domain.Seat, 0, len(resp.Seats))
		for _, s := range resp.Seats {
			rec.Seats = append(rec.Seats, domain.Seat{
				Row:      s.Row,
				Column:   s.Column,
				Status:   status,
				Occupant: s.Occupant,
			})
		}
	}

	return rec, nil
}

// Event fetches an event's grid dimensions and unit price.
//
// Returns:
//   - error: authority.ErrEventNotFound on a 404.
//   - error: marked authority.ErrUnavailable on any other failure.
func (c *Client) Event(ctx context.Context, eventID int64) (domain.EventInfo, error) {
	const op = "authority.Client.Event"

	var resp eventResponse
	if err := c.do(ctx, http.MethodGet, pathEvent+strconv.FormatInt(eventID, 10), nil, &resp); err != nil {
		return domain.EventInfo{}, errors.Wrap(err, op)
	}

	price, err := parseCents(resp.Price)
	if err != nil {
		return domain.EventInfo{}, errors.Mark(errors.Wrap(err, op), ErrUnavailable)
	}

	return domain.EventInfo{
		EventID:    resp.ID,
		Title:      resp.Title,
		MaxRows:    resp.Rows,
		MaxColumns: resp.Columns,
		PriceCents: price,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return unavailable(err, method+" "+path)
	}
	defer resp.Body.Close()

	c.logger.Debug("authority call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, pathEvent) {
		return ErrEventNotFound
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errors.Mark(
			errors.Newf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(snippet)),
			ErrUnavailable,
		)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return unavailable(err, fmt.Sprintf("decode %s response", path))
	}

	return nil
}
