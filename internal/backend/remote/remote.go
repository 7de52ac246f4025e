// Package remote is a backend.Backend that talks to a prep-server over
// HTTP. Push delivery is a long poll on the server's change log.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marcus/prep/internal/backend"
	"github.com/marcus/prep/internal/models"
)

const (
	defaultTimeout = 30 * time.Second
	defaultWait    = 25 * time.Second
	maxBackoff     = 30 * time.Second
)

// --- Wire types (mirror internal/api/types.go, independently defined) ---

type datasetResponse struct {
	Dishes  []models.DishRow `json:"dishes"`
	Items   []models.ItemRow `json:"items"`
	LastSeq int64            `json:"last_seq"`
}

type changesResponse struct {
	Changes []models.ChangeEvent `json:"changes"`
	LastSeq int64                `json:"last_seq"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type createItemRequest struct {
	DishID   string `json:"dish_id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type updateItemRequest struct {
	Name     string `json:"name"`
	Position *int   `json:"position,omitempty"`
}

type moveItemRequest struct {
	DishID   string `json:"dish_id"`
	Position int    `json:"position"`
}

type recipeRequest struct {
	Recipe string `json:"recipe"`
}

// Client is an HTTP client for prep-server.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	timeout time.Duration
	wait    time.Duration
	backoff time.Duration

	mu     sync.Mutex
	closed bool
	stops  []func()
}

var _ backend.Backend = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Its Timeout must leave
// room for long polls.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.HTTP = h }
}

// WithWait sets how long each change poll is held open by the server.
func WithWait(d time.Duration) Option {
	return func(c *Client) { c.wait = d }
}

// WithRetryBackoff sets the first delay after a failed poll. It doubles
// on each consecutive failure up to 30s.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{},
		timeout: defaultTimeout,
		wait:    defaultWait,
		backoff: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAll implements backend.Backend.
func (c *Client) FetchAll(ctx context.Context) (models.Dataset, error) {
	resp, err := c.dataset(ctx)
	if err != nil {
		return models.Dataset{}, backend.Wrap(backend.OpFetchAll, err)
	}
	models.SortItems(resp.Items)
	return models.Dataset{Dishes: resp.Dishes, Items: resp.Items}, nil
}

func (c *Client) dataset(ctx context.Context) (datasetResponse, error) {
	var resp datasetResponse
	err := c.do(ctx, http.MethodGet, "/v1/dataset", nil, &resp)
	return resp, err
}

// InsertDish implements backend.Backend.
func (c *Client) InsertDish(ctx context.Context, name string) (models.DishRow, error) {
	var row models.DishRow
	err := c.do(ctx, http.MethodPost, "/v1/dishes", nameRequest{Name: name}, &row)
	return row, backend.Wrap(backend.OpInsertDish, err)
}

// UpdateDish implements backend.Backend.
func (c *Client) UpdateDish(ctx context.Context, id, name string) (models.DishRow, error) {
	var row models.DishRow
	err := c.do(ctx, http.MethodPatch, "/v1/dishes/"+url.PathEscape(id), nameRequest{Name: name}, &row)
	return row, backend.Wrap(backend.OpUpdateDish, err)
}

// DeleteDish implements backend.Backend.
func (c *Client) DeleteDish(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/v1/dishes/"+url.PathEscape(id), nil, nil)
	return backend.Wrap(backend.OpDeleteDish, err)
}

// InsertItem implements backend.Backend.
func (c *Client) InsertItem(ctx context.Context, dishID, name string, position int) (models.ItemRow, error) {
	var row models.ItemRow
	err := c.do(ctx, http.MethodPost, "/v1/items", createItemRequest{DishID: dishID, Name: name, Position: position}, &row)
	return row, backend.Wrap(backend.OpInsertItem, err)
}

// UpdateItem implements backend.Backend.
func (c *Client) UpdateItem(ctx context.Context, id, name string, position *int) (models.ItemRow, error) {
	var row models.ItemRow
	err := c.do(ctx, http.MethodPatch, "/v1/items/"+url.PathEscape(id), updateItemRequest{Name: name, Position: position}, &row)
	return row, backend.Wrap(backend.OpUpdateItem, err)
}

// MoveItem implements backend.Backend.
func (c *Client) MoveItem(ctx context.Context, id, dishID string, position int) (models.ItemRow, error) {
	var row models.ItemRow
	err := c.do(ctx, http.MethodPost, "/v1/items/"+url.PathEscape(id)+"/move", moveItemRequest{DishID: dishID, Position: position}, &row)
	return row, backend.Wrap(backend.OpMoveItem, err)
}

// DeleteItem implements backend.Backend.
func (c *Client) DeleteItem(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/v1/items/"+url.PathEscape(id), nil, nil)
	return backend.Wrap(backend.OpDeleteItem, err)
}

// UpdateItemRecipe implements backend.Backend.
func (c *Client) UpdateItemRecipe(ctx context.Context, id, text string) (models.ItemRow, error) {
	var row models.ItemRow
	err := c.do(ctx, http.MethodPut, "/v1/items/"+url.PathEscape(id)+"/recipe", recipeRequest{Recipe: text}, &row)
	return row, backend.Wrap(backend.OpUpdateRecipe, err)
}

// Subscribe implements backend.Backend. Delivery starts after the change
// log position current at the time of the call. Poll failures are logged
// and retried with backoff; onEvent runs on the polling goroutine.
func (c *Client) Subscribe(ctx context.Context, onEvent func(models.ChangeEvent)) (func(), error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, backend.Wrap(backend.OpSubscribe, errors.New("client closed"))
	}

	head, err := c.dataset(ctx)
	if err != nil {
		return nil, backend.Wrap(backend.OpSubscribe, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.poll(ctx, head.LastSeq, onEvent)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	c.mu.Lock()
	c.stops = append(c.stops, stop)
	c.mu.Unlock()
	return stop, nil
}

func (c *Client) poll(ctx context.Context, after int64, onEvent func(models.ChangeEvent)) {
	delay := c.backoff
	for ctx.Err() == nil {
		resp, err := c.changes(ctx, after)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("remote: poll changes", "after", after, "retry_in", delay, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, maxBackoff)
			continue
		}
		delay = c.backoff
		for _, ev := range resp.Changes {
			if ev.Seq <= after {
				continue
			}
			after = ev.Seq
			onEvent(ev)
		}
		if resp.LastSeq > after {
			after = resp.LastSeq
		}
	}
}

func (c *Client) changes(ctx context.Context, after int64) (changesResponse, error) {
	params := url.Values{}
	params.Set("after", strconv.FormatInt(after, 10))
	if c.wait > 0 {
		params.Set("wait", c.wait.String())
	}
	var resp changesResponse
	err := c.doTimeout(ctx, c.wait+c.timeout, http.MethodGet, "/v1/changes?"+params.Encode(), nil, &resp)
	return resp, err
}

// Close stops every running subscription.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	stops := c.stops
	c.stops = nil
	c.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
	return nil
}

// --- HTTP helpers ---

// apiError is the standard error body from the server.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	return c.doTimeout(ctx, c.timeout, method, path, body, result)
}

func (c *Client) doTimeout(ctx context.Context, timeout time.Duration, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var env struct {
			Error apiError `json:"error"`
		}
		if json.Unmarshal(respBody, &env) == nil && env.Error.Code != "" {
			if resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("%w: %s", backend.ErrNotFound, env.Error.Message)
			}
			return &env.Error
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
