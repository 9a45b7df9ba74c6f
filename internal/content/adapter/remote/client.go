// Package remote implements repository.CollectionService against a keepsake server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"keepsake/internal/content/config"
	"keepsake/internal/content/domain/model"
	"keepsake/internal/content/domain/repository"
	apperrors "keepsake/internal/shared/errors"
	"keepsake/internal/shared/logger"

	"github.com/fasthttp/websocket"
)

const (
	maxRetries     = 3
	baseRetryDelay = 250 * time.Millisecond
	storagePrefix  = "/v1/storage/"
)

// Client talks to the collection service over REST and the websocket listen endpoint.
type Client struct {
	baseURL       string
	wsURL         string
	publicBaseURL string
	token         string
	httpClient    *http.Client
	dialer        *websocket.Dialer
	log           logger.Logger
}

var _ repository.CollectionService = (*Client)(nil)

// NewClient creates a client from the CLI configuration.
func NewClient(cfg *config.ClientConfig, log logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.Nop()
	}
	base := strings.TrimRight(cfg.ServerURL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("server URL must be http or https, got %q", cfg.ServerURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + cfg.WebSocketPath

	publicBase := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBase == "" {
		publicBase = base
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:       base,
		wsURL:         u.String(),
		publicBaseURL: publicBase,
		token:         cfg.AdminToken,
		httpClient:    &http.Client{Timeout: timeout},
		dialer:        &websocket.Dialer{HandshakeTimeout: timeout},
		log:           log.WithComponent("remote"),
	}, nil
}

// WithToken returns a copy of the client that authenticates writes with token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

func (c *Client) FetchOrdered(ctx context.Context, col model.Collection, orderKey string, dir repository.Direction) ([]model.ContentItem, error) {
	query := url.Values{}
	query.Set("order", orderKey)
	query.Set("direction", string(dir))

	var rows []model.ContentItem
	if err := c.do(ctx, http.MethodGet, recordsPath(col), query, nil, "", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) InsertOne(ctx context.Context, col model.Collection, record model.ContentItem) (int64, error) {
	ids, err := c.InsertMany(ctx, col, []model.ContentItem{record})
	if err != nil {
		return 0, err
	}
	if len(ids) != 1 {
		return 0, apperrors.NewInternalError(fmt.Sprintf("server returned %d ids for one record", len(ids)))
	}
	return ids[0], nil
}

func (c *Client) InsertMany(ctx context.Context, col model.Collection, records []model.ContentItem) ([]int64, error) {
	body, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}
	var resp struct {
		IDs []int64 `json:"ids"`
	}
	if err := c.do(ctx, http.MethodPost, recordsPath(col), nil, body, "application/json", &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

func (c *Client) UpdateOne(ctx context.Context, col model.Collection, id int64, patch model.Patch) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPatch, recordPath(col, id), nil, body, "application/json", nil)
}

func (c *Client) DeleteOne(ctx context.Context, col model.Collection, id int64) error {
	return c.do(ctx, http.MethodDelete, recordPath(col, id), nil, nil, "", nil)
}

// UploadBlob stores data at path. The server derives the content type from the extension.
func (c *Client) UploadBlob(ctx context.Context, path string, data []byte) error {
	return c.do(ctx, http.MethodPut, storagePrefix+strings.TrimLeft(path, "/"), nil, data, "application/octet-stream", nil)
}

// PublicURL returns the reference a stored blob is served under. It performs no I/O.
func (c *Client) PublicURL(path string) string {
	return c.publicBaseURL + storagePrefix + strings.TrimLeft(path, "/")
}

// Unlock submits one gate code. ticket is empty on the first step.
func (c *Client) Unlock(ctx context.Context, ticket, code string) (*UnlockResult, error) {
	body, err := json.Marshal(map[string]string{"ticket": ticket, "code": code})
	if err != nil {
		return nil, err
	}
	var res UnlockResult
	if err := c.do(ctx, http.MethodPost, "/v1/session/unlock", nil, body, "application/json", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UnlockResult mirrors the server's gate answer.
type UnlockResult struct {
	Step     int    `json:"step"`
	Total    int    `json:"total"`
	Unlocked bool   `json:"unlocked"`
	Ticket   string `json:"ticket,omitempty"`
	Token    string `json:"token,omitempty"`
}

// RecentEvents reads the server's change log of col, newest first.
func (c *Client) RecentEvents(ctx context.Context, col model.Collection, count int) ([]model.ChangeEvent, error) {
	query := url.Values{}
	query.Set("count", strconv.Itoa(count))
	var events []model.ChangeEvent
	if err := c.do(ctx, http.MethodGet, "/v1/collections/"+url.PathEscape(string(col))+"/events", query, nil, "", &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, "", nil)
}

// do performs one request and decodes a JSON answer into out when out is non-nil.
// GETs are retried on 5xx with exponential backoff; writes are sent exactly once.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, contentType string, out interface{}) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := baseRetryDelay * time.Duration(1<<(attempt-1))
			c.log.Debugf("Retrying %s %s in %s (attempt %d)", method, path, delay, attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if c.token != "" && method != http.MethodGet {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode >= 500 {
			lastErr = decodeError(resp.StatusCode, data)
			c.log.Warnf("%s %s failed with %d", method, path, resp.StatusCode)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return decodeError(resp.StatusCode, data)
		}
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
		}
		return nil
	}
	return lastErr
}

// decodeError rebuilds the server's AppError from an error response.
func decodeError(status int, data []byte) error {
	var body struct {
		Error   string                 `json:"error"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Message == "" {
		body.Message = strings.TrimSpace(string(data))
		if body.Message == "" {
			body.Message = http.StatusText(status)
		}
	}
	errType := apperrors.ErrorType(body.Error)
	if errType == "" {
		errType = typeForStatus(status)
	}
	appErr := apperrors.NewAppError(errType, body.Message, status)
	for k, v := range body.Details {
		appErr = appErr.WithDetail(k, v)
	}
	if status == http.StatusUnauthorized {
		appErr = appErr.WithCause(apperrors.ErrUnauthorized)
	}
	return appErr
}

func typeForStatus(status int) apperrors.ErrorType {
	switch status {
	case http.StatusBadRequest:
		return apperrors.ErrorTypeValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.ErrorTypeAuthentication
	case http.StatusNotFound:
		return apperrors.ErrorTypeNotFound
	case http.StatusConflict:
		return apperrors.ErrorTypeConflict
	}
	return apperrors.ErrorTypeInternal
}

func recordsPath(col model.Collection) string {
	return "/v1/collections/" + url.PathEscape(string(col)) + "/records"
}

func recordPath(col model.Collection, id int64) string {
	return recordsPath(col) + "/" + strconv.FormatInt(id, 10)
}
