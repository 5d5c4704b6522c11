// Package backend is the typed request/response boundary to the remote
// session service. It translates HTTP failures into the client error
// taxonomy and nothing more: retry and recovery policy live in the
// lifecycle engine, not here.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/argoview/floatchat/internal/logging"
	"github.com/argoview/floatchat/internal/shared/id"
	"github.com/argoview/floatchat/internal/types"
)

// SessionHeader carries the session id on chat requests.
const SessionHeader = "X-Session-ID"

// Config defines client connection settings.
type Config struct {
	BaseURL       string
	QueryTimeout  time.Duration
	HealthTimeout time.Duration
}

// Client wraps resty for the remote session operations.
type Client struct {
	resty  *resty.Client
	health time.Duration
	log    *logging.Logger
}

// New creates a client for the given backend.
func New(cfg Config, log *logging.Logger) *Client {
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.QueryTimeout).
		SetRetryCount(0). // expiry recovery is the engine's job
		SetHeader("User-Agent", "FloatChat/1.0").
		SetHeader("Content-Type", "application/json")

	health := cfg.HealthTimeout
	if health <= 0 {
		health = 5 * time.Second
	}

	return &Client{
		resty:  rc,
		health: health,
		log:    log.Named("backend"),
	}
}

// request builds a base request with a correlation id attached.
func (c *Client) request(ctx context.Context) *resty.Request {
	return c.resty.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", id.NewRequestID().String())
}

// CreateSession asks the remote to open a new conversation session.
// Any non-2xx is a RemoteError; creation failures are user-visible and
// never retried here.
func (c *Client) CreateSession(ctx context.Context, prefs types.Preferences) (*types.CreateSessionResponse, error) {
	var out types.CreateSessionResponse

	resp, err := c.request(ctx).
		SetBody(types.CreateSessionRequest{UserPreferences: prefs}).
		SetResult(&out).
		Post("/session/create")
	if err != nil {
		return nil, classifyTransport("create session", err)
	}
	if resp.IsError() {
		return nil, &RemoteError{Status: resp.StatusCode(), Detail: extractDetail(resp.Body())}
	}
	if out.SessionID == "" {
		return nil, &RemoteError{Status: resp.StatusCode(), Detail: "create response missing session_id"}
	}
	return &out, nil
}

// SendMessage submits a query against sessionID. An empty sessionID
// lets the remote mint a session implicitly. A 404 whose body carries
// the session-gone marker surfaces as ErrSessionExpired so the engine
// can apply its recovery policy.
func (c *Client) SendMessage(ctx context.Context, query, sessionID string, prefs types.Preferences) (*types.QueryResponse, error) {
	var out types.QueryResponse

	req := c.request(ctx).
		SetBody(types.QueryRequest{Query: query, UserPreferences: prefs}).
		SetResult(&out)
	if sessionID != "" {
		req.SetHeader(SessionHeader, sessionID)
	}

	resp, err := req.Post("/query")
	if err != nil {
		return nil, classifyTransport("send message", err)
	}
	if resp.StatusCode() == http.StatusNotFound && sessionID != "" && sessionNotFound(resp.Body()) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionExpired)
	}
	if resp.IsError() {
		return nil, &RemoteError{Status: resp.StatusCode(), Detail: extractDetail(resp.Body())}
	}
	return &out, nil
}

// GetHistory fetches the ordered transcript for a session. limit <= 0
// requests the full history.
func (c *Client) GetHistory(ctx context.Context, sessionID string, limit int) (*types.HistoryResponse, error) {
	var out types.HistoryResponse

	req := c.request(ctx).SetResult(&out)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}

	resp, err := req.Get("/session/" + sessionID + "/history")
	if err != nil {
		return nil, classifyTransport("get history", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionExpired)
	}
	if resp.IsError() {
		return nil, &RemoteError{Status: resp.StatusCode(), Detail: extractDetail(resp.Body())}
	}
	return &out, nil
}

// GetSessionInfo probes whether the remote still recognizes a session.
// Used by the reconciliation sweeper: a 404 is the only proof of death.
func (c *Client) GetSessionInfo(ctx context.Context, sessionID string) (*types.SessionInfoResponse, error) {
	var out types.SessionInfoResponse

	resp, err := c.request(ctx).
		SetResult(&out).
		Get("/session/" + sessionID)
	if err != nil {
		return nil, classifyTransport("get session info", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionExpired)
	}
	if resp.IsError() {
		return nil, &RemoteError{Status: resp.StatusCode(), Detail: extractDetail(resp.Body())}
	}
	return &out, nil
}

// DeleteSession removes a session remotely. A 404 means the goal state
// is already achieved and is treated as success.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	resp, err := c.request(ctx).Delete("/session/" + sessionID)
	if err != nil {
		return classifyTransport("delete session", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	if resp.IsError() {
		return &RemoteError{Status: resp.StatusCode(), Detail: extractDetail(resp.Body())}
	}
	return nil
}

// UpdatePreferences replaces the session's user preferences remotely.
// 404 surfaces as ErrSessionExpired.
func (c *Client) UpdatePreferences(ctx context.Context, sessionID string, prefs types.Preferences) error {
	resp, err := c.request(ctx).
		SetBody(prefs).
		Put("/session/" + sessionID + "/preferences")
	if err != nil {
		return classifyTransport("update preferences", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("session %s: %w", sessionID, ErrSessionExpired)
	}
	if resp.IsError() {
		return &RemoteError{Status: resp.StatusCode(), Detail: extractDetail(resp.Body())}
	}
	return nil
}

// HealthCheck reports whether the backend answers its health endpoint.
// It never returns an error: any failure, transport or HTTP, is false.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.health)
	defer cancel()

	resp, err := c.request(ctx).Get("/health")
	if err != nil {
		c.log.Debug("health check failed", zap.Error(err))
		return false
	}
	return resp.IsSuccess()
}
