package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/telegate/telegate/internal/agent"
)

// Backend endpoints, relative to the configured base URL.
const (
	turnPath       = "/api/bridge/turns"
	linkVerifyPath = "/api/bridge/link/verify"
	healthPath     = "/api/bridge/health"
)

const (
	// maxFrameBytes bounds a single socket frame so a runaway backend
	// cannot exhaust memory.
	maxFrameBytes = 1 << 20

	// maxResponseBytes bounds HTTP response bodies.
	maxResponseBytes = 1 << 20

	// eventBuffer absorbs event bursts so the socket reader does not stall
	// on a slow consumer.
	eventBuffer = 16

	defaultDialAttempts = 3
	defaultDialBackoff  = 500 * time.Millisecond

	pingTimeout = 10 * time.Second
)

// Client talks to the web application's agent backend: turns stream over a
// per-turn WebSocket, link verification and health ride plain HTTP. All
// requests carry bearer auth. Safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger

	turnTimeout  time.Duration
	pingInterval time.Duration

	dialAttempts int
	dialBackoff  time.Duration
}

// NewClient creates a backend client for the given base URL and bearer token.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:      baseURL,
		token:        token,
		http:         &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		pingInterval: 30 * time.Second,
		dialAttempts: defaultDialAttempts,
		dialBackoff:  defaultDialBackoff,
	}
}

// Invoke opens a turn for a user message and streams its events.
func (c *Client) Invoke(ctx context.Context, req agent.Request) (<-chan agent.Event, error) {
	return c.turn(ctx, turnRequest{
		Kind:           turnKindInvoke,
		AccountID:      req.AccountID,
		ConversationID: req.ConversationID,
		Text:           req.Text,
		Metadata:       req.Metadata,
	})
}

// Resume resolves a pending action and streams the outcome.
func (c *Client) Resume(ctx context.Context, req agent.ResumeRequest) (<-chan agent.Event, error) {
	approve := req.Approve
	return c.turn(ctx, turnRequest{
		Kind:           turnKindResume,
		AccountID:      req.AccountID,
		ConversationID: req.ConversationID,
		ActionID:       req.ActionID,
		Approve:        &approve,
	})
}

// turn dials the backend, sends the opening request, and hands the socket to
// a reader goroutine that owns it until the turn ends.
func (c *Client) turn(ctx context.Context, req turnRequest) (<-chan agent.Event, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(req)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "open failed")
		return nil, fmt.Errorf("backend: marshal turn request: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "open failed")
		return nil, fmt.Errorf("%w: %v", agent.ErrBackendUnavailable, err)
	}

	events := make(chan agent.Event, eventBuffer)
	go c.readEvents(ctx, conn, events)
	return events, nil
}

// dial connects the turn socket, retrying transient failures with
// exponential backoff.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	opts := &websocket.DialOptions{
		HTTPClient: c.http,
		HTTPHeader: http.Header{"Authorization": {"Bearer " + c.token}},
	}

	var lastErr error
	backoff := c.dialBackoff
	for attempt := 0; attempt < c.dialAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		conn, _, err := websocket.Dial(ctx, c.baseURL+turnPath, opts)
		if err == nil {
			conn.SetReadLimit(maxFrameBytes)
			return conn, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w: %v", agent.ErrBackendUnavailable, lastErr)
}

// readEvents consumes frames until the turn is done, the stream errors, or
// the context ends. It closes the events channel when the turn is over.
func (c *Client) readEvents(ctx context.Context, conn *websocket.Conn, events chan<- agent.Event) {
	defer close(events)

	ctx, cancel := c.turnBound(ctx)
	defer cancel()

	go c.keepalive(ctx, conn)

	status := websocket.StatusNormalClosure
	defer func() { _ = conn.Close(status, "") }()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				// Backend hung up cleanly; the turn is simply over.
				return
			}
			status = websocket.StatusInternalError
			select {
			case events <- agent.Event{
				Type: agent.EventError,
				Err:  fmt.Errorf("backend: turn stream: %w", err),
			}:
			case <-ctx.Done():
			}
			return
		}

		var frame eventFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("backend: invalid frame", "error", err)
			continue
		}

		ev, ok := convertFrame(frame)
		if !ok {
			c.logger.Debug("backend: unknown event type", "type", frame.Type)
			continue
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}

		if ev.Type == agent.EventDone || ev.Type == agent.EventError {
			return
		}
	}
}

// turnBound applies the configured turn timeout on top of the caller's
// context.
func (c *Client) turnBound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.turnTimeout > 0 {
		return context.WithTimeout(ctx, c.turnTimeout)
	}
	return context.WithCancel(ctx)
}

// keepalive pings the open socket so intermediaries keep the connection
// alive during long silent stretches of a turn. Pong handling rides the
// reader's Read calls.
func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// ResolveLinkToken verifies a link token minted by the web app and returns
// the account it belongs to.
func (c *Client) ResolveLinkToken(ctx context.Context, token string) (agent.Account, error) {
	body, statusCode, err := c.postJSON(ctx, linkVerifyPath, linkVerifyRequest{Token: token})
	if err != nil {
		return agent.Account{}, fmt.Errorf("%w: %v", agent.ErrBackendUnavailable, err)
	}

	switch statusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound,
		http.StatusGone, http.StatusUnprocessableEntity:
		return agent.Account{}, agent.ErrInvalidLinkToken
	default:
		return agent.Account{}, fmt.Errorf("backend: link verify: unexpected status %d", statusCode)
	}

	var resp linkVerifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return agent.Account{}, fmt.Errorf("backend: decode link verify response: %w", err)
	}
	if resp.AccountID == "" {
		return agent.Account{}, fmt.Errorf("backend: link verify response missing account_id")
	}

	return agent.Account{ID: resp.AccountID, DisplayName: resp.DisplayName}, nil
}

// HealthCheck probes the backend's health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("backend: build health request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", agent.ErrBackendUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend: health: status %d", resp.StatusCode)
	}
	return nil
}

// postJSON sends an authenticated JSON POST and returns the bounded body
// and status code.
func (c *Client) postJSON(ctx context.Context, path string, payload any) ([]byte, int, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("backend: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("backend: read response: %w", err)
	}

	return body, resp.StatusCode, nil
}
