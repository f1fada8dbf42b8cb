package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/telegate/telegate/internal/agent"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// turnServer runs a backend double whose handler drives one turn socket.
// The handler receives the already-parsed opening request.
func turnServer(t *testing.T, handler func(ctx context.Context, conn *websocket.Conn, req turnRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != turnPath {
			http.NotFound(w, r)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

		ctx := r.Context()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Errorf("read turn request: %v", err)
			return
		}
		var req turnRequest
		if err := json.Unmarshal(data, &req); err != nil {
			t.Errorf("unmarshal turn request: %v", err)
			return
		}
		handler(ctx, conn, req)
	}))
}

func writeEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, frame eventFrame) {
	t.Helper()
	data, err := json.Marshal(frame)
	if err != nil {
		t.Errorf("marshal frame: %v", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Errorf("write frame: %v", err)
	}
}

func newTestClient(srvURL string) *Client {
	c := NewClient(srvURL, "test-token", discardLogger())
	c.dialBackoff = 5 * time.Millisecond
	return c
}

// collectEvents drains the stream until the backend closes it.
func collectEvents(t *testing.T, events <-chan agent.Event) []agent.Event {
	t.Helper()
	var got []agent.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %d so far", len(got))
		}
	}
}

func TestInvokeStreamsEvents(t *testing.T) {
	srv := turnServer(t, func(ctx context.Context, conn *websocket.Conn, _ turnRequest) {
		writeEvent(t, ctx, conn, eventFrame{Type: "delta", Text: "Hel"})
		writeEvent(t, ctx, conn, eventFrame{Type: "delta", Text: "lo"})
		writeEvent(t, ctx, conn, eventFrame{Type: "message", Text: "Hello"})
		writeEvent(t, ctx, conn, eventFrame{Type: "done", ConversationID: "conv-9"})
	})
	defer srv.Close()

	c := newTestClient(srv.URL)
	events, err := c.Invoke(context.Background(), agent.Request{AccountID: "acc-1", Text: "hi"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	got := collectEvents(t, events)
	wantTypes := []agent.EventType{agent.EventDelta, agent.EventDelta, agent.EventMessage, agent.EventDone}
	if len(got) != len(wantTypes) {
		t.Fatalf("got %d events, want %d", len(got), len(wantTypes))
	}
	for i, want := range wantTypes {
		if got[i].Type != want {
			t.Errorf("event %d type = %q, want %q", i, got[i].Type, want)
		}
	}
	if got[0].Text != "Hel" || got[1].Text != "lo" {
		t.Errorf("delta texts = %q, %q, want Hel, lo", got[0].Text, got[1].Text)
	}
	if got[2].Text != "Hello" {
		t.Errorf("message text = %q, want Hello", got[2].Text)
	}
	if got[3].ConversationID != "conv-9" {
		t.Errorf("done conversation ID = %q, want conv-9", got[3].ConversationID)
	}
}

func TestInvokeSendsTurnRequest(t *testing.T) {
	reqCh := make(chan turnRequest, 1)
	srv := turnServer(t, func(ctx context.Context, conn *websocket.Conn, req turnRequest) {
		reqCh <- req
		writeEvent(t, ctx, conn, eventFrame{Type: "done"})
	})
	defer srv.Close()

	c := newTestClient(srv.URL)
	events, err := c.Invoke(context.Background(), agent.Request{
		AccountID:      "acc-1",
		ConversationID: "conv-3",
		Text:           "deploy the thing",
		Metadata:       map[string]string{"chat_id": "100"},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	collectEvents(t, events)

	req := <-reqCh
	if req.Kind != turnKindInvoke {
		t.Errorf("kind = %q, want %q", req.Kind, turnKindInvoke)
	}
	if req.AccountID != "acc-1" {
		t.Errorf("account_id = %q, want acc-1", req.AccountID)
	}
	if req.ConversationID != "conv-3" {
		t.Errorf("conversation_id = %q, want conv-3", req.ConversationID)
	}
	if req.Text != "deploy the thing" {
		t.Errorf("text = %q, want deploy the thing", req.Text)
	}
	if req.Metadata["chat_id"] != "100" {
		t.Errorf("metadata = %v, want chat_id=100", req.Metadata)
	}
	if req.Approve != nil {
		t.Errorf("approve = %v on invoke, want absent", *req.Approve)
	}
}

func TestResumeSendsTurnRequest(t *testing.T) {
	reqCh := make(chan turnRequest, 1)
	srv := turnServer(t, func(ctx context.Context, conn *websocket.Conn, req turnRequest) {
		reqCh <- req
		writeEvent(t, ctx, conn, eventFrame{Type: "done"})
	})
	defer srv.Close()

	c := newTestClient(srv.URL)
	events, err := c.Resume(context.Background(), agent.ResumeRequest{
		AccountID:      "acc-1",
		ConversationID: "conv-3",
		ActionID:       "act-7",
		Approve:        true,
	})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	collectEvents(t, events)

	req := <-reqCh
	if req.Kind != turnKindResume {
		t.Errorf("kind = %q, want %q", req.Kind, turnKindResume)
	}
	if req.ActionID != "act-7" {
		t.Errorf("action_id = %q, want act-7", req.ActionID)
	}
	if req.Approve == nil || !*req.Approve {
		t.Errorf("approve = %v, want true", req.Approve)
	}
}

func TestTurnSocketBearerAuth(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		_, _, _ = conn.Read(r.Context())
		writeEvent(t, r.Context(), conn, eventFrame{Type: "done"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	events, err := c.Invoke(context.Background(), agent.Request{AccountID: "acc-1", Text: "hi"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	collectEvents(t, events)

	if auth, _ := gotAuth.Load().(string); auth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want %q", auth, "Bearer test-token")
	}
}

func TestPendingActionEvent(t *testing.T) {
	srv := turnServer(t, func(ctx context.Context, conn *websocket.Conn, _ turnRequest) {
		writeEvent(t, ctx, conn, eventFrame{
			Type: "pending_action",
			Text: "Delete post 42?",
			Action: &actionFrame{
				ID:     "act-1",
				Name:   "delete_post",
				Params: map[string]any{"post_id": "42"},
			},
		})
		writeEvent(t, ctx, conn, eventFrame{Type: "done"})
	})
	defer srv.Close()

	c := newTestClient(srv.URL)
	events, err := c.Invoke(context.Background(), agent.Request{AccountID: "acc-1", Text: "delete it"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	got := collectEvents(t, events)
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}

	ev := got[0]
	if ev.Type != agent.EventPendingAction {
		t.Fatalf("type = %q, want %q", ev.Type, agent.EventPendingAction)
	}
	if ev.Action == nil {
		t.Fatal("action is nil")
	}
	if ev.Action.ID != "act-1" {
		t.Errorf("action ID = %q, want act-1", ev.Action.ID)
	}
	if ev.Action.Name != "delete_post" {
		t.Errorf("action name = %q, want delete_post", ev.Action.Name)
	}
	if ev.Action.Params["post_id"] != "42" {
		t.Errorf("action params = %v, want post_id=42", ev.Action.Params)
	}
}

func TestMidStreamError(t *testing.T) {
	srv := turnServer(t, func(ctx context.Context, conn *websocket.Conn, _ turnRequest) {
		writeEvent(t, ctx, conn, eventFrame{Type: "delta", Text: "partial"})
		writeEvent(t, ctx, conn, eventFrame{Type: "error", Text: "Something broke", Error: "backend exploded"})
	})
	defer srv.Close()

	c := newTestClient(srv.URL)
	events, err := c.Invoke(context.Background(), agent.Request{AccountID: "acc-1", Text: "hi"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	got := collectEvents(t, events)
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}

	ev := got[1]
	if ev.Type != agent.EventError {
		t.Fatalf("type = %q, want %q", ev.Type, agent.EventError)
	}
	if ev.Err == nil || !strings.Contains(ev.Err.Error(), "backend exploded") {
		t.Errorf("err = %v, want to contain %q", ev.Err, "backend exploded")
	}
	if ev.Text != "Something broke" {
		t.Errorf("text = %q, want Something broke", ev.Text)
	}
}

func TestServerClosesWithoutDone(t *testing.T) {
	srv := turnServer(t, func(ctx context.Context, conn *websocket.Conn, _ turnRequest) {
		writeEvent(t, ctx, conn, eventFrame{Type: "delta", Text: "partial"})
		// Handler returns; the deferred close hangs up cleanly.
	})
	defer srv.Close()

	c := newTestClient(srv.URL)
	events, err := c.Invoke(context.Background(), agent.Request{AccountID: "acc-1", Text: "hi"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	got := collectEvents(t, events)
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Type != agent.EventDelta {
		t.Errorf("type = %q, want %q", got[0].Type, agent.EventDelta)
	}
}

func TestUnknownEventTypeSkipped(t *testing.T) {
	srv := turnServer(t, func(ctx context.Context, conn *websocket.Conn, _ turnRequest) {
		writeEvent(t, ctx, conn, eventFrame{Type: "telemetry", Text: "ignore me"})
		writeEvent(t, ctx, conn, eventFrame{Type: "message", Text: "the reply"})
		writeEvent(t, ctx, conn, eventFrame{Type: "done"})
	})
	defer srv.Close()

	c := newTestClient(srv.URL)
	events, err := c.Invoke(context.Background(), agent.Request{AccountID: "acc-1", Text: "hi"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	got := collectEvents(t, events)
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Type != agent.EventMessage || got[1].Type != agent.EventDone {
		t.Errorf("types = %q, %q, want message, done", got[0].Type, got[1].Type)
	}
}

func TestMalformedFrameSkipped(t *testing.T) {
	srv := turnServer(t, func(ctx context.Context, conn *websocket.Conn, _ turnRequest) {
		if err := conn.Write(ctx, websocket.MessageText, []byte("not json")); err != nil {
			t.Errorf("write garbage: %v", err)
		}
		writeEvent(t, ctx, conn, eventFrame{Type: "message", Text: "still here"})
		writeEvent(t, ctx, conn, eventFrame{Type: "done"})
	})
	defer srv.Close()

	c := newTestClient(srv.URL)
	events, err := c.Invoke(context.Background(), agent.Request{AccountID: "acc-1", Text: "hi"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	got := collectEvents(t, events)
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Text != "still here" {
		t.Errorf("message text = %q, want still here", got[0].Text)
	}
}

func TestDialFailureReturnsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Invoke(context.Background(), agent.Request{AccountID: "acc-1", Text: "hi"})
	if !errors.Is(err, agent.ErrBackendUnavailable) {
		t.Errorf("got error %v, want %v", err, agent.ErrBackendUnavailable)
	}
}

func TestDialRetriesThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusInternalServerError)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		_, _, _ = conn.Read(r.Context())
		writeEvent(t, r.Context(), conn, eventFrame{Type: "done"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	events, err := c.Invoke(context.Background(), agent.Request{AccountID: "acc-1", Text: "hi"})
	if err != nil {
		t.Fatalf("invoke after retry: %v", err)
	}
	collectEvents(t, events)

	if n := attempts.Load(); n != 2 {
		t.Errorf("dial attempts = %d, want 2", n)
	}
}

// --- HTTP endpoint tests ---

func TestResolveLinkToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != linkVerifyPath {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("Authorization = %q, want Bearer test-token", auth)
		}
		var req linkVerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Token != "AB12-CD34" {
			t.Errorf("token = %q, want AB12-CD34", req.Token)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(linkVerifyResponse{AccountID: "acc-1", DisplayName: "Alice"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	acct, err := c.ResolveLinkToken(context.Background(), "AB12-CD34")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if acct.ID != "acc-1" {
		t.Errorf("ID = %q, want acc-1", acct.ID)
	}
	if acct.DisplayName != "Alice" {
		t.Errorf("DisplayName = %q, want Alice", acct.DisplayName)
	}
}

func TestResolveLinkTokenRejected(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusGone} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))

		c := newTestClient(srv.URL)
		_, err := c.ResolveLinkToken(context.Background(), "bad-token")
		if !errors.Is(err, agent.ErrInvalidLinkToken) {
			t.Errorf("status %d: got error %v, want %v", status, err, agent.ErrInvalidLinkToken)
		}
		srv.Close()
	}
}

func TestResolveLinkTokenServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.ResolveLinkToken(context.Background(), "some-token")
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if errors.Is(err, agent.ErrInvalidLinkToken) {
		t.Error("server error must not read as an invalid token")
	}
}

func TestResolveLinkTokenUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.ResolveLinkToken(context.Background(), "some-token")
	if !errors.Is(err, agent.ErrBackendUnavailable) {
		t.Errorf("got error %v, want %v", err, agent.ErrBackendUnavailable)
	}
}

func TestHealthCheck(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != healthPath {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("healthy backend: %v", err)
	}

	status.Store(http.StatusServiceUnavailable)
	if err := c.HealthCheck(context.Background()); err == nil {
		t.Error("expected error for 503 response")
	}
}

func TestHealthCheckUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv.Close()

	c := newTestClient(srv.URL)
	err := c.HealthCheck(context.Background())
	if !errors.Is(err, agent.ErrBackendUnavailable) {
		t.Errorf("got error %v, want %v", err, agent.ErrBackendUnavailable)
	}
}
