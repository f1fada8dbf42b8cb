package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/telegate/telegate/pkg/markup"
	"github.com/telegate/telegate/pkg/message"
)

func TestConfigValidate_InvalidToken(t *testing.T) {
	cfg := Config{Token: "invalid-token", Mode: "polling"}
	cfg.defaults()
	if err := cfg.validate(); err == nil {
		t.Error("validate() should reject invalid token format")
	}
}

func TestConfigValidate_ValidToken(t *testing.T) {
	cfg := Config{Token: "123456:ABC-DEF_ghijk", Mode: "polling"}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		t.Errorf("validate() unexpected error: %v", err)
	}
}

func TestConfigValidate_InvalidAPIURL(t *testing.T) {
	cfg := Config{Token: "123:abc", APIURL: "not-a-url"}
	cfg.defaults()
	if err := cfg.validate(); err == nil {
		t.Error("validate() should reject invalid API URL")
	}
}

func TestConfigValidate_InvalidMarkupMode(t *testing.T) {
	cfg := Config{Token: "123:abc", MarkupMode: "Markdown"}
	cfg.defaults()
	if err := cfg.validate(); err == nil {
		t.Error("validate() should reject legacy Markdown mode")
	}
}

func TestConfigValidate_PollingTimeoutBounds(t *testing.T) {
	cfg := Config{Token: "123:abc", PollingTimeout: 60}
	cfg.defaults()
	if err := cfg.validate(); err == nil {
		t.Error("validate() should reject polling_timeout > 50")
	}
}

func TestConfigValidate_MaxMessageLengthBounds(t *testing.T) {
	cfg := Config{Token: "123:abc", MaxMessageLength: 10000}
	cfg.defaults()
	if err := cfg.validate(); err == nil {
		t.Error("validate() should reject max_message_length > 4096")
	}
}

func TestConfigValidate_StreamFlushIntervalBounds(t *testing.T) {
	cfg := Config{Token: "123:abc", StreamFlushInterval: 1}
	cfg.defaults() // won't override since > 0
	if err := cfg.validate(); err == nil {
		t.Error("validate() should reject stream_flush_interval < 100ms")
	}
}

// channelAPIServer records Bot API calls relevant to the Channel operations.
type channelAPIServer struct {
	mu        sync.Mutex
	edits     []EditMessageTextRequest
	markups   []EditMessageReplyMarkupRequest
	callbacks []AnswerCallbackQueryRequest
	actions   []sendChatActionRequest
}

func (s *channelAPIServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		defer s.mu.Unlock()

		switch {
		case strings.HasSuffix(r.URL.Path, "/editMessageText"):
			var req EditMessageTextRequest
			_ = json.Unmarshal(body, &req)
			s.edits = append(s.edits, req)
			writeJSON(t, w, APIResponse[Message]{
				OK:     true,
				Result: Message{MessageID: req.MessageID, Chat: Chat{ID: req.ChatID, Type: "private"}},
			})

		case strings.HasSuffix(r.URL.Path, "/editMessageReplyMarkup"):
			var req EditMessageReplyMarkupRequest
			_ = json.Unmarshal(body, &req)
			s.markups = append(s.markups, req)
			writeJSON(t, w, APIResponse[Message]{
				OK:     true,
				Result: Message{MessageID: req.MessageID, Chat: Chat{ID: req.ChatID, Type: "private"}},
			})

		case strings.HasSuffix(r.URL.Path, "/answerCallbackQuery"):
			var req AnswerCallbackQueryRequest
			_ = json.Unmarshal(body, &req)
			s.callbacks = append(s.callbacks, req)
			writeJSON(t, w, APIResponse[bool]{OK: true, Result: true})

		case strings.HasSuffix(r.URL.Path, "/sendChatAction"):
			var req sendChatActionRequest
			_ = json.Unmarshal(body, &req)
			s.actions = append(s.actions, req)
			writeJSON(t, w, APIResponse[bool]{OK: true, Result: true})

		default:
			t.Errorf("unexpected API call: %s", r.URL.Path)
		}
	}
}

func TestEditMessage_TextAndKeyboard(t *testing.T) {
	api := &channelAPIServer{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	tg := newSenderTelegram(srv.URL)

	chat := message.Chat{ID: "100", Type: message.ChatDM}
	fm := markup.FormattedMessage{Text: "<b>done</b>", Mode: markup.ModeHTML}
	err := tg.EditMessage(context.Background(), chat, "7", fm, message.ConfirmKeyboard("act-1"))
	if err != nil {
		t.Fatalf("EditMessage() error: %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.edits) != 1 {
		t.Fatalf("editMessageText calls = %d, want 1", len(api.edits))
	}
	edit := api.edits[0]
	if edit.ChatID != 100 || edit.MessageID != 7 {
		t.Errorf("edit target = chat %d message %d, want 100/7", edit.ChatID, edit.MessageID)
	}
	if edit.Text != "<b>done</b>" {
		t.Errorf("Text = %q, want %q", edit.Text, "<b>done</b>")
	}
	if edit.ParseMode != "HTML" {
		t.Errorf("ParseMode = %q, want %q", edit.ParseMode, "HTML")
	}
	if edit.ReplyMarkup == nil {
		t.Error("ReplyMarkup = nil, want keyboard")
	}
}

func TestEditMessage_KeyboardOnly(t *testing.T) {
	api := &channelAPIServer{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	tg := newSenderTelegram(srv.URL)

	chat := message.Chat{ID: "100", Type: message.ChatDM}
	// Empty text edits only the keyboard; an empty keyboard removes it.
	err := tg.EditMessage(context.Background(), chat, "7", markup.FormattedMessage{}, nil)
	if err != nil {
		t.Fatalf("EditMessage() error: %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.edits) != 0 {
		t.Errorf("editMessageText calls = %d, want 0", len(api.edits))
	}
	if len(api.markups) != 1 {
		t.Fatalf("editMessageReplyMarkup calls = %d, want 1", len(api.markups))
	}
	if api.markups[0].ReplyMarkup != nil {
		t.Error("ReplyMarkup should be nil to remove the keyboard")
	}
}

func TestEditMessage_InvalidIDs(t *testing.T) {
	tg := newSenderTelegram("http://127.0.0.1:0")

	err := tg.EditMessage(context.Background(), message.Chat{ID: "abc"}, "7", markup.FormattedMessage{Text: "x"}, nil)
	if err == nil {
		t.Error("EditMessage() should reject a non-numeric chat ID")
	}

	err = tg.EditMessage(context.Background(), message.Chat{ID: "100"}, "abc", markup.FormattedMessage{Text: "x"}, nil)
	if err == nil {
		t.Error("EditMessage() should reject a non-numeric message ID")
	}
}

func TestAnswerCallback(t *testing.T) {
	api := &channelAPIServer{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	tg := newSenderTelegram(srv.URL)

	if err := tg.AnswerCallback(context.Background(), "cb-5", "Confirmed"); err != nil {
		t.Fatalf("AnswerCallback() error: %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.callbacks) != 1 {
		t.Fatalf("answerCallbackQuery calls = %d, want 1", len(api.callbacks))
	}
	if api.callbacks[0].CallbackQueryID != "cb-5" {
		t.Errorf("CallbackQueryID = %q, want %q", api.callbacks[0].CallbackQueryID, "cb-5")
	}
	if api.callbacks[0].Text != "Confirmed" {
		t.Errorf("Text = %q, want %q", api.callbacks[0].Text, "Confirmed")
	}
}

func TestSendTyping(t *testing.T) {
	api := &channelAPIServer{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	tg := newSenderTelegram(srv.URL)

	if err := tg.SendTyping(context.Background(), message.Chat{ID: "100", Type: message.ChatDM}); err != nil {
		t.Fatalf("SendTyping() error: %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.actions) != 1 {
		t.Fatalf("sendChatAction calls = %d, want 1", len(api.actions))
	}
	if api.actions[0].Action != "typing" {
		t.Errorf("Action = %q, want %q", api.actions[0].Action, "typing")
	}

	if err := tg.SendTyping(context.Background(), message.Chat{ID: "abc"}); err == nil {
		t.Error("SendTyping() should reject a non-numeric chat ID")
	}
}
