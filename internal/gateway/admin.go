package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/telegate/telegate/internal/account"
	"github.com/telegate/telegate/internal/channel"
	"github.com/telegate/telegate/internal/core"
	"github.com/telegate/telegate/internal/security"
	"github.com/telegate/telegate/pkg/markup"
	"github.com/telegate/telegate/pkg/message"
)

// handleListLinks returns all account links as JSON.
func (g *Gateway) handleListLinks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.links == nil {
			writeError(w, http.StatusServiceUnavailable, "link store unavailable")
			return
		}

		links, err := g.links.List(r.Context())
		if err != nil {
			g.logger.Error("admin: list links failed", "error", err)
			writeError(w, http.StatusInternalServerError, "list failed")
			return
		}
		if links == nil {
			links = []account.Link{}
		}
		writeJSON(w, http.StatusOK, links)
	}
}

// handleDeleteLink removes the link for a chat, along with its conversation
// continuity. The user's next message starts the link flow over.
func (g *Gateway) handleDeleteLink() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.links == nil {
			writeError(w, http.StatusServiceUnavailable, "link store unavailable")
			return
		}

		chatID := chi.URLParam(r, "chatID")
		if chatID == "" {
			writeError(w, http.StatusBadRequest, "missing chat ID")
			return
		}

		if err := g.links.Delete(r.Context(), chatID); err != nil {
			if errors.Is(err, account.ErrLinkNotFound) {
				writeError(w, http.StatusNotFound, "link not found")
				return
			}
			g.logger.Error("admin: delete link failed", "chat_id", chatID, "error", err)
			writeError(w, http.StatusInternalServerError, "delete failed")
			return
		}

		// Conversation continuity dies with the link.
		if err := g.links.DeleteConversation(r.Context(), chatID); err != nil {
			g.logger.Warn("admin: delete conversation failed", "chat_id", chatID, "error", err)
		}

		if g.audit != nil {
			g.audit.Log(security.AuditEvent{
				Type:   security.EventUnlink,
				ChatID: chatID,
				Detail: "admin unlink",
			})
		}

		g.logger.Info("admin: link removed", "chat_id", chatID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// channelJSON is a serializable channel module snapshot.
type channelJSON struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// handleListChannels lists the channel modules compiled into this binary and
// whether each is live. A module that is registered but inactive was either
// not named in the config or failed to start.
func (g *Gateway) handleListChannels() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		active := make(map[string]bool)
		if g.channels != nil {
			for _, name := range g.channels.Channels() {
				active[name] = true
			}
		}

		mods := core.GetModulesByNamespace("channel")
		out := make([]channelJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, channelJSON{
				ID:     string(m.ID),
				Name:   m.ID.Name(),
				Active: active[m.ID.Name()],
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// notifyRequest is the body for POST /api/notify. Exactly one of AccountID
// and ChatID selects the recipient.
type notifyRequest struct {
	AccountID string `json:"account_id,omitempty"`
	ChatID    string `json:"chat_id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Text      string `json:"text"`
	Mode      string `json:"mode,omitempty"`
}

// handleNotify delivers a proactive message to a linked chat. This is the
// web application's push path: resolve the chat through the link store,
// render the markdown, and send through the channel dispatcher.
func (g *Gateway) handleNotify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.links == nil || g.channels == nil {
			writeError(w, http.StatusServiceUnavailable, "notify unavailable")
			return
		}

		var req notifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Text == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}

		if g.limiter != nil {
			if err := g.limiter.Allow("notify", ""); err != nil {
				writeError(w, http.StatusTooManyRequests, "notify rate exceeded")
				return
			}
		}

		link, status, msg := g.resolveRecipient(r.Context(), req)
		if status != 0 {
			writeError(w, status, msg)
			return
		}

		out, err := buildNotifyMessage(link.ChatID, req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		out.Channel, err = g.resolveChannel(req.Channel)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := g.channels.Send(r.Context(), out); err != nil {
			if errors.Is(err, channel.ErrNoChannel) {
				writeError(w, http.StatusNotFound, "channel not registered: "+out.Channel)
				return
			}
			g.logger.Error("admin: notify send failed",
				"channel", out.Channel,
				"chat_id", link.ChatID,
				"error", err,
			)
			writeError(w, http.StatusBadGateway, "send failed")
			return
		}

		if g.audit != nil {
			g.audit.Log(security.AuditEvent{
				Type:      security.EventNotify,
				Channel:   out.Channel,
				ChatID:    link.ChatID,
				AccountID: link.AccountID,
				Detail:    "admin notify",
			})
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "sent",
			"chat_id": link.ChatID,
		})
	}
}

// resolveRecipient maps the request's account_id or chat_id to a link.
// A non-zero status means resolution failed and carries the HTTP answer.
func (g *Gateway) resolveRecipient(ctx context.Context, req notifyRequest) (account.Link, int, string) {
	switch {
	case req.ChatID != "":
		link, err := g.links.Lookup(ctx, req.ChatID)
		if errors.Is(err, account.ErrLinkNotFound) {
			return account.Link{}, http.StatusNotFound, "chat is not linked"
		}
		if err != nil {
			g.logger.Error("admin: notify lookup failed", "chat_id", req.ChatID, "error", err)
			return account.Link{}, http.StatusInternalServerError, "lookup failed"
		}
		return link, 0, ""

	case req.AccountID != "":
		links, err := g.links.LookupByAccount(ctx, req.AccountID)
		if err != nil {
			g.logger.Error("admin: notify lookup failed", "account_id", req.AccountID, "error", err)
			return account.Link{}, http.StatusInternalServerError, "lookup failed"
		}
		if len(links) == 0 {
			return account.Link{}, http.StatusNotFound, "account has no linked chat"
		}
		// Most recent link wins when the account spans several chats.
		return links[0], 0, ""

	default:
		return account.Link{}, http.StatusBadRequest, "account_id or chat_id is required"
	}
}

// resolveChannel picks the outbound channel: an explicit request wins, and
// with a single registered channel the choice is implied.
func (g *Gateway) resolveChannel(name string) (string, error) {
	if name != "" {
		return name, nil
	}
	names := g.channels.Channels()
	if len(names) == 1 {
		return names[0], nil
	}
	return "", errors.New("channel is required when several are registered")
}

// buildNotifyMessage renders the notify text. Mode "" leaves the markdown to
// the channel's own formatter; "html" and "markdownv2" pre-render here and
// pin the parse mode.
func buildNotifyMessage(chatID string, req notifyRequest) (message.OutboundMessage, error) {
	out := message.OutboundMessage{
		Chat:   message.Chat{ID: chatID, Type: message.ChatDM},
		Blocks: []message.ContentBlock{message.NewTextBlock(req.Text)},
	}

	switch req.Mode {
	case "":
	case "html":
		fm := markup.Format(req.Text)
		out.Blocks = []message.ContentBlock{message.NewTextBlock(fm.Text)}
		out.Hints = &message.OutboundHints{ParseMode: string(fm.Mode)}
	case "markdownv2":
		fm := markup.FormatMarkdownV2(req.Text)
		out.Blocks = []message.ContentBlock{message.NewTextBlock(fm.Text)}
		out.Hints = &message.OutboundHints{ParseMode: string(fm.Mode)}
	default:
		return message.OutboundMessage{}, errors.New("unsupported mode: " + req.Mode)
	}

	return out, nil
}

// configReloader triggers a full configuration reload. Implemented by the
// reload handler registered as service "reload.handler".
type configReloader interface {
	ReloadNow(ctx context.Context) error
}

// handleReloadConfig triggers a hot-reload of the configuration.
func (g *Gateway) handleReloadConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, ok := g.appCtx.Service("reload.handler")
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "reload unavailable")
			return
		}
		reloader, ok := svc.(configReloader)
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "reload unavailable")
			return
		}

		if err := reloader.ReloadNow(r.Context()); err != nil {
			g.logger.Error("config reload failed", "error", err)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if g.audit != nil {
			g.audit.Log(security.AuditEvent{
				Type:   security.EventConfigChange,
				Detail: "admin reload",
			})
		}

		g.logger.Info("configuration reloaded")
		writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
