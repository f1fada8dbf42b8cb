package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/telegate/telegate/internal/channel"
	"github.com/telegate/telegate/internal/gateway"
	"github.com/telegate/telegate/pkg/message"
)

// WebhookReceiver processes incoming Telegram webhook payloads.
// It implements gateway.WebhookHandler.
type WebhookReceiver struct {
	inbox       func(message.InboundMessage) error
	allowList   *channel.AllowList
	logger      *slog.Logger
	botUsername string
	channelName string
	secret      string
}

// NewWebhookReceiver creates a new WebhookReceiver.
func NewWebhookReceiver(inbox func(message.InboundMessage) error, allowList *channel.AllowList, logger *slog.Logger, botUsername, channelName, secret string) *WebhookReceiver {
	return &WebhookReceiver{
		inbox:       inbox,
		allowList:   allowList,
		logger:      logger,
		botUsername: botUsername,
		channelName: channelName,
		secret:      secret,
	}
}

// HandleWebhook processes a webhook payload delivered by the gateway
// dispatcher. It validates the Telegram secret token header in constant
// time, converts the update, checks the allow list, and submits inbound.
//
// Only an authentication failure is returned as an error. Every outcome
// after that, skipped, denied, or rejected by the dispatcher, yields nil so
// the gateway answers 200 and Telegram does not redeliver the update; the
// dedupe journal would drop a redelivery anyway.
func (w *WebhookReceiver) HandleWebhook(_ context.Context, _ string, body []byte, headers http.Header) error {
	if w.secret != "" {
		token := headers.Get("X-Telegram-Bot-Api-Secret-Token")
		if subtle.ConstantTimeCompare([]byte(w.secret), []byte(token)) != 1 {
			return fmt.Errorf("telegram: invalid webhook secret token: %w", gateway.ErrUnauthorized)
		}
	}

	var update Update
	if err := json.Unmarshal(body, &update); err != nil {
		w.logger.Warn("webhook payload is not a valid update", "error", err)
		return nil
	}

	msg, err := convertInbound(&update, w.botUsername, w.channelName)
	if err != nil {
		w.logger.Debug("skipping webhook update", "update_id", update.UpdateID, "reason", err)
		return nil
	}

	if !w.allowList.IsAllowed(msg) {
		w.logger.Debug("webhook update denied by allow list",
			"update_id", update.UpdateID,
			"sender", msg.Sender.ID,
			"chat", msg.Chat.ID,
		)
		return nil
	}

	if err := w.inbox(msg); err != nil {
		w.logger.Warn("webhook update not accepted by dispatcher",
			"update_id", update.UpdateID,
			"error", err,
		)
	}
	return nil
}
