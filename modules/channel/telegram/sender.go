package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/telegate/telegate/internal/channel"
	"github.com/telegate/telegate/pkg/markup"
	"github.com/telegate/telegate/pkg/message"
)

var tracer = otel.Tracer("telegate/telegram")

// senderMetrics is the subset of the gateway metrics service the channel
// records into. Resolved at Start; nil when the gateway module is absent.
type senderMetrics interface {
	MessageSent(channel string)
	MessageFailed(channel string)
	MarkupFallback(channel string)
}

// sendOutbound sends an OutboundMessage through the Telegram API. The raw
// markdown is split first so each chunk's markup is self-contained, then
// every chunk is formatted and sent under the configured parse mode.
func (t *Telegram) sendOutbound(ctx context.Context, msg message.OutboundMessage) error {
	ctx, span := tracer.Start(ctx, "telegram.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("chat_id", msg.Chat.ID),
		attribute.Int("blocks", len(msg.Blocks)),
	)

	chunks := channel.SplitMessage(msg, channel.ChunkConfig{
		MaxLength:      t.config.MaxMessageLength,
		PreserveBlocks: true,
	})

	chatID, err := strconv.ParseInt(msg.Chat.ID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat ID %q: %w", msg.Chat.ID, err)
	}

	for _, chunk := range chunks {
		if err := t.sendChunk(ctx, chunk, chatID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "send failed")
			return err
		}
	}

	return nil
}

// sendChunk sends a single chunk's text blocks. Fail-fast: if one block
// fails, the rest are skipped so partial delivery is never reported as
// success.
func (t *Telegram) sendChunk(ctx context.Context, chunk message.OutboundMessage, chatID int64) error {
	threadID := parseOptionalInt(chunk.ThreadID, t.logger)
	replyToID := parseOptionalInt(chunk.ReplyToID, t.logger)
	keyboard := toInlineKeyboard(chunk.Keyboard)

	preRendered := ""
	disablePreview := false
	disableNotification := false
	if chunk.Hints != nil {
		preRendered = chunk.Hints.ParseMode
		disablePreview = chunk.Hints.DisablePreview
		disableNotification = chunk.Hints.DisableNotification
	}

	lastText := lastTextBlock(chunk.Blocks)

	for i, block := range chunk.Blocks {
		if block.Type != message.BlockText {
			// The bridge moves text; media arrives inbound only.
			t.logger.Debug("skipping non-text outbound block",
				"type", block.Type,
				"chat_id", chatID,
			)
			continue
		}

		text := block.Text
		mode := preRendered
		if mode == "" {
			formatted := t.format(text)
			text = formatted.Text
			mode = string(formatted.Mode)
		}

		req := SendMessageRequest{
			ChatID:                chatID,
			Text:                  text,
			ParseMode:             mode,
			MessageThreadID:       threadID,
			ReplyToMessageID:      replyToID,
			DisableWebPagePreview: disablePreview,
			DisableNotification:   disableNotification,
		}
		// The keyboard rides on the last text block, under the text the
		// user responds to.
		if i == lastText {
			req.ReplyMarkup = keyboard
		}

		if _, err := t.client.SendMessage(ctx, req); err != nil {
			retried, retryErr := t.retryStripped(ctx, req, block.Text, err)
			if !retried {
				t.countFailed()
				return fmt.Errorf("telegram: send text block: %w", err)
			}
			if retryErr != nil {
				t.countFailed()
				return fmt.Errorf("telegram: send stripped fallback: %w", retryErr)
			}
		}
		t.countSent()
	}

	return nil
}

// retryStripped re-sends a message as plain text after the API rejected its
// markup. raw is the pre-formatting markdown when available; falling back to
// stripping the sent text covers pre-rendered payloads. Returns false when
// the error was not a markup rejection.
func (t *Telegram) retryStripped(ctx context.Context, req SendMessageRequest, raw string, sendErr error) (bool, error) {
	var apiErr *APIError
	if !errors.As(sendErr, &apiErr) || !apiErr.IsMarkupRejection() {
		return false, nil
	}

	source := raw
	if source == "" {
		source = req.Text
	}

	t.logger.Warn("markup rejected by API, retrying as plain text",
		"chat_id", req.ChatID,
		"parse_mode", req.ParseMode,
		"error", sendErr,
	)
	t.countMarkupFallback()

	req.Text = markup.Strip(source)
	req.ParseMode = ""
	_, err := t.client.SendMessage(ctx, req)
	return true, err
}

// format renders raw markdown in the configured dialect.
func (t *Telegram) format(text string) markup.FormattedMessage {
	if t.config.markupMode() == markup.ModeMarkdownV2 {
		return markup.FormatMarkdownV2(text)
	}
	return markup.Format(text)
}

func (t *Telegram) countSent() {
	if t.metrics != nil {
		t.metrics.MessageSent(channelName)
	}
}

func (t *Telegram) countFailed() {
	if t.metrics != nil {
		t.metrics.MessageFailed(channelName)
	}
}

func (t *Telegram) countMarkupFallback() {
	if t.metrics != nil {
		t.metrics.MarkupFallback(channelName)
	}
}

// toInlineKeyboard converts the platform-neutral keyboard to the API shape.
// Returns nil for an empty keyboard so the field is omitted from JSON.
func toInlineKeyboard(kb message.Keyboard) *InlineKeyboardMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, InlineKeyboardButton{
				Text:         b.Label,
				CallbackData: b.Data,
			})
		}
		rows = append(rows, buttons)
	}
	return &InlineKeyboardMarkup{InlineKeyboard: rows}
}

// lastTextBlock returns the index of the last text block, or -1.
func lastTextBlock(blocks []message.ContentBlock) int {
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].Type == message.BlockText {
			return i
		}
	}
	return -1
}

// parseOptionalInt converts a string to int, returning 0 for empty strings.
// Logs a warning if the string is non-empty but not a valid integer.
func parseOptionalInt(s string, logger *slog.Logger) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		logger.Warn("parseOptionalInt: invalid integer value",
			"value", s,
			"error", err,
		)
		return 0
	}
	return v
}
