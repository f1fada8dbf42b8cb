package telegram

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/telegate/telegate/pkg/message"
)

// fileIDRef returns a reference URI for a Telegram file_id. The bridge does
// not download media; the reference preserves what arrived for hooks and the
// audit trail.
func fileIDRef(fileID string) string {
	return "tg://file_id/" + fileID
}

// convertInbound transforms a Telegram Update into a platform-agnostic
// InboundMessage. The update_id becomes the message ID so the dedupe journal
// has a key that is unique across chats; the chat-scoped message_id rides in
// MessageID for reply threading.
func convertInbound(update *Update, botUsername, channelName string) (message.InboundMessage, error) {
	if update.CallbackQuery != nil {
		return convertCallback(update, channelName)
	}

	msg := extractMessage(update)
	if msg == nil {
		return message.InboundMessage{}, fmt.Errorf("telegram: update %d contains no message", update.UpdateID)
	}

	raw, err := json.Marshal(update)
	if err != nil {
		return message.InboundMessage{}, fmt.Errorf("telegram: marshal update: %w", err)
	}

	inbound := message.InboundMessage{
		ID:        strconv.Itoa(update.UpdateID),
		MessageID: strconv.Itoa(msg.MessageID),
		Timestamp: time.Unix(int64(msg.Date), 0),
		Channel:   channelName,
		Sender:    convertSender(msg.From),
		Chat:      convertChat(msg.Chat),
		Raw:       raw,
	}

	if msg.MessageThreadID != 0 {
		inbound.ThreadID = strconv.Itoa(msg.MessageThreadID)
	}
	if msg.ReplyToMessage != nil {
		inbound.ReplyToID = strconv.Itoa(msg.ReplyToMessage.MessageID)
	}

	inbound.Blocks = convertBlocks(msg)
	inbound.Mentions = extractMentions(msg, botUsername)

	if cmd, args, mentioned := extractCommand(msg, botUsername); cmd != "" {
		inbound.Command = cmd
		inbound.Args = args
		if mentioned {
			if inbound.Mentions == nil {
				inbound.Mentions = &message.Mentions{}
			}
			inbound.Mentions.IsMentioned = true
		}
	}

	return inbound, nil
}

// convertCallback maps a callback_query update to an InboundMessage carrying
// a Callback. The message the keyboard is attached to supplies the chat.
func convertCallback(update *Update, channelName string) (message.InboundMessage, error) {
	cb := update.CallbackQuery
	if cb.Message == nil {
		// Keyboards sent via inline mode have no message reference; the
		// bridge never creates those, so there is nothing to route to.
		return message.InboundMessage{}, fmt.Errorf("telegram: callback %s carries no message", cb.ID)
	}

	raw, err := json.Marshal(update)
	if err != nil {
		return message.InboundMessage{}, fmt.Errorf("telegram: marshal update: %w", err)
	}

	return message.InboundMessage{
		ID:        strconv.Itoa(update.UpdateID),
		MessageID: strconv.Itoa(cb.Message.MessageID),
		Timestamp: time.Unix(int64(cb.Message.Date), 0),
		Channel:   channelName,
		Sender:    convertSender(cb.From),
		Chat:      convertChat(cb.Message.Chat),
		Callback: &message.Callback{
			ID:        cb.ID,
			Data:      cb.Data,
			MessageID: strconv.Itoa(cb.Message.MessageID),
		},
		Raw: raw,
	}, nil
}

// extractMessage returns the actual message from an Update, checking
// Message, EditedMessage, and ChannelPost in order.
func extractMessage(update *Update) *Message {
	if update.Message != nil {
		return update.Message
	}
	if update.EditedMessage != nil {
		return update.EditedMessage
	}
	return update.ChannelPost
}

// convertSender maps a Telegram User to a platform-agnostic Sender.
func convertSender(user *User) message.Sender {
	if user == nil {
		return message.Sender{}
	}
	displayName := user.FirstName
	if user.LastName != "" {
		displayName += " " + user.LastName
	}
	return message.Sender{
		ID:          strconv.FormatInt(user.ID, 10),
		Username:    user.Username,
		DisplayName: displayName,
	}
}

// convertChat maps a Telegram Chat to a platform-agnostic Chat.
func convertChat(chat Chat) message.Chat {
	return message.Chat{
		ID:    strconv.FormatInt(chat.ID, 10),
		Type:  mapChatType(chat.Type),
		Title: chat.Title,
	}
}

// mapChatType converts Telegram chat type strings to message.ChatType.
func mapChatType(tgType string) message.ChatType {
	switch tgType {
	case "private":
		return message.ChatDM
	case "group", "supergroup":
		return message.ChatGroup
	case "channel":
		return message.ChatBroadcast
	default:
		return message.ChatGroup
	}
}

// convertBlocks builds content blocks from a Telegram message. Media blocks
// carry tg://file_id/ references. A media-only message yields no text block
// and is answered with the unsupported-update notice downstream.
func convertBlocks(msg *Message) []message.ContentBlock {
	var blocks []message.ContentBlock

	switch {
	case len(msg.Photo) > 0:
		largest := msg.Photo[len(msg.Photo)-1]
		blocks = append(blocks, message.NewImageBlock(fileIDRef(largest.FileID), ""))
	case msg.Audio != nil:
		blocks = append(blocks, message.NewAudioBlock(fileIDRef(msg.Audio.FileID), msg.Audio.MIMEType, false))
	case msg.Voice != nil:
		blocks = append(blocks, message.NewAudioBlock(fileIDRef(msg.Voice.FileID), msg.Voice.MIMEType, true))
	case msg.Document != nil:
		blocks = append(blocks, message.NewFileBlock(fileIDRef(msg.Document.FileID), msg.Document.MIMEType, msg.Document.FileName))
	case msg.Location != nil:
		blocks = append(blocks, message.NewLocationBlock(msg.Location.Latitude, msg.Location.Longitude))
	}

	// Append caption as a text block after media blocks.
	if msg.Caption != "" {
		blocks = append(blocks, message.NewTextBlock(msg.Caption))
	}

	// If no media was found, use the text field.
	if len(blocks) == 0 && msg.Text != "" {
		blocks = append(blocks, message.NewTextBlock(msg.Text))
	}

	return blocks
}

// extractCommand pulls a leading slash command out of the message using the
// bot_command entity. Returns the raw command token (with any @Bot suffix),
// the remaining text, and whether the command explicitly targeted this bot.
//
// A command addressed to a different bot ("/start@OtherBot") is not a
// command for us; the text then flows through as plain text.
func extractCommand(msg *Message, botUsername string) (cmd, args string, mentioned bool) {
	text := msg.Text
	if text == "" {
		return "", "", false
	}

	for _, ent := range msg.Entities {
		if ent.Type != "bot_command" || ent.Offset != 0 {
			continue
		}

		token := extractEntityText(text, ent.Offset, ent.Length)
		if token == "" {
			return "", "", false
		}

		if _, target, ok := strings.Cut(token, "@"); ok {
			if !strings.EqualFold(target, botUsername) {
				return "", "", false
			}
			mentioned = true
		}

		rest := entityTail(text, ent.Offset+ent.Length)
		return token, strings.TrimSpace(rest), mentioned
	}

	return "", "", false
}

// extractMentions scans message entities for mentions and detects bot mentions.
func extractMentions(msg *Message, botUsername string) *message.Mentions {
	entities := msg.Entities
	if entities == nil {
		entities = msg.CaptionEntities
	}
	if len(entities) == 0 {
		return nil
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	var mentions message.Mentions

	for _, ent := range entities {
		switch ent.Type {
		case "mention":
			// @username mentions carry no user object; take the name from the text.
			username := extractEntityText(text, ent.Offset, ent.Length)
			username = strings.TrimPrefix(username, "@")
			if username != "" {
				mentions.IDs = append(mentions.IDs, username)
				if strings.EqualFold(username, botUsername) {
					mentions.IsMentioned = true
				}
			}
		case "text_mention":
			// Mentions for users without usernames carry the User directly.
			if ent.User != nil {
				mentions.IDs = append(mentions.IDs, strconv.FormatInt(ent.User.ID, 10))
			}
		}
	}

	if mentions.IsEmpty() {
		return nil
	}
	return &mentions
}

// extractEntityText safely extracts a substring from text using UTF-16
// offsets, which is what Telegram uses for entity offsets and lengths.
// Slicing the Go string directly would cut non-BMP characters (emoji) in half.
func extractEntityText(text string, offset, length int) string {
	encoded := utf16.Encode([]rune(text))
	if offset >= len(encoded) {
		return ""
	}
	end := offset + length
	if end > len(encoded) {
		end = len(encoded)
	}
	return string(utf16.Decode(encoded[offset:end]))
}

// entityTail returns the text after the given UTF-16 offset.
func entityTail(text string, offset int) string {
	encoded := utf16.Encode([]rune(text))
	if offset >= len(encoded) {
		return ""
	}
	return string(utf16.Decode(encoded[offset:]))
}
