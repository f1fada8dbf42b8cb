// Package telegram implements the Telegram Bot API channel for telegate.
//
// It provides a bidirectional bridge between Telegram and telegate's
// platform-agnostic message model, supporting:
//
//   - Inbound update conversion (text, photo, audio, voice, document, location, callback queries)
//   - Bot command extraction with @BotName addressing for group chats
//   - Outbound dispatch with HTML or MarkdownV2 formatting, automatic chunking
//     via channel.SplitMessage and plain-text retry when the API rejects markup
//   - Inline confirmation keyboards answered through callback queries
//   - Two delivery modes: long-polling (default) and webhook with
//     secret-token validation
//   - Streaming responses via editMessageText with configurable flush interval
//   - Typing indicators via sendChatAction
//
// The module registers itself as "channel.telegram" via init() and implements
// the full telegate module lifecycle: Configure → Provision → Validate → Start → Stop.
//
// No external Telegram library is used; the module communicates with the
// Bot API via raw net/http + encoding/json.
package telegram
