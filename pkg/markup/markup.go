// Package markup converts the Markdown subset emitted by the agent backend
// into Telegram-compatible markup: the Bot API's HTML subset, its MarkdownV2
// escaping dialect, or plain text when conversion is unsafe.
//
// Formatting is pure text rewriting with no I/O and no shared state; every
// function is safe for concurrent use and always returns synchronously.
package markup

import (
	"errors"
	"strings"
)

// Mode identifies the markup dialect a formatted text conforms to. It maps
// directly onto the Bot API's parse_mode values; ModeNone sends plain text.
type Mode string

// Supported markup modes.
const (
	ModeNone       Mode = ""
	ModeHTML       Mode = "HTML"
	ModeMarkdownV2 Mode = "MarkdownV2"
)

// FormattedMessage is an immutable pair of rendered text and the markup mode
// it conforms to. Produced fresh per input, never mutated.
type FormattedMessage struct {
	Text string
	Mode Mode
}

// ErrMalformedMarkup reports that the escaping pipeline could not produce a
// well-formed result. Callers recover by degrading to Strip output with
// ModeNone; the error never reaches the end user.
var ErrMalformedMarkup = errors.New("markup: malformed markup")

// emptyFallback replaces empty or whitespace-only agent output.
const emptyFallback = "(empty response)"

// Format converts Markdown-ish text into Telegram's HTML subset.
//
// Empty or whitespace-only input yields the fixed fallback text with no
// markup. If sentinel restoration leaves a placeholder behind, the result
// degrades to stripped plain text instead of risking a malformed payload.
func Format(message string) FormattedMessage {
	if strings.TrimSpace(message) == "" {
		return FormattedMessage{Text: emptyFallback, Mode: ModeNone}
	}
	text := markdownToHTML(message)
	if hasLeftoverSentinel(text) {
		return FormattedMessage{Text: Strip(message), Mode: ModeNone}
	}
	return FormattedMessage{Text: text, Mode: ModeHTML}
}

// FormatMarkdownV2 converts Markdown-ish text into the MarkdownV2 dialect.
//
// Pipe-tables are rendered to a monospace grid inside a fenced block first,
// since MarkdownV2 supports triple-backtick fences. Any conversion failure
// falls back to stripped plain text with no markup mode.
func FormatMarkdownV2(message string) FormattedMessage {
	if strings.TrimSpace(message) == "" {
		return FormattedMessage{Text: emptyFallback, Mode: ModeNone}
	}
	text := convertTables(message, wrapFence)
	converted, err := ToMarkdownV2(text)
	if err != nil {
		return FormattedMessage{Text: Strip(message), Mode: ModeNone}
	}
	return FormattedMessage{Text: converted, Mode: ModeMarkdownV2}
}
