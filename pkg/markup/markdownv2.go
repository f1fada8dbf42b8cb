package markup

import "strings"

// markdownV2Escaper backslash-escapes every character the MarkdownV2 dialect
// reserves, plus the backslash itself so user text cannot forge an escape.
var markdownV2Escaper = strings.NewReplacer(
	`\`, `\\`,
	"_", `\_`,
	"*", `\*`,
	"[", `\[`,
	"]", `\]`,
	"(", `\(`,
	")", `\)`,
	"~", `\~`,
	"`", "\\`",
	">", `\>`,
	"#", `\#`,
	"+", `\+`,
	"-", `\-`,
	"=", `\=`,
	"|", `\|`,
	"{", `\{`,
	"}", `\}`,
	".", `\.`,
	"!", `\!`,
)

// EscapeMarkdownV2 escapes all reserved MarkdownV2 characters in text.
func EscapeMarkdownV2(text string) string {
	return markdownV2Escaper.Replace(text)
}

// ToMarkdownV2 rewrites Markdown-ish text into Telegram's MarkdownV2
// dialect. Code spans pass through byte for byte, double-star bold becomes
// single-star bold before escaping, and every reserved character outside
// code is backslash-escaped. A sentinel that survives restoration reports
// ErrMalformedMarkup so the caller can degrade to plain text.
func ToMarkdownV2(text string) (string, error) {
	text, spans := extractCodeSpans(text)
	text = boldRe.ReplaceAllString(text, "*$1*")
	text = EscapeMarkdownV2(text)
	text = spans.restoreVerbatim(text, EscapeMarkdownV2)
	if hasLeftoverSentinel(text) {
		return "", ErrMalformedMarkup
	}
	return text, nil
}
