package markup

import (
	"regexp"
	"strings"
)

var (
	stripFenceRe     = regexp.MustCompile("```[A-Za-z0-9_+-]*\\n?")
	stripHeaderRe    = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	stripSeparatorRe = regexp.MustCompile(`(?m)^\|[-: |]+\|[ \t]*$\n?`)
	stripRuleRe      = regexp.MustCompile(`(?m)^[ \t]*(?:-{3,}|={3,})[ \t]*$\n?`)
	stripBlanksRe    = regexp.MustCompile(`\n{3,}`)
)

// Strip removes all markup constructs and returns plain text. It is the
// fallback of last resort: it accepts any input, never fails, and its output
// is always safe to send with no parse mode.
func Strip(message string) string {
	text := stripFenceRe.ReplaceAllString(message, "")
	text = strings.ReplaceAll(text, "`", "")
	text = strings.ReplaceAll(text, "*", "")
	text = stripHeaderRe.ReplaceAllString(text, "")
	text = stripSeparatorRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "|", " ")
	text = stripRuleRe.ReplaceAllString(text, "")
	text = stripBlanksRe.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)
	return text
}
