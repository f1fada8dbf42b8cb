package markup

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	htmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#39;",
	)
	// Code bodies only need the three characters the Bot API requires;
	// leaving quotes alone keeps snippets copy-pasteable.
	htmlCodeEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
)

// EscapeHTML escapes the characters Telegram's HTML parser treats specially.
func EscapeHTML(text string) string {
	return htmlEscaper.Replace(text)
}

func escapeHTMLCode(text string) string {
	return htmlCodeEscaper.Replace(text)
}

var (
	boldRe    = regexp.MustCompile(`(?s)\*\*(.+?)\*\*`)
	strikeRe  = regexp.MustCompile(`(?s)~~(.+?)~~`)
	linkRe    = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	headerRe  = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+)$`)
	bulletRe  = regexp.MustCompile(`(?m)^([ \t]*)[*-][ \t]+`)
	orderedRe = regexp.MustCompile(`(?m)^([ \t]*)(\d+)\.[ \t]+`)
	hrRe      = regexp.MustCompile(`(?m)^[ \t]*(?:-{3,}|={3,}|\*{3,})[ \t]*$`)
	blanksRe  = regexp.MustCompile(`\n{3,}`)
)

var horizontalRule = strings.Repeat("─", 15)

// markdownToHTML rewrites Markdown constructs into Telegram's HTML subset.
//
// Code spans are pulled out first and kept behind sentinels for the whole
// pass, so no later substitution can touch their content; they are restored
// right before the final trim. Everything in between operates on escaped
// text, in a fixed order so each stage sees only what earlier stages left.
func markdownToHTML(text string) string {
	text, spans := extractCodeSpans(text)
	text = EscapeHTML(text)
	text = convertTables(text, wrapPre)
	text = boldRe.ReplaceAllString(text, "<b>$1</b>")
	text = replaceItalic(text)
	text = strikeRe.ReplaceAllString(text, "<s>$1</s>")
	text = linkRe.ReplaceAllString(text, `<a href="$2">$1</a>`)
	text = headerRe.ReplaceAllString(text, "<b>$1</b>")
	text = bulletRe.ReplaceAllString(text, "${1}• ")
	text = orderedRe.ReplaceAllString(text, "$1$2. ")
	text = hrRe.ReplaceAllString(text, horizontalRule)
	text = blanksRe.ReplaceAllString(text, "\n\n")
	text = spans.restoreHTML(text)
	return strings.TrimSpace(text)
}

func wrapPre(body string) string {
	return "<pre>" + body + "</pre>"
}

// replaceItalic converts *span* into <i>span</i> under the emphasis
// heuristic: the delimiters must not touch a word character or another star
// on the outside, nor whitespace on the inside, and the span stays on one
// line. The scan is by hand because RE2 has no lookarounds; a star that
// fails as a closer is retried as the next opener, matching how a
// backtracking engine would advance.
func replaceItalic(s string) string {
	if !strings.Contains(s, "*") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 16)
	last := 0
	i := 0
	for i < len(s) {
		open := strings.IndexByte(s[i:], '*')
		if open < 0 {
			break
		}
		open += i
		if open+1 < len(s) && s[open+1] == '*' {
			// Star runs belong to bold markers already consumed.
			j := open
			for j < len(s) && s[j] == '*' {
				j++
			}
			i = j
			continue
		}
		closing := strings.IndexByte(s[open+1:], '*')
		if closing < 0 {
			break
		}
		closing += open + 1
		inner := s[open+1 : closing]
		if isItalicSpan(s, open, closing, inner) {
			b.WriteString(s[last:open])
			b.WriteString("<i>")
			b.WriteString(inner)
			b.WriteString("</i>")
			last = closing + 1
			i = closing + 1
		} else {
			i = closing
		}
	}
	b.WriteString(s[last:])
	return b.String()
}

func isItalicSpan(s string, open, closing int, inner string) bool {
	if inner == "" || strings.ContainsRune(inner, '\n') {
		return false
	}
	if open > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:open])
		if isWordRune(r) || r == '*' {
			return false
		}
	}
	if closing+1 < len(s) {
		r, _ := utf8.DecodeRuneInString(s[closing+1:])
		if isWordRune(r) || r == '*' {
			return false
		}
	}
	first, _ := utf8.DecodeRuneInString(inner)
	lastRune, _ := utf8.DecodeLastRuneInString(inner)
	return !unicode.IsSpace(first) && !unicode.IsSpace(lastRune)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
