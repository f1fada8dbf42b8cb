package markup

import (
	"fmt"
	"regexp"
	"strings"
)

// Sentinel keys are framed by NUL bytes, which never occur in text produced
// by the agent, so a key cannot collide with ordinary message content.
const sentinelMark = "\x00"

var (
	fencedBlockRe = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)\\n?(.*?)```")
	inlineCodeRe  = regexp.MustCompile("`([^`\\n]+)`")
)

// codeBlock is one protected fenced block: its language tag, possibly empty,
// and its body with trailing whitespace already trimmed.
type codeBlock struct {
	lang string
	body string
}

// codeSpans is the placeholder table for one formatting pass. Fenced blocks
// are pulled out before inline spans so backticks inside a fence are never
// mistaken for inline code.
type codeSpans struct {
	blocks map[string]codeBlock
	inline map[string]string
	raw    map[string]string
	order  []string
}

// extractCodeSpans replaces every code span in text with a unique sentinel
// key and returns the rewritten text plus the table needed to restore them.
func extractCodeSpans(text string) (string, *codeSpans) {
	spans := &codeSpans{
		blocks: make(map[string]codeBlock),
		inline: make(map[string]string),
		raw:    make(map[string]string),
	}
	n := 0
	text = fencedBlockRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := fencedBlockRe.FindStringSubmatch(m)
		key := fmt.Sprintf("%scb%d%s", sentinelMark, n, sentinelMark)
		n++
		spans.blocks[key] = codeBlock{lang: sub[1], body: strings.TrimRight(sub[2], " \t\n")}
		spans.raw[key] = m
		spans.order = append(spans.order, key)
		return key
	})
	text = inlineCodeRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := inlineCodeRe.FindStringSubmatch(m)
		key := fmt.Sprintf("%sic%d%s", sentinelMark, n, sentinelMark)
		n++
		spans.inline[key] = sub[1]
		spans.raw[key] = m
		spans.order = append(spans.order, key)
		return key
	})
	return text, spans
}

// restoreHTML replaces each sentinel with its HTML rendering: <pre> for
// fenced blocks, with a language class when the fence declared one, and
// <code> for inline spans. Because the surrounding text has been escaped by
// the time restoration runs, the needle is the escaped form of the key.
func (s *codeSpans) restoreHTML(text string) string {
	for _, key := range s.order {
		needle := EscapeHTML(key)
		var rendered string
		if cb, ok := s.blocks[key]; ok {
			if cb.lang != "" {
				rendered = `<pre class="language-` + EscapeHTML(cb.lang) + `">` + escapeHTMLCode(cb.body) + "</pre>"
			} else {
				rendered = "<pre>" + escapeHTMLCode(cb.body) + "</pre>"
			}
		} else {
			rendered = "<code>" + escapeHTMLCode(s.inline[key]) + "</code>"
		}
		text = strings.Replace(text, needle, rendered, 1)
	}
	return text
}

// restoreVerbatim puts the original span text back exactly as it appeared in
// the input. escape must be the same transform that was applied to the text
// holding the sentinels, so the needle matches its current form.
func (s *codeSpans) restoreVerbatim(text string, escape func(string) string) string {
	for _, key := range s.order {
		text = strings.Replace(text, escape(key), s.raw[key], 1)
	}
	return text
}

// hasLeftoverSentinel reports whether any sentinel marker survived
// restoration. A leftover means the output would leak placeholder bytes, so
// callers must fall back to plain text.
func hasLeftoverSentinel(text string) bool {
	return strings.Contains(text, sentinelMark)
}
