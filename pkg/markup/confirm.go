package markup

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"
)

const (
	// inlineValueLimit is the widest single-line rendering of a nested
	// value before it switches to an indented sub-block.
	inlineValueLimit = 60
	paramIndent      = "  "
)

// RenderConfirmation renders a pending write action as a prompt the user can
// approve or reject: a header naming the action, then its parameters as
// indented bullets. Keys are sorted so the same action always renders the
// same way. Nested maps stay on one line while short and expand into a
// sub-block once their inline form exceeds the width limit.
func RenderConfirmation(action string, params map[string]any, mode Mode) string {
	var b strings.Builder
	switch mode {
	case ModeHTML:
		b.WriteString("<b>Confirm action:</b> <code>")
		b.WriteString(escapeHTMLCode(action))
		b.WriteString("</code>")
	case ModeMarkdownV2:
		b.WriteString("*Confirm action:* `")
		b.WriteString(action)
		b.WriteString("`")
	default:
		b.WriteString("Confirm action: ")
		b.WriteString(action)
	}
	if len(params) > 0 {
		b.WriteByte('\n')
		writeParams(&b, params, 0, mode)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderStep renders an intermediate tool-call notice emitted while the
// agent is still working, de-emphasized relative to the final answer.
func RenderStep(action string, params map[string]any, mode Mode) string {
	detail := ""
	if len(params) > 0 {
		detail = " " + inlineValue(params)
	}
	switch mode {
	case ModeHTML:
		return "<i>" + EscapeHTML("→ "+action+detail) + "</i>"
	case ModeMarkdownV2:
		return "_" + EscapeMarkdownV2("→ "+action+detail) + "_"
	default:
		return "→ " + action + detail
	}
}

func writeParams(b *strings.Builder, params map[string]any, depth int, mode Mode) {
	indent := strings.Repeat(paramIndent, depth+1)
	for _, key := range slices.Sorted(maps.Keys(params)) {
		value := params[key]
		if nested, ok := value.(map[string]any); ok {
			inline := inlineValue(nested)
			if utf8.RuneCountInString(inline) <= inlineValueLimit {
				fmt.Fprintf(b, "%s• %s: %s\n", indent, escapeFor(mode, key), escapeFor(mode, inline))
				continue
			}
			fmt.Fprintf(b, "%s• %s:\n", indent, escapeFor(mode, key))
			writeParams(b, nested, depth+1, mode)
			continue
		}
		fmt.Fprintf(b, "%s• %s: %s\n", indent, escapeFor(mode, key), escapeFor(mode, scalarString(value)))
	}
}

// inlineValue renders a nested map as a single JSON-like line, keys sorted.
func inlineValue(m map[string]any) string {
	parts := make([]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if nested, ok := m[k].(map[string]any); ok {
			parts = append(parts, k+": "+inlineValue(nested))
		} else {
			parts = append(parts, k+": "+scalarString(m[k]))
		}
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func scalarString(v any) string {
	switch s := v.(type) {
	case nil:
		return "null"
	case string:
		return s
	}
	return fmt.Sprintf("%v", v)
}

func escapeFor(mode Mode, s string) string {
	switch mode {
	case ModeHTML:
		return EscapeHTML(s)
	case ModeMarkdownV2:
		return EscapeMarkdownV2(s)
	default:
		return s
	}
}
