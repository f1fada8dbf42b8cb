package markup

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// tableRe matches a pipe-table block: a header row, a separator row made of
// dashes, colons, pipes and spaces, and at least one data row. Every row is
// delimited by leading and trailing pipes on its own line.
var tableRe = regexp.MustCompile(`(?m)^\|.+\|[ \t]*\n\|[-: |]+\|[ \t]*\n(?:\|.+\|[ \t]*\n?)+`)

var tableSeparatorRe = regexp.MustCompile(`^[-: |]+$`)

// convertTables rewrites every pipe-table in text into a monospace grid and
// wraps it with the given decorator. A block that parses to fewer than two
// rows is left exactly as it was.
func convertTables(text string, wrap func(body string) string) string {
	return tableRe.ReplaceAllStringFunc(text, func(block string) string {
		trailing := ""
		if strings.HasSuffix(block, "\n") {
			trailing = "\n"
		}
		rows := parseTableRows(block)
		if len(rows) < 2 {
			return block
		}
		return wrap(renderGrid(rows)) + trailing
	})
}

// parseTableRows splits a matched block into cell rows, dropping separator
// rows and trimming each cell.
func parseTableRows(block string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(strings.TrimRight(block, "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		inner := strings.Trim(line, "|")
		if tableSeparatorRe.MatchString(inner) {
			continue
		}
		cells := strings.Split(inner, "|")
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		rows = append(rows, cells)
	}
	return rows
}

// renderGrid lays rows out as a fixed-width grid: each column padded to its
// widest cell, cells joined with " │ ", and a rule of box dashes under the
// header row. Widths count runes, not bytes, so non-ASCII cells line up.
func renderGrid(rows [][]string) string {
	widths := columnWidths(rows)
	var b strings.Builder
	for i, row := range rows {
		b.WriteString(renderRow(row, widths))
		b.WriteByte('\n')
		if i == 0 {
			b.WriteString(renderSeparator(widths))
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func columnWidths(rows [][]string) []int {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			w := utf8.RuneCountInString(cell)
			if i >= len(widths) {
				widths = append(widths, w)
			} else if w > widths[i] {
				widths[i] = w
			}
		}
	}
	return widths
}

func renderRow(row []string, widths []int) string {
	cells := make([]string, len(widths))
	for i := range widths {
		var cell string
		if i < len(row) {
			cell = row[i]
		}
		cells[i] = cell + strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell))
	}
	return strings.TrimRight(strings.Join(cells, " │ "), " ")
}

func renderSeparator(widths []int) string {
	segments := make([]string, len(widths))
	for i, w := range widths {
		segments[i] = strings.Repeat("─", w)
	}
	return strings.Join(segments, "─┼─")
}

func wrapFence(body string) string {
	return "```\n" + body + "\n```"
}
