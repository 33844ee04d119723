package canonical

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultWrapWidth is the fixed column at which prose wraps.
const DefaultWrapWidth = 80

var listMarkerRe = regexp.MustCompile(`^([-*+]|\d+[.)])\s+`)

// MarkdownRenderer renders canonical Markdown: LF-only line endings
// and prose wrapped at a fixed column on word boundaries. Fenced code
// blocks, table rows, headings, and list continuation lines are never
// rewrapped, so rendering is idempotent.
type MarkdownRenderer struct {
	Width int
}

// NewMarkdownRenderer returns a renderer with the default wrap width.
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{Width: DefaultWrapWidth}
}

// NormalizeNewlines rewrites CRLF and bare CR to LF.
func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// Render canonicalizes a Markdown document.
func (r *MarkdownRenderer) Render(doc string) string {
	width := r.Width
	if width <= 0 {
		width = DefaultWrapWidth
	}

	lines := strings.Split(NormalizeNewlines(doc), "\n")
	out := make([]string, 0, len(lines))
	inFence := false

	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " ")

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			out = append(out, line)
			continue
		}

		switch {
		case inFence:
			// Fenced code is verbatim.
			out = append(out, line)
		case trimmed == "":
			out = append(out, "")
		case strings.HasPrefix(trimmed, "|"):
			// Table rows are a fixed grid; wrapping would break columns.
			out = append(out, line)
		case strings.HasPrefix(trimmed, "#"):
			out = append(out, line)
		case line != trimmed:
			// Indented line: code block or list continuation.
			out = append(out, line)
		case listMarkerRe.MatchString(line):
			marker := listMarkerRe.FindString(line)
			hang := strings.Repeat(" ", len(marker))
			out = append(out, wrapLine(line, hang, width)...)
		default:
			out = append(out, wrapLine(line, "", width)...)
		}
	}

	rendered := strings.Join(out, "\n")
	if !strings.HasSuffix(rendered, "\n") {
		rendered += "\n"
	}
	return rendered
}

// wrapLine greedily fills words up to width, measured in runes so
// non-ASCII prose honors the column contract. Continuation lines get
// the hanging indent. A single word longer than the width is never
// broken.
func wrapLine(line, hang string, width int) []string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return []string{""}
	}

	var wrapped []string
	indent := ""
	used := utf8.RuneCountInString(words[0])
	current := words[0]
	for _, word := range words[1:] {
		runes := utf8.RuneCountInString(word)
		if utf8.RuneCountInString(indent)+used+1+runes > width {
			wrapped = append(wrapped, indent+current)
			indent = hang
			current = word
			used = runes
			continue
		}
		current += " " + word
		used += 1 + runes
	}
	wrapped = append(wrapped, indent+current)
	return wrapped
}
