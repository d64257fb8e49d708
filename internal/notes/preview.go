package notes

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// previewLineRunes caps each preview line; a minified blob is one line.
const previewLineRunes = 160

const previewMore = "..."

// ContentPreview returns up to maxLines lines of content for list views,
// skipping leading blank lines. Long lines are cut at previewLineRunes, and
// a final "..." line marks that more content follows.
func ContentPreview(content string, maxLines int) string {
	if maxLines <= 0 {
		return content
	}
	rest := strings.TrimLeft(content, "\r\n")
	if rest == "" {
		return ""
	}

	lines := make([]string, 0, maxLines+1)
	for len(lines) < maxLines && rest != "" {
		line, tail, found := strings.Cut(rest, "\n")
		lines = append(lines, clipLine(strings.TrimRight(line, "\r")))
		rest = tail
		if !found {
			break
		}
	}
	if strings.TrimSpace(rest) != "" {
		lines = append(lines, previewMore)
	}
	return strings.Join(lines, "\n")
}

func clipLine(line string) string {
	if utf8.RuneCountInString(line) <= previewLineRunes {
		return line
	}
	return string([]rune(line)[:previewLineRunes]) + previewMore
}

// CountLines returns the number of lines in content. Empty content has none;
// a trailing newline starts an (empty) final line.
func CountLines(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}

// lineWindow resolves a 1-indexed inclusive [start, end] request against
// total lines. start <= 0 means the first line; end <= 0 means the last.
func lineWindow(start, end, total int) (int, int, bool) {
	if start <= 0 {
		start = 1
	}
	if end <= 0 || end > total {
		end = total
	}
	return start, end, start <= end
}

// FormatWithLineNumbers renders content in `cat -n` style: a 6-wide line
// number, a tab, then the line. Only lines in [start, end] are included
// (see lineWindow). The second result is the note's total line count.
func FormatWithLineNumbers(content string, start, end int) (string, int) {
	total := CountLines(content)
	if total == 0 {
		return "", 0
	}
	from, to, ok := lineWindow(start, end, total)
	if !ok {
		return "", total
	}

	lines := strings.SplitN(content, "\n", to+1)
	var b strings.Builder
	for n := from; n <= to; n++ {
		if n > from {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%6d\t%s", n, lines[n-1])
	}
	return b.String(), total
}
