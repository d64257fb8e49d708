// Package testutil holds rapid generators for hostile note data: text that
// tends to break SQL, LIKE patterns, regexes and file paths.
package testutil

import (
	"strings"

	"pgregory.net/rapid"
)

var injection = []string{
	`' OR 1=1 --`,
	`'; DROP TABLE notes; --`,
	`" OR "1"="1`,
	`' UNION SELECT id, content FROM notes --`,
	`'; DELETE FROM note_tags; --`,
	`%' OR title LIKE '%`,
	`<script>alert('xss')</script>`,
}

// Characters with meaning to LIKE, GLOB or regexp. Search is literal.
var patternSyntax = []string{
	`%`, `_`, `%_%`, `\%`, `*`, `?`, `[a-z]`, `.*`, `^note$`, `a|b`, `(?i)`,
	`\d+`, `{2,}`, `c++`, `$100 (USD)`, `[[:alpha:]]`, `ESCAPE '\'`,
}

var unicodeEdge = []string{
	"日本語のメモ", "العربية", "עברית", "🔥🎉💻", "Zürich", "Москва", "한국어",
	"\u200B", "\uFEFF", "a\u0300", "\u202Ereversed\u202C", "🧑\u200D💻",
	"\U0001F1FA\U0001F1F8", "non\u00A0breaking", "line\u2028separator",
}

var whitespace = []string{
	" ", "\t", "\n", "\r\n", " \t \n ", "  padded  ", "line1\nline2", "\u3000", "\v\f",
}

// longString is a repeated pattern of 1KB to 200KB.
func longString() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		n := rapid.SampledFrom([]int{1 << 10, 10 << 10, 64 << 10, 200 << 10}).Draw(t, "length")
		return strings.Repeat("abcdefghij", n/10+1)[:n]
	})
}

// ArbitraryNoteContent generates note bodies, possibly empty, of any shape.
func ArbitraryNoteContent() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.String(),
		rapid.Just(""),
		rapid.Just("note\x00with nul"),
		rapid.StringMatching(`[a-zA-Z0-9 #*\n-]{0,200}`),
		rapid.StringMatching(`[\x00-\x1F]{1,10}`),
		rapid.SampledFrom(injection),
		rapid.SampledFrom(patternSyntax),
		rapid.SampledFrom(unicodeEdge),
		rapid.SampledFrom(whitespace),
		longString(),
	)
}

// ArbitrarySearchQuery generates needles for substring search.
func ArbitrarySearchQuery() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.String(),
		rapid.Just(""),
		rapid.Just("\x00"),
		rapid.SampledFrom(injection),
		rapid.SampledFrom(patternSyntax),
		rapid.SampledFrom(unicodeEdge),
		rapid.SampledFrom(whitespace),
	)
}

// ArbitraryTagName generates raw tag input before normalization.
func ArbitraryTagName() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.StringMatching(`[ \t]{0,3}[A-Za-z][A-Za-z0-9-]{0,20}[ \t]{0,3}`),
		rapid.SampledFrom(unicodeEdge),
		rapid.SampledFrom(whitespace),
		rapid.SampledFrom(injection),
		rapid.StringN(0, 80, -1),
	)
}

// ValidUserID generates ids that are safe as database file names.
func ValidUserID() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		return rapid.StringMatching(`[a-z]{1,10}`).Draw(t, "prefix") + "-" +
			rapid.StringMatching(`[0-9]{1,5}`).Draw(t, "suffix")
	})
}

// ArbitraryUserID mixes valid ids with path traversal and other junk.
func ArbitraryUserID() *rapid.Generator[string] {
	return rapid.OneOf(
		ValidUserID(),
		rapid.SampledFrom([]string{"", "\x00", "../escape", "/root", "a/b", `a\b`, "user\x00id", ".", ".."}),
		rapid.String(),
	)
}
