package sync

import (
	"strings"
	"unicode/utf8"
)

// SplitComments packs the ordered formatted comment bodies into chunks that
// stay below limit characters. Boundaries only fall between whole input
// comments: a single comment longer than the limit is never split, so such
// a comment yields one chunk that exceeds the limit by exactly its excess.
// The same input always yields the same chunk sequence.
func SplitComments(comments []string, limit int) []string {
	var chunks []string
	var buf strings.Builder
	bufLen := 0

	for _, comment := range comments {
		n := utf8.RuneCountInString(comment)
		if bufLen > 0 && bufLen+n >= limit {
			chunks = append(chunks, buf.String())
			buf.Reset()
			bufLen = 0
		}
		buf.WriteString(comment)
		bufLen += n
	}
	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}
