package host

import (
	"bytes"
	"strings"
)

// joinLines turns buffer lines into document text. Buffers are assumed to
// end with a newline, which is how the file is written to disk.
func joinLines(lines [][]byte) string {
	return string(bytes.Join(lines, []byte("\n"))) + "\n"
}

// splitLines is the inverse of joinLines. Carriage returns are dropped;
// 'fileformat' decides line endings on write.
func splitLines(text string) [][]byte {
	text = strings.TrimSuffix(text, "\n")
	parts := strings.Split(text, "\n")
	lines := make([][]byte, len(parts))
	for i, p := range parts {
		lines[i] = []byte(strings.TrimSuffix(p, "\r"))
	}
	return lines
}

// lineSpan is a replacement of old[Start:End] by Lines.
type lineSpan struct {
	Start int
	End   int
	Lines [][]byte
}

// changedSpan returns the smallest line span turning old into updated, and
// false when they are equal. Leaving common lines untouched keeps marks,
// folds and the cursor where they were.
func changedSpan(old, updated [][]byte) (lineSpan, bool) {
	prefix := 0
	for prefix < len(old) && prefix < len(updated) && bytes.Equal(old[prefix], updated[prefix]) {
		prefix++
	}
	if prefix == len(old) && prefix == len(updated) {
		return lineSpan{}, false
	}

	suffix := 0
	for suffix < len(old)-prefix && suffix < len(updated)-prefix &&
		bytes.Equal(old[len(old)-1-suffix], updated[len(updated)-1-suffix]) {
		suffix++
	}

	return lineSpan{
		Start: prefix,
		End:   len(old) - suffix,
		Lines: updated[prefix : len(updated)-suffix],
	}, true
}
