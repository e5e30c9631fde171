package app

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Position is a 0-based line and byte column.
type Position struct {
	Line      int
	Character int
}

type Range struct {
	Start Position
	End   Position
}

// TextEdit replaces Range with NewText.
type TextEdit struct {
	Range   Range
	NewText string
}

// Document is the text of one editor buffer.
type Document struct {
	Path string
	Text string
}

// FullRange spans text from the first character to the end of its last line.
func FullRange(text string) Range {
	lastLine := strings.Count(text, "\n")
	lastLineText := text[strings.LastIndexByte(text, '\n')+1:]
	return Range{
		Start: Position{Line: 0, Character: 0},
		End:   Position{Line: lastLine, Character: len(lastLineText)},
	}
}

// ApplyEdits returns text with edits applied. Edits must not overlap; they
// are applied back to front so earlier offsets stay valid.
func ApplyEdits(text string, edits []TextEdit) (string, error) {
	type span struct {
		start, end int
		newText    string
	}

	spans := make([]span, 0, len(edits))
	for _, e := range edits {
		start, err := offsetOf(text, e.Range.Start)
		if err != nil {
			return "", err
		}
		end, err := offsetOf(text, e.Range.End)
		if err != nil {
			return "", err
		}
		if end < start {
			return "", fmt.Errorf("edit range end %v precedes start %v", e.Range.End, e.Range.Start)
		}
		spans = append(spans, span{start: start, end: end, newText: e.NewText})
	}

	slices.SortFunc(spans, func(a, b span) int { return b.start - a.start })
	for i := 1; i < len(spans); i++ {
		if spans[i].end > spans[i-1].start {
			return "", errors.New("overlapping edits")
		}
	}

	for _, s := range spans {
		text = text[:s.start] + s.newText + text[s.end:]
	}
	return text, nil
}

func offsetOf(text string, pos Position) (int, error) {
	if pos.Line < 0 || pos.Character < 0 {
		return 0, fmt.Errorf("invalid position %v", pos)
	}
	offset := 0
	for line := 0; line < pos.Line; line++ {
		idx := strings.IndexByte(text[offset:], '\n')
		if idx < 0 {
			return 0, fmt.Errorf("position %v is past the end of the document", pos)
		}
		offset += idx + 1
	}

	lineEnd := len(text)
	if idx := strings.IndexByte(text[offset:], '\n'); idx >= 0 {
		lineEnd = offset + idx
	}
	if offset+pos.Character > lineEnd {
		return 0, fmt.Errorf("position %v is past the end of its line", pos)
	}
	return offset + pos.Character, nil
}
