package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullRange(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Range
	}{
		{"empty", "", Range{End: Position{0, 0}}},
		{"single line", "abc", Range{End: Position{0, 3}}},
		{"trailing newline", "abc\n", Range{End: Position{1, 0}}},
		{"multi line", "a\nbcd\nef", Range{End: Position{2, 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FullRange(tt.text))
		})
	}
}

func TestApplyEdits(t *testing.T) {
	text := "one\ntwo\nthree\n"

	out, err := ApplyEdits(text, []TextEdit{
		{Range: Range{Start: Position{0, 0}, End: Position{0, 3}}, NewText: "ONE"},
		{Range: Range{Start: Position{2, 0}, End: Position{2, 5}}, NewText: "3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ONE\ntwo\n3\n", out)

	out, err = ApplyEdits(text, []TextEdit{{Range: FullRange(text), NewText: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

func TestApplyEditsErrors(t *testing.T) {
	text := "ab\ncd"

	tests := []struct {
		name  string
		edits []TextEdit
	}{
		{"line past end", []TextEdit{{Range: Range{End: Position{5, 0}}}}},
		{"column past line end", []TextEdit{{Range: Range{End: Position{0, 3}}}}},
		{"end before start", []TextEdit{{Range: Range{Start: Position{1, 0}, End: Position{0, 0}}}}},
		{"overlap", []TextEdit{
			{Range: Range{Start: Position{0, 0}, End: Position{1, 1}}},
			{Range: Range{Start: Position{0, 1}, End: Position{0, 2}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyEdits(text, tt.edits)
			assert.Error(t, err)
		})
	}
}
