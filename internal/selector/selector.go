// Package selector builds the document filter a formatting provider is
// registered for from the extensions the engine plugins report.
package selector

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"dprint-nvim/internal/contracts"
)

// SchemeFile is the only scheme providers are registered for.
const SchemeFile = "file"

// Selector matches documents by file extension.
type Selector struct {
	Scheme  string
	Pattern string

	extensions []string
}

// FromPlugins returns a selector for the union of the plugins' file
// extensions. Duplicates are dropped and first-seen order is kept.
func FromPlugins(infos []contracts.PluginInfo) Selector {
	seen := make(map[string]struct{})
	var exts []string
	for _, info := range infos {
		for _, ext := range info.FileExtensions {
			ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
			if ext == "" {
				continue
			}
			if _, ok := seen[ext]; ok {
				continue
			}
			seen[ext] = struct{}{}
			exts = append(exts, ext)
		}
	}
	return FromExtensions(exts)
}

// FromExtensions returns a selector for exts, which must already be unique.
func FromExtensions(exts []string) Selector {
	if len(exts) == 0 {
		return Selector{}
	}
	return Selector{
		Scheme:     SchemeFile,
		Pattern:    "**/*.{" + strings.Join(exts, ",") + "}",
		extensions: exts,
	}
}

// Empty reports whether the selector matches nothing.
func (s Selector) Empty() bool {
	return len(s.extensions) == 0
}

// Extensions returns the extensions without a leading dot.
func (s Selector) Extensions() []string {
	return append([]string(nil), s.extensions...)
}

// Match reports whether the file at path is selected.
func (s Selector) Match(path string) bool {
	if s.Empty() || path == "" {
		return false
	}
	p := filepath.ToSlash(path)
	if vol := filepath.VolumeName(path); vol != "" {
		p = strings.TrimPrefix(p, filepath.ToSlash(vol))
	}
	p = strings.TrimLeft(p, "/")

	ok, err := doublestar.Match(s.Pattern, p)
	return err == nil && ok
}

// AutocmdPatterns returns one Neovim autocmd file pattern per extension.
func (s Selector) AutocmdPatterns() []string {
	patterns := make([]string, 0, len(s.extensions))
	for _, ext := range s.extensions {
		patterns = append(patterns, "*."+ext)
	}
	return patterns
}
