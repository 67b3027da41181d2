package watch

import (
	"path/filepath"
	"strings"
)

// FixturePatterns match pull request fixture files.
var FixturePatterns = []string{"*.yaml", "*.yml"}

// EditorPatterns match temporary files editors leave next to the real ones.
var EditorPatterns = []string{".*", "*~", "*.swp", "*.tmp", "*.tmp-*"}

// PatternFilter filters file paths based on include/exclude glob patterns.
type PatternFilter struct {
	Include []string
	Exclude []string
}

// NewPatternFilter creates a new pattern filter.
func NewPatternFilter(include, exclude []string) *PatternFilter {
	return &PatternFilter{
		Include: include,
		Exclude: exclude,
	}
}

// FixtureFilter accepts YAML fixtures and rejects editor leftovers.
func FixtureFilter() *PatternFilter {
	return NewPatternFilter(FixturePatterns, EditorPatterns)
}

// Matches returns true if the path passes the filter.
// Patterns are tried against the base name and the slash-separated path.
// Excludes win over includes; no includes means everything not excluded.
func (f *PatternFilter) Matches(path string) bool {
	base := filepath.Base(path)
	slashed := filepath.ToSlash(path)

	for _, pattern := range f.Exclude {
		if match(pattern, base, slashed) {
			return false
		}
	}

	if len(f.Include) == 0 {
		return true
	}

	for _, pattern := range f.Include {
		if match(pattern, base, slashed) {
			return true
		}
	}
	return false
}

func match(pattern, base, path string) bool {
	if matched, _ := filepath.Match(pattern, base); matched {
		return true
	}
	if strings.Contains(pattern, "/") {
		matched, _ := filepath.Match(pattern, path)
		return matched
	}
	return false
}
