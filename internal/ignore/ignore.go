// Package ignore matches repository paths against gitignore-style exclude
// patterns.
package ignore

import (
	"bufio"
	"io"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Matcher reports whether a repository path is excluded.
type Matcher struct {
	patterns []string
	matcher  gitignore.Matcher
}

// New builds a matcher from gitignore-style patterns. Blank lines and
// comments are ignored; negations ("!keep.go") re-include earlier matches.
func New(patterns []string) *Matcher {
	cleaned := make([]string, 0, len(patterns))
	parsed := make([]gitignore.Pattern, 0, len(patterns))
	for _, p := range deduplicate(patterns) {
		p = parseLine(p)
		if p == "" {
			continue
		}
		cleaned = append(cleaned, p)
		parsed = append(parsed, gitignore.ParsePattern(p, nil))
	}
	return &Matcher{
		patterns: cleaned,
		matcher:  gitignore.NewMatcher(parsed),
	}
}

// Parse reads gitignore-style content and returns its patterns.
func Parse(r io.Reader) ([]string, error) {
	var patterns []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if p := parseLine(scanner.Text()); p != "" {
			patterns = append(patterns, p)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}

// Match reports whether the slash-separated path is excluded. Every parent
// directory is checked too, so "vendor/" excludes "vendor/a/b.go".
func (m *Matcher) Match(path string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 1; i < len(parts); i++ {
		if m.matcher.Match(parts[:i], true) {
			return true
		}
	}
	return m.matcher.Match(parts, false)
}

// Patterns returns the effective patterns.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}

// parseLine normalizes a single pattern line.
// Returns empty string for comments and blank lines.
func parseLine(line string) string {
	line = strings.TrimRight(line, " \t\r")
	if strings.TrimSpace(line) == "" {
		return ""
	}
	if strings.HasPrefix(line, "#") {
		return ""
	}
	return line
}

// deduplicate removes duplicate patterns while preserving order.
func deduplicate(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))

	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}

	return result
}
