package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Finding describes one redaction. The matched value is never retained.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Line        int    `json:"line"`
}

// Result is the outcome of scrubbing one piece of content.
type Result struct {
	Scrubbed string
	Findings []Finding
}

// HasFindings reports whether anything was redacted.
func (r Result) HasFindings() bool {
	return len(r.Findings) > 0
}

// Note renders the findings as a single line, e.g.
// "Redacted secrets: github-token (line 3), private-key (line 10)".
func (r Result) Note() string {
	if !r.HasFindings() {
		return ""
	}
	parts := make([]string, len(r.Findings))
	for i, f := range r.Findings {
		parts[i] = fmt.Sprintf("%s (line %d)", f.RuleID, f.Line)
	}
	return "Redacted secrets: " + strings.Join(parts, ", ")
}

// Scrubber redacts secrets from content. It is safe for concurrent use.
type Scrubber struct {
	enabled   bool
	rules     []*compiledRule
	allowList []*regexp.Regexp
	gitleaks  *gitleaksDetector
}

type redaction struct {
	start, end int
	ruleID     string
}

// New creates a Scrubber. A nil cfg selects DefaultConfig.
func New(cfg *Config) (*Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enabled {
		return &Scrubber{}, nil
	}

	rules, allow, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	s := &Scrubber{enabled: true, rules: rules, allowList: allow}
	if cfg.Gitleaks {
		if s.gitleaks, err = newGitleaksDetector(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Enabled reports whether the scrubber redacts anything.
func (s *Scrubber) Enabled() bool {
	return s != nil && s.enabled
}

// Scrub replaces every detected secret with "[REDACTED:<rule-id>]".
// Overlapping matches collapse into the earliest-starting one.
func (s *Scrubber) Scrub(content string) Result {
	if !s.Enabled() || content == "" {
		return Result{Scrubbed: content}
	}

	var found []redaction
	for _, rule := range s.rules {
		if !rule.applies(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if s.allowed(content[m[0]:m[1]]) {
				continue
			}
			found = append(found, redaction{start: m[0], end: m[1], ruleID: rule.ID})
		}
	}
	if s.gitleaks != nil {
		for _, r := range s.gitleaks.detect(content) {
			if !s.allowed(content[r.start:r.end]) {
				found = append(found, r)
			}
		}
	}
	if len(found) == 0 {
		return Result{Scrubbed: content}
	}

	merged := mergeRedactions(found)

	var b strings.Builder
	b.Grow(len(content))
	findings := make([]Finding, 0, len(merged))
	prev := 0
	for _, r := range merged {
		b.WriteString(content[prev:r.start])
		b.WriteString("[REDACTED:" + r.ruleID + "]")
		prev = r.end

		findings = append(findings, Finding{
			RuleID:      r.ruleID,
			Description: s.description(r.ruleID),
			Line:        strings.Count(content[:r.start], "\n") + 1,
		})
	}
	b.WriteString(content[prev:])

	return Result{Scrubbed: b.String(), Findings: findings}
}

func (r *compiledRule) applies(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

func (s *Scrubber) allowed(match string) bool {
	for _, re := range s.allowList {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

func (s *Scrubber) description(ruleID string) string {
	for _, r := range s.rules {
		if r.ID == ruleID {
			return r.Description
		}
	}
	if s.gitleaks != nil {
		return s.gitleaks.description(ruleID)
	}
	return ""
}

// mergeRedactions sorts by start and folds overlapping spans together.
func mergeRedactions(rs []redaction) []redaction {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].start < rs[j].start })

	merged := []redaction{rs[0]}
	for _, cur := range rs[1:] {
		last := &merged[len(merged)-1]
		if cur.start < last.end {
			if cur.end > last.end {
				last.end = cur.end
			}
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}
