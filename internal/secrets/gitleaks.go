package secrets

import (
	"fmt"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// gitleaksDetector wraps the gitleaks default configuration. Detection is
// serialized because the detector is not documented as safe for concurrent
// use.
type gitleaksDetector struct {
	mu       sync.Mutex
	detector *detect.Detector
}

func newGitleaksDetector() (*gitleaksDetector, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load gitleaks rules: %w", err)
	}
	return &gitleaksDetector{detector: d}, nil
}

// detect returns a redaction for every occurrence of each secret gitleaks
// reports. Findings carry the secret text but not a byte offset, so the
// offsets are recovered by searching content.
func (g *gitleaksDetector) detect(content string) []redaction {
	g.mu.Lock()
	findings := g.detector.DetectString(content)
	g.mu.Unlock()

	var out []redaction
	seen := make(map[string]bool, len(findings))
	for _, f := range findings {
		if f.Secret == "" || seen[f.Secret] {
			continue
		}
		seen[f.Secret] = true
		for off := 0; ; {
			i := strings.Index(content[off:], f.Secret)
			if i < 0 {
				break
			}
			start := off + i
			out = append(out, redaction{start: start, end: start + len(f.Secret), ruleID: f.RuleID})
			off = start + len(f.Secret)
		}
	}
	return out
}

func (g *gitleaksDetector) description(ruleID string) string {
	if r, ok := g.detector.Config.Rules[ruleID]; ok {
		return r.Description
	}
	return ""
}
