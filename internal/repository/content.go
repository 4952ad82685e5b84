package repository

import (
	"fmt"
	"math"
	"path"
	"strings"
	"unicode/utf8"
)

// configExtensions get the larger size ceiling.
var configExtensions = map[string]bool{
	".json":       true,
	".yaml":       true,
	".yml":        true,
	".toml":       true,
	".xml":        true,
	".ini":        true,
	".conf":       true,
	".config":     true,
	".properties": true,
	".env":        true,
	".lock":       true,
}

func isConfigFile(p string) bool {
	base := strings.ToLower(path.Base(p))
	if strings.HasPrefix(base, ".env") {
		return true
	}
	return configExtensions[path.Ext(base)]
}

// sizeLimit returns the byte ceiling for p.
func (s *Service) sizeLimit(p string) int {
	if isConfigFile(p) {
		return s.cfg.MaxConfigFileSize
	}
	return s.cfg.MaxFileSize
}

// truncate cuts content to limit bytes on a rune boundary and appends a
// marker with the original size in KB.
func truncate(content []byte, limit int) string {
	if limit <= 0 || len(content) <= limit {
		return string(content)
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}

	return string(content[:cut]) + fmt.Sprintf("\n\n[... truncated: original size %dKB]", kilobytes(len(content)))
}

func kilobytes(n int) int {
	return int(math.Round(float64(n) / 1024))
}

// decodeContent turns fetched bytes into corpus text. Content that is not
// valid UTF-8 is treated as binary and rejected.
func decodeContent(p string, raw []byte, limit int) (string, error) {
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%s: content is not valid UTF-8", p)
	}
	return truncate(raw, limit), nil
}
