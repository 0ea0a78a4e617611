// Package target picks which workspace file a generation prompt should mutate.
package target

import (
	"path"
	"regexp"
	"strings"
)

// DefaultPath is the canonical artifact used when nothing more specific matches.
const DefaultPath = "src/App/page.tsx"

var (
	dashboardMention = regexp.MustCompile(`\b(dashboard|agent)\b`)
	buttonMention    = regexp.MustCompile(`\b(button|buttons|btn|cta|component)\b`)
	styleMention     = regexp.MustCompile(`\b(style|styles|styling|css|theme)\b`)
	buttonPath       = regexp.MustCompile(`(?i)(button|btn|cta)`)
)

// Resolve returns the path the prompt should write to. It always returns a
// path: an empty list falls back to DefaultPath.
func Resolve(prompt string, paths []string) string {
	if len(paths) == 0 {
		paths = []string{DefaultPath}
	}
	text := strings.ToLower(prompt)

	if dashboardMention.MatchString(text) {
		for _, p := range paths {
			if strings.Contains(strings.ToLower(p), "dashboard") {
				return p
			}
		}
	}

	if buttonMention.MatchString(text) {
		for _, p := range paths {
			if buttonPath.MatchString(path.Base(p)) {
				return p
			}
		}
	}

	if styleMention.MatchString(text) {
		for _, p := range paths {
			if strings.HasSuffix(strings.ToLower(p), ".css") {
				return p
			}
		}
	}

	for _, p := range paths {
		if p == DefaultPath {
			return p
		}
	}
	return paths[0]
}
