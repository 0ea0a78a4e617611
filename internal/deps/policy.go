// Package deps extracts package dependencies from generated code and gates the
// install/build pipeline on an explicit user confirmation.
package deps

import (
	"regexp"
	"sort"
	"strings"
)

// Policy decides which import specifiers count as installable packages.
type Policy struct {
	// IgnorePrefixes marks relative and workspace-local specifiers.
	IgnorePrefixes []string
	// Builtins lists runtime modules that are never installed.
	Builtins map[string]struct{}
}

var nodeBuiltins = []string{
	"assert", "buffer", "child_process", "cluster", "crypto", "dgram", "dns",
	"events", "fs", "http", "http2", "https", "net", "os", "path", "perf_hooks",
	"process", "querystring", "readline", "stream", "string_decoder", "timers",
	"tls", "tty", "url", "util", "v8", "vm", "worker_threads", "zlib",
}

// DefaultPolicy ignores relative paths, "@/" and "~/" aliases and node built-ins.
func DefaultPolicy() Policy {
	builtins := make(map[string]struct{}, len(nodeBuiltins))
	for _, name := range nodeBuiltins {
		builtins[name] = struct{}{}
	}
	return Policy{
		IgnorePrefixes: []string{".", "/", "@/", "~/"},
		Builtins:       builtins,
	}
}

// Package maps an import specifier to its package root. ok is false when the
// specifier is not an installable package under the policy.
func (p Policy) Package(spec string) (name string, ok bool) {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.Contains(spec, "://") {
		return "", false
	}
	for _, prefix := range p.IgnorePrefixes {
		if strings.HasPrefix(spec, prefix) {
			return "", false
		}
	}
	if strings.HasPrefix(spec, "node:") {
		return "", false
	}

	parts := strings.Split(spec, "/")
	if strings.HasPrefix(spec, "@") {
		if len(parts) < 2 || parts[0] == "@" || parts[1] == "" {
			return "", false
		}
		return parts[0] + "/" + parts[1], true
	}
	if _, builtin := p.Builtins[parts[0]]; builtin {
		return "", false
	}
	return parts[0], true
}

var (
	importFrom    = regexp.MustCompile(`\bimport\s+(?:[\w*\s{},$]+?\s+from\s+)?["']([^"'\n]+)["']`)
	exportFrom    = regexp.MustCompile(`\bexport\s+[\w*\s{},$]+?\s+from\s+["']([^"'\n]+)["']`)
	dynamicImport = regexp.MustCompile(`\bimport\s*\(\s*["']([^"'\n]+)["']\s*\)`)
	requireCall   = regexp.MustCompile(`\brequire\s*\(\s*["']([^"'\n]+)["']\s*\)`)
)

// Collect returns the sorted set of package names imported by code.
func Collect(code string, p Policy) []string {
	seen := make(map[string]struct{})
	for _, re := range []*regexp.Regexp{importFrom, exportFrom, dynamicImport, requireCall} {
		for _, m := range re.FindAllStringSubmatch(code, -1) {
			if name, ok := p.Package(m[1]); ok {
				seen[name] = struct{}{}
			}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
