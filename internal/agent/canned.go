package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Canned is an offline generator with deterministic output. It keeps the
// dashboard usable without a model backend.
type Canned struct{}

// NewCanned returns the offline generator.
func NewCanned() *Canned { return &Canned{} }

// Close is a no-op.
func (*Canned) Close() {}

var missingModule = regexp.MustCompile(`(?i)(?:cannot find module|module not found: can't resolve|could not resolve)\s+["']([^"']+)["']`)

// Generate answers req without network I/O.
func (*Canned) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(req.Prompt)
	switch req.Task {
	case TaskCode:
		return &Response{Code: cannedComponent(prompt)}, nil
	case TaskFix:
		if req.Current == "" {
			return &Response{Code: FallbackCode(prompt)}, nil
		}
		return &Response{Code: dropUnresolvedImports(req.Current, req.BuildOutput)}, nil
	default:
		if req.System == PlanSystem {
			return &Response{Text: FallbackPlan(req.TargetFile)}, nil
		}
		if prompt == "" {
			return &Response{Text: FallbackChatText}, nil
		}
		return &Response{Text: fmt.Sprintf("Working offline, so I can't give a model answer to %q. Switch to agent mode and ask me to build something.", truncate(prompt, 60))}, nil
	}
}

func cannedComponent(prompt string) string {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "button") || strings.Contains(lower, "cta"):
		return `export default function Button({ children = "Get started" }) {
  return (
    <button className="rounded-full bg-black px-6 py-3 text-white transition hover:opacity-80">
      {children}
    </button>
  );
}
`
	case strings.Contains(lower, "card"):
		return `export default function Card() {
  return (
    <div className="rounded-2xl border p-6 shadow-sm">
      <h2 className="text-lg font-semibold">Card title</h2>
      <p className="mt-2 text-sm text-gray-500">Card body copy.</p>
    </div>
  );
}
`
	default:
		return FallbackCode(prompt)
	}
}

// dropUnresolvedImports removes import lines for modules named in build output.
func dropUnresolvedImports(code, output string) string {
	bad := make(map[string]struct{})
	for _, m := range missingModule.FindAllStringSubmatch(output, -1) {
		bad[m[1]] = struct{}{}
	}
	if len(bad) == 0 {
		return code
	}
	lines := strings.Split(code, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		drop := false
		if strings.HasPrefix(trimmed, "import ") {
			for mod := range bad {
				if strings.Contains(trimmed, `"`+mod+`"`) || strings.Contains(trimmed, "'"+mod+"'") {
					drop = true
					break
				}
			}
		}
		if !drop {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
