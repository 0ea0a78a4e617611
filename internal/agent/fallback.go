package agent

import (
	"fmt"
	"regexp"
	"strings"
)

// FallbackChatText is delivered when a chat reply fails or times out.
const FallbackChatText = "I couldn't reach the model just now. Describe the component you want and I'll build it, or try again in a moment."

// System prompts for the requests the dashboard makes.
const (
	PlanSystem = "In one sentence, describe how you will implement the request. No code."
	CodeSystem = "You write complete React + Tailwind TSX files. Return the whole file."
	FixSystem  = "You fix React + Tailwind TSX files so they build. Return the whole corrected file."
	ChatSystem = "You are a concise assistant for a UI component workspace."
)

// FallbackPlan is the plan line used when the plan request fails.
func FallbackPlan(path string) string {
	return fmt.Sprintf("Update %s to match the request, keeping the existing structure where possible.", path)
}

var jsxUnsafe = strings.NewReplacer("{", "", "}", "", "<", "", ">", "", "`", "")

// FallbackCode returns a minimal page component for prompt.
func FallbackCode(prompt string) string {
	title := strings.TrimSpace(jsxUnsafe.Replace(prompt))
	if title == "" {
		title = "New page"
	}
	if r := []rune(title); len(r) > 80 {
		title = strings.TrimSpace(string(r[:80]))
	}
	return fmt.Sprintf(`export default function Page() {
  return (
    <main className="min-h-screen flex items-center justify-center p-8">
      <section className="max-w-xl rounded-2xl border p-8 shadow-sm">
        <h1 className="text-2xl font-semibold">%s</h1>
        <p className="mt-2 text-sm text-gray-500">Generated offline. Edit this file to continue.</p>
      </section>
    </main>
  );
}
`, title)
}

var fence = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\n(.*?)```")

// ExtractCode returns the first fenced block in text, or text itself when it
// has no fence.
func ExtractCode(text string) string {
	if m := fence.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return strings.TrimSpace(text)
}
