// Package intent decides whether a dashboard prompt asks for generated code.
package intent

import (
	"regexp"
	"strings"
)

// longPromptThreshold is the length above which a prompt is treated as a
// generation request even without explicit signals.
const longPromptThreshold = 140

var (
	actionWords = wordSet(
		"build", "create", "generate", "make", "implement", "code", "add", "write",
		// common misspellings seen in the prompt box
		"buld", "bulid", "biuld", "creat", "craete", "cretae", "genrate", "generat",
		"mak", "implment", "impliment", "wirte", "wrte", "coed",
	)

	domainWords = wordSet(
		"component", "components", "page", "pages", "form", "forms", "style", "styles",
		"styling", "layout", "navbar", "nav", "header", "footer", "card", "cards",
		"modal", "dialog", "hero", "section", "landing", "dashboard", "sidebar",
		"input", "table", "menu", "ui", "widget", "banner", "grid", "list", "tabs",
		"carousel", "dropdown", "tooltip", "badge", "avatar", "pricing", "screen",
	)

	buttonSynonyms = wordSet(
		"button", "buttons", "btn", "cta", "call-to-action", "pill", "toggle", "chip",
	)

	techWords = wordSet("tsx", "jsx", "react", "tailwind", "css")

	effectWords = wordSet(
		"hover", "gradient", "gradients", "animation", "animations", "animate",
		"animated", "click", "clicks",
	)

	editVerbs = wordSet("edit", "update", "change", "improve", "fix", "tweak", "restyle")

	// "make it blue", "make the", "style the"
	editPhrase = regexp.MustCompile(`\b(make it \w+|make the|style the)\b`)

	tokenSplit = regexp.MustCompile(`[^a-z0-9\-]+`)
)

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Signals records which token classes matched a prompt.
type Signals struct {
	Action bool
	Domain bool
	Button bool
	Tech   bool
	Effect bool
	Edit   bool
	Long   bool
}

// UI reports whether any UI signal is present.
func (s Signals) UI() bool {
	return s.Domain || s.Button || s.Tech || s.Effect
}

// Explain returns the matched signals for a prompt.
func Explain(prompt string) Signals {
	text := strings.ToLower(strings.TrimSpace(prompt))
	var sig Signals
	for _, tok := range tokenSplit.Split(text, -1) {
		if tok == "" {
			continue
		}
		tok = strings.Trim(tok, "-")
		if _, ok := actionWords[tok]; ok {
			sig.Action = true
		}
		if _, ok := domainWords[tok]; ok {
			sig.Domain = true
		}
		if _, ok := buttonSynonyms[tok]; ok {
			sig.Button = true
		}
		if _, ok := techWords[tok]; ok {
			sig.Tech = true
		}
		if _, ok := effectWords[tok]; ok {
			sig.Effect = true
		}
		if _, ok := editVerbs[tok]; ok {
			sig.Edit = true
		}
	}
	for _, ext := range []string{".tsx", ".jsx", ".css"} {
		if strings.Contains(text, ext) {
			sig.Tech = true
		}
	}
	if strings.Contains(text, "call to action") {
		sig.Button = true
	}
	if editPhrase.MatchString(text) {
		sig.Edit = true
	}
	sig.Long = len(text) > longPromptThreshold
	return sig
}

// Classify reports whether the prompt should produce generated code.
func Classify(prompt string) bool {
	sig := Explain(prompt)
	domain := sig.Domain || sig.Button
	switch {
	case sig.Action && (domain || sig.Tech):
		return true
	case sig.Action && sig.Effect:
		return true
	case (domain && sig.Tech) || sig.Long:
		return true
	case sig.Edit && sig.UI():
		return true
	}
	return false
}
