package classifier

import (
	"context"
	"strings"

	"github.com/nlstep/nlstep/pkg/schema"
)

// Rules is the keyword vocabulary the deterministic classifier runs on.
// All matching is case-insensitive substring matching.
type Rules struct {
	// AssertionPhrases mark verification steps.
	AssertionPhrases []string
	// AssertionPrefixes mark verification steps by their leading keyword.
	AssertionPrefixes []string
	// APISignals mark direct API calls. They outrank BrowserSignals when
	// both appear in one step.
	APISignals []string
	// HTTPVerbs classify a step as API when it opens with one.
	HTTPVerbs []string
	// BrowserSignals mark browser interactions.
	BrowserSignals []string
	// LoginWords trigger the login special case: authentication intent
	// without any UIWords routes to the API backend.
	LoginWords []string
	// UIWords suppress the login special case.
	UIWords []string
}

// DefaultRules returns the built-in vocabulary.
func DefaultRules() Rules {
	return Rules{
		AssertionPhrases: []string{
			"should receive", "should contain", "should indicate", "should return",
			"should see", "should show", "should match", "should be", "should have",
			"should fail", "should hold", "extract the", "verify", "check",
			"validate", "confirm", "response contains", "status code is",
			"expression",
		},
		AssertionPrefixes: []string{"then ", "and "},
		APISignals: []string{
			"api", "endpoint", "http request", "json data", "json body",
			"status code", "request to", "rest ", "payload",
		},
		HTTPVerbs: []string{"get", "post", "put", "delete", "patch"},
		BrowserSignals: []string{
			"navigate", "go to", "open the", "click", "press", "tap",
			"type", "fill", "submit", "scroll", "hover", "select",
			"page", "button", "link", "field", "form", "window",
			"screen", "tab", "dropdown", "checkbox", "menu", "browser",
		},
		LoginWords: []string{"login", "log in", "sign in", "authenticate"},
		UIWords:    []string{"page", "form", "field", "button", "screen"},
	}
}

// RulesClassifier is the deterministic keyword classifier. It is total: it
// always produces an answer and never returns an error.
type RulesClassifier struct {
	rules Rules
}

// NewRulesClassifier creates a rules classifier. Zero-value rules fall back
// to DefaultRules.
func NewRulesClassifier(rules Rules) *RulesClassifier {
	if len(rules.APISignals) == 0 && len(rules.BrowserSignals) == 0 {
		rules = DefaultRules()
	}
	return &RulesClassifier{rules: rules}
}

// Classify applies the rule layers in order and falls back to signal
// scoring when none is decisive.
func (c *RulesClassifier) Classify(_ context.Context, stepText string, mode schema.RoutingMode) (schema.ActionType, error) {
	if at, ok := c.decide(stepText, mode); ok {
		return at, nil
	}
	return c.score(stepText), nil
}

// decide runs the decisive layers. The second return is false when the step
// is ambiguous and needs the scoring fallback or a semantic opinion.
func (c *RulesClassifier) decide(stepText string, mode schema.RoutingMode) (schema.ActionType, bool) {
	lower := strings.ToLower(strings.TrimSpace(stepText))

	// Verification steps stay assertions under every routing mode; tags
	// only pick the backend for side-effecting steps.
	if c.isAssertion(lower) {
		return schema.ActionAssertion, true
	}

	switch mode {
	case schema.RouteExplicitAPI:
		return schema.ActionAPI, true
	case schema.RouteExplicitBrowser:
		return schema.ActionBrowser, true
	}

	if c.hasAPISignal(lower) {
		return schema.ActionAPI, true
	}
	if c.hasAny(lower, c.rules.BrowserSignals) {
		return schema.ActionBrowser, true
	}
	if c.hasAny(lower, c.rules.LoginWords) && !c.hasAny(lower, c.rules.UIWords) {
		return schema.ActionAPI, true
	}

	return "", false
}

// score counts signals on each side. API wins ties so ambiguous steps take
// the cheaper, more observable path.
func (c *RulesClassifier) score(stepText string) schema.ActionType {
	lower := strings.ToLower(strings.TrimSpace(stepText))

	api := c.countMatches(lower, c.rules.APISignals)
	if c.hasLeadingVerb(lower) {
		api++
	}
	browser := c.countMatches(lower, c.rules.BrowserSignals)

	if browser > api {
		return schema.ActionBrowser
	}
	return schema.ActionAPI
}

func (c *RulesClassifier) isAssertion(lower string) bool {
	for _, p := range c.rules.AssertionPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return c.hasAny(lower, c.rules.AssertionPhrases)
}

func (c *RulesClassifier) hasAPISignal(lower string) bool {
	return c.hasLeadingVerb(lower) || c.hasAny(lower, c.rules.APISignals)
}

func (c *RulesClassifier) hasLeadingVerb(lower string) bool {
	first, _, _ := strings.Cut(lower, " ")
	for _, v := range c.rules.HTTPVerbs {
		if first == v {
			return true
		}
	}
	return false
}

// matches reports whether a phrase appears in the step. Multi-word phrases
// match as substrings; single words match whole tokens only, so "api" does
// not fire on "rapid".
func matches(lower, phrase string) bool {
	if strings.ContainsRune(strings.TrimSpace(phrase), ' ') || strings.HasSuffix(phrase, " ") {
		return strings.Contains(lower, phrase)
	}
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if tok == phrase {
			return true
		}
	}
	return false
}

func (c *RulesClassifier) hasAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if matches(lower, p) {
			return true
		}
	}
	return false
}

func (c *RulesClassifier) countMatches(lower string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if matches(lower, p) {
			n++
		}
	}
	return n
}

var _ Classifier = (*RulesClassifier)(nil)
