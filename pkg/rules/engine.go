package rules

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/threatgate/threatgate/pkg/threat"
)

// Engine matches message text against a rule registry. Stateless and
// deterministic: the same text and rule set always produce the same matches.
type Engine struct {
	registry *Registry
	maxLen   int // rune limit; longer input yields no matches, not an error
}

// DefaultMaxMessageLen mirrors the caller-facing message limit.
const DefaultMaxMessageLen = 2000

// NewEngine creates an Engine over the given registry.
// maxLen <= 0 falls back to DefaultMaxMessageLen.
func NewEngine(registry *Registry, maxLen int) *Engine {
	if registry == nil {
		registry = Get()
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLen
	}
	return &Engine{registry: registry, maxLen: maxLen}
}

// Normalize applies NFKC normalization and lowercase folding so that
// width/compatibility obfuscation (fullwidth letters, ligatures) cannot
// slip keywords past the rule set. Match spans refer to this form.
func Normalize(text string) string {
	return strings.ToLower(norm.NFKC.String(text))
}

// Match returns all rule hits for the text, ordered by severity descending
// with ties broken by first match position. Empty or oversized input yields
// an empty list - absence of rule hits is a valid state, not a fault.
func (e *Engine) Match(text string) []threat.RuleMatch {
	if text == "" || len([]rune(text)) > e.maxLen {
		return nil
	}

	normalized := Normalize(text)

	var matches []threat.RuleMatch
	for _, rule := range e.registry.All() {
		loc := rule.Regex.FindStringIndex(normalized)
		if loc == nil {
			continue
		}
		matches = append(matches, threat.RuleMatch{
			Rule:        rule.Name,
			Category:    string(rule.Category),
			Span:        [2]int{loc[0], loc[1]},
			Severity:    rule.Severity,
			Description: rule.Description,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Severity != matches[j].Severity {
			return matches[i].Severity > matches[j].Severity
		}
		return matches[i].Span[0] < matches[j].Span[0]
	})
	return matches
}

// Signals extracts behavioral signal names (urgency, authority_claim) from a
// match list for audit records.
func Signals(matches []threat.RuleMatch) []string {
	seen := make(map[string]bool, 2)
	var signals []string
	for _, m := range matches {
		switch Category(m.Category) {
		case CategoryUrgency, CategoryAuthority:
			if !seen[m.Category] {
				seen[m.Category] = true
				signals = append(signals, m.Category)
			}
		}
	}
	return signals
}
