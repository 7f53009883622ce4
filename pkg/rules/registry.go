// Package rules implements the deterministic rule layer of the decision
// pipeline: a centralized, compile-once registry of threat patterns matched
// against normalized message text.
//
// Design principles:
// - COMPILE ONCE: all regexes compiled at registry construction, not per-request
// - DETERMINISTIC: matching is a pure function of text and the rule set
// - CATEGORIZED: rules are organized by threat category for scoring and signals
// - EXTENSIBLE: operators can add rules from a YAML file without rebuilding
package rules

import (
	"fmt"
	"os"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"
)

// Category groups rules by the kind of threat signal they detect.
type Category string

const (
	CategoryPhishingURL   Category = "phishing_url"
	CategoryCredential    Category = "credential_harvesting"
	CategoryScam          Category = "scam"
	CategoryImpersonation Category = "impersonation"
	CategoryMalware       Category = "malware"
	CategoryPromptInj     Category = "prompt_injection"

	// Behavioral signal categories. These carry low severities on their own
	// but are recorded as signals in audit entries.
	CategoryUrgency   Category = "urgency"
	CategoryAuthority Category = "authority_claim"
)

// Rule holds a compiled regex with metadata.
type Rule struct {
	Name        string         // Stable identifier for logging and traces
	Regex       *regexp.Regexp // Compiled regex (never nil after registration)
	Category    Category       // Threat category
	Severity    int            // Risk score contribution (0-100)
	Description string         // What this rule detects
}

// Registry holds all compiled rules, organized by category.
type Registry struct {
	mu         sync.RWMutex
	byCategory map[Category][]*Rule
	all        []*Rule
}

// global singleton with the built-in rule set - initialized once
var (
	globalRegistry *Registry
	initOnce       sync.Once
)

// Get returns the global rule registry with the built-in rule set.
// Thread-safe and guaranteed to be initialized.
func Get() *Registry {
	initOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// NewRegistry creates a registry populated with the built-in rule set.
func NewRegistry() *Registry {
	r := &Registry{
		byCategory: make(map[Category][]*Rule),
		all:        make([]*Rule, 0, 64),
	}

	r.registerPhishingURLRules()
	r.registerCredentialRules()
	r.registerScamRules()
	r.registerImpersonationRules()
	r.registerMalwareRules()
	r.registerPromptInjectionRules()
	r.registerSignalRules()

	return r
}

// register adds a rule to the registry. Built-in patterns must compile;
// a bad pattern here is a programming defect, so MustCompile is correct.
func (r *Registry) register(name, pattern string, category Category, severity int, description string) {
	r.add(&Rule{
		Name:        name,
		Regex:       regexp.MustCompile(pattern),
		Category:    category,
		Severity:    severity,
		Description: description,
	})
}

func (r *Registry) add(rule *Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCategory[rule.Category] = append(r.byCategory[rule.Category], rule)
	r.all = append(r.all, rule)
}

// All returns every registered rule. The returned slice must not be mutated.
func (r *Registry) All() []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.all
}

// GetByCategory returns all rules for a category (never nil).
func (r *Registry) GetByCategory(cat Category) []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rules, ok := r.byCategory[cat]; ok {
		return rules
	}
	return []*Rule{}
}

// TotalRules returns the count of registered rules.
func (r *Registry) TotalRules() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// yamlRule is the on-disk shape of an operator-supplied rule.
type yamlRule struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Category    string `yaml:"category"`
	Severity    int    `yaml:"severity"`
	Description string `yaml:"description"`
}

type yamlRuleFile struct {
	Rules []yamlRule `yaml:"rules"`
}

// LoadYAML registers additional rules from a YAML file:
//
//	rules:
//	  - name: acme_internal_phish
//	    pattern: '(?i)acme-sso\.example\.com'
//	    category: phishing_url
//	    severity: 80
//	    description: Known lookalike of the corporate SSO domain
//
// Invalid entries abort the load with the offending rule named; rules
// registered before the failure remain registered.
func (r *Registry) LoadYAML(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read rules file: %w", err)
	}

	var file yamlRuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse rules file: %w", err)
	}

	loaded := 0
	for _, yr := range file.Rules {
		if yr.Name == "" || yr.Pattern == "" {
			return loaded, fmt.Errorf("rule %d: name and pattern are required", loaded+1)
		}
		re, err := regexp.Compile(yr.Pattern)
		if err != nil {
			return loaded, fmt.Errorf("rule %q: %w", yr.Name, err)
		}
		sev := yr.Severity
		if sev < 0 {
			sev = 0
		}
		if sev > 100 {
			sev = 100
		}
		r.add(&Rule{
			Name:        yr.Name,
			Regex:       re,
			Category:    Category(yr.Category),
			Severity:    sev,
			Description: yr.Description,
		})
		loaded++
	}
	return loaded, nil
}
