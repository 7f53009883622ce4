package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRegistryInitialization(t *testing.T) {
	r := NewRegistry()

	if r.TotalRules() == 0 {
		t.Fatal("registry has no rules")
	}

	categories := []Category{
		CategoryPhishingURL,
		CategoryCredential,
		CategoryScam,
		CategoryImpersonation,
		CategoryMalware,
		CategoryPromptInj,
		CategoryUrgency,
		CategoryAuthority,
	}
	for _, cat := range categories {
		if len(r.GetByCategory(cat)) == 0 {
			t.Errorf("category %s has no rules", cat)
		}
	}
}

func TestRegistryGetSingleton(t *testing.T) {
	r1 := Get()
	r2 := Get()
	if r1 != r2 {
		t.Error("Get() should return the same registry instance")
	}
}

func TestAllRulesCompiled(t *testing.T) {
	for _, rule := range NewRegistry().All() {
		if rule.Regex == nil {
			t.Errorf("rule %s has nil regex", rule.Name)
		}
		if rule.Severity < 0 || rule.Severity > 100 {
			t.Errorf("rule %s severity %d out of range", rule.Name, rule.Severity)
		}
		if rule.Name == "" {
			t.Error("rule with empty name")
		}
	}
}

func TestGetByCategoryUnknown(t *testing.T) {
	if got := NewRegistry().GetByCategory(Category("no_such")); got == nil {
		t.Error("GetByCategory should return empty slice, not nil")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `rules:
  - name: acme_internal_phish
    pattern: '(?i)acme-sso\.example\.com'
    category: phishing_url
    severity: 80
    description: Known lookalike of the corporate SSO domain
  - name: test_overclamped
    pattern: 'overclamped'
    category: scam
    severity: 150
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	before := r.TotalRules()

	loaded, err := r.LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if loaded != 2 {
		t.Errorf("loaded %d rules, want 2", loaded)
	}
	if r.TotalRules() != before+2 {
		t.Errorf("TotalRules = %d, want %d", r.TotalRules(), before+2)
	}

	engine := NewEngine(r, 0)
	matches := engine.Match("log in at acme-sso.example.com please")
	found := false
	for _, m := range matches {
		if m.Rule == "acme_internal_phish" {
			found = true
			if m.Severity != 80 {
				t.Errorf("severity = %d, want 80", m.Severity)
			}
		}
		if m.Rule == "test_overclamped" {
			t.Error("overclamped rule should not match this text")
		}
	}
	if !found {
		t.Error("loaded rule did not fire")
	}

	// Severity above 100 clamps on load.
	for _, rule := range r.All() {
		if rule.Name == "test_overclamped" && rule.Severity != 100 {
			t.Errorf("severity %d not clamped to 100", rule.Severity)
		}
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad regex", "rules:\n  - name: broken\n    pattern: '('\n    category: scam\n    severity: 10\n"},
		{"missing name", "rules:\n  - pattern: 'x'\n    category: scam\n    severity: 10\n"},
		{"not yaml", "{{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rules.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := NewRegistry().LoadYAML(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadYAMLMissingFile(t *testing.T) {
	if _, err := NewRegistry().LoadYAML(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
