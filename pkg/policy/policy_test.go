package policy

import (
	"testing"

	"github.com/threatgate/threatgate/pkg/threat"
)

func TestEscalate(t *testing.T) {
	tests := []struct {
		name  string
		base  threat.Action
		hits  int
		label threat.Type
		want  threat.Action
	}{
		{"allow never escalates", threat.ActionAllow, 100, threat.Scam, threat.ActionAllow},
		{"benign never escalates", threat.ActionFlag, 100, threat.Benign, threat.ActionFlag},

		{"first flag stays flag", threat.ActionFlag, 1, threat.Scam, threat.ActionFlag},
		{"second flag stays flag", threat.ActionFlag, 2, threat.Scam, threat.ActionFlag},
		{"third flag blocks", threat.ActionFlag, 3, threat.Scam, threat.ActionBlock},
		{"past the limit stays blocked", threat.ActionFlag, 7, threat.Scam, threat.ActionBlock},

		{"phishing under high-risk limit", threat.ActionFlag, 2, threat.Phishing, threat.ActionFlag},
		{"phishing at flag limit blocks", threat.ActionFlag, 3, threat.Phishing, threat.ActionBlock},
		{"phishing at high-risk limit blocks", threat.ActionFlag, 5, threat.Phishing, threat.ActionBlock},
		{"malware at high-risk limit blocks", threat.ActionFlag, 5, threat.Malware, threat.ActionBlock},
		{"scam never hits high-risk rule", threat.ActionFlag, 2, threat.Scam, threat.ActionFlag},

		{"block stays block", threat.ActionBlock, 1, threat.Phishing, threat.ActionBlock},
		{"block at limits stays block", threat.ActionBlock, 10, threat.Malware, threat.ActionBlock},

		{"zero hits flag stays flag", threat.ActionFlag, 0, threat.Scam, threat.ActionFlag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Escalate(tt.base, tt.hits, tt.label, Limits{})
			if got != tt.want {
				t.Errorf("Escalate(%s, %d, %s) = %s, want %s", tt.base, tt.hits, tt.label, got, tt.want)
			}
		})
	}
}

func TestEscalateCustomLimits(t *testing.T) {
	limits := Limits{FlagRepeatLimit: 2, HighRiskRepeatLimit: 3}

	if got := Escalate(threat.ActionFlag, 2, threat.Scam, limits); got != threat.ActionBlock {
		t.Errorf("custom flag limit: got %s, want block", got)
	}
	if got := Escalate(threat.ActionFlag, 1, threat.Scam, limits); got != threat.ActionFlag {
		t.Errorf("below custom flag limit: got %s, want flag", got)
	}
}

func TestEscalateMonotonic(t *testing.T) {
	// The final action is never less restrictive than the base action,
	// for every combination of inputs.
	actions := []threat.Action{threat.ActionAllow, threat.ActionFlag, threat.ActionBlock}
	labels := []threat.Type{
		threat.Phishing, threat.Scam, threat.Malware, threat.Impersonation,
		threat.PromptInjection, threat.Benign, threat.Unknown,
	}
	for _, base := range actions {
		for _, label := range labels {
			for hits := 0; hits <= 10; hits++ {
				final := Escalate(base, hits, label, Limits{})
				if final.WeakerThan(base) {
					t.Fatalf("Escalate(%s, %d, %s) = %s weakened the action", base, hits, label, final)
				}
			}
		}
	}
}

func TestLimitsZeroValueDefaults(t *testing.T) {
	if got := (Limits{}).withDefaults(); got != DefaultLimits() {
		t.Errorf("zero Limits defaults = %+v, want %+v", got, DefaultLimits())
	}
}
