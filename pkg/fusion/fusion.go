// Package fusion combines rule-engine findings and the classifier verdict
// into a numeric risk score and a provisional (base) action. Pure functions
// of their inputs and static weights - no I/O, no failure mode.
package fusion

import (
	"math"

	"github.com/threatgate/threatgate/pkg/threat"
)

// Weights are the tunable constants of risk fusion. Zero values fall back
// to the defaults, so a zero Weights{} behaves like DefaultWeights().
type Weights struct {
	BlockThreshold     int     // score at or above this blocks (default 80)
	FlagThreshold      int     // score at or above this flags (default 50)
	RuleWeight         float64 // multiplier on summed rule severities (default 0.5)
	RuleWeightDegraded float64 // rule multiplier when the verdict is degraded (default 1.0)
	RuleCap            int     // max score contribution of rules (default 45)
}

// DefaultWeights returns the default fusion constants.
func DefaultWeights() Weights {
	return Weights{
		BlockThreshold:     80,
		FlagThreshold:      50,
		RuleWeight:         0.5,
		RuleWeightDegraded: 1.0,
		RuleCap:            45,
	}
}

func (w Weights) withDefaults() Weights {
	d := DefaultWeights()
	if w.BlockThreshold <= 0 {
		w.BlockThreshold = d.BlockThreshold
	}
	if w.FlagThreshold <= 0 {
		w.FlagThreshold = d.FlagThreshold
	}
	if w.RuleWeight <= 0 {
		w.RuleWeight = d.RuleWeight
	}
	if w.RuleWeightDegraded <= 0 {
		w.RuleWeightDegraded = d.RuleWeightDegraded
	}
	if w.RuleCap <= 0 {
		w.RuleCap = d.RuleCap
	}
	return w
}

// Fuse computes the risk score and base action from rule matches and the
// classifier verdict.
//
// The score is the sum of two components, clamped to [0,100]:
//   - rules: summed match severities scaled by RuleWeight, capped at RuleCap.
//     A degraded verdict switches to RuleWeightDegraded so rules carry more
//     of the decision when semantic confidence is gone.
//   - classifier: Severity(label) x confidence x 100. Benign and unknown
//     labels contribute nothing regardless of confidence.
//
// A degraded verdict caps the base action at flag: the engine never blocks
// autonomously on rules alone.
func Fuse(matches []threat.RuleMatch, verdict threat.ClassifierVerdict, w Weights) threat.RiskAssessment {
	w = w.withDefaults()

	// Under a degraded verdict the rules carry the whole decision: full
	// weight, no cap. The fail-safe is the action clamp below, not the cap.
	ruleWeight := w.RuleWeight
	ruleCap := float64(w.RuleCap)
	if verdict.Degraded {
		ruleWeight = w.RuleWeightDegraded
		ruleCap = 100
	}
	severitySum := 0
	for _, m := range matches {
		severitySum += m.Severity
	}
	ruleComponent := math.Min(ruleCap, float64(severitySum)*ruleWeight)

	classifierComponent := verdict.Threat.Severity() * clamp01(verdict.Confidence) * 100

	score := int(math.Round(ruleComponent + classifierComponent))
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	action := threat.ActionAllow
	switch {
	case score >= w.BlockThreshold:
		action = threat.ActionBlock
	case score >= w.FlagThreshold:
		action = threat.ActionFlag
	}

	// Conservative fail-safe for reduced-confidence verdicts.
	if verdict.Degraded && action == threat.ActionBlock {
		action = threat.ActionFlag
	}

	return threat.RiskAssessment{Score: score, BaseAction: action}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
