// Package policy maps (base action, identity history) to the final action.
// Escalation only ever tightens: the final action is never less restrictive
// than the base action. Pure and total so it is independently testable.
package policy

import "github.com/threatgate/threatgate/pkg/threat"

// Limits are the tunable repeat-offender thresholds. Zero values fall back
// to the defaults.
type Limits struct {
	// FlagRepeatLimit blocks an identity whose base action is flag once its
	// violation streak reaches this count (default 3).
	FlagRepeatLimit int
	// HighRiskRepeatLimit blocks repeated phishing or malware regardless of
	// base action once the streak reaches this count (default 5).
	HighRiskRepeatLimit int
}

// DefaultLimits returns the default escalation thresholds.
func DefaultLimits() Limits {
	return Limits{FlagRepeatLimit: 3, HighRiskRepeatLimit: 5}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.FlagRepeatLimit <= 0 {
		l.FlagRepeatLimit = d.FlagRepeatLimit
	}
	if l.HighRiskRepeatLimit <= 0 {
		l.HighRiskRepeatLimit = d.HighRiskRepeatLimit
	}
	return l
}

// Escalate applies the repeat-offender rules:
//
//	base action | condition                                  | final action
//	allow       | always                                     | allow
//	flag        | hits < FlagRepeatLimit                     | flag
//	flag        | hits >= FlagRepeatLimit                    | block
//	any         | phishing/malware, hits >= HighRiskRepeatLimit | block
//	block       | always                                     | block
//
// A benign label never escalates, and an allow base action stays allow:
// escalation acts on violating requests only.
func Escalate(base threat.Action, hits int, label threat.Type, l Limits) threat.Action {
	l = l.withDefaults()

	if base == threat.ActionAllow || label == threat.Benign {
		return base
	}

	final := base
	if base == threat.ActionFlag && hits >= l.FlagRepeatLimit {
		final = threat.ActionBlock
	}
	if (label == threat.Phishing || label == threat.Malware) && hits >= l.HighRiskRepeatLimit {
		final = threat.ActionBlock
	}

	// Monotonic tightening only.
	return threat.Stricter(base, final)
}
