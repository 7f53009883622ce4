// Package classifier wraps the external semantic-reasoning capability that
// labels messages with a threat category. The pipeline consumes it through
// the Classifier interface so fusion and escalation logic can be exercised
// with a deterministic stub, without any live model call.
package classifier

import (
	"context"
	"sort"
	"strings"

	"github.com/threatgate/threatgate/pkg/threat"
)

// Classifier labels a message with a threat category and confidence.
// Implementations may call external services and should respect ctx.
type Classifier interface {
	Classify(ctx context.Context, text string) (threat.ClassifierVerdict, error)
}

// DegradedVerdict is the substitute returned when the classifier is
// unavailable or times out. Confidence 0 signals degradation to the caller.
func DegradedVerdict(reason string) threat.ClassifierVerdict {
	return threat.ClassifierVerdict{
		Threat:     threat.Unknown,
		Confidence: 0,
		Reason:     reason,
		Degraded:   true,
	}
}

// Stub is a deterministic classifier for tests and the offline CLI.
// If Verdicts has an entry whose key is a substring of the text, that
// verdict is returned; otherwise Fallback is returned. Needles are tried
// in lexicographic order so overlapping keys resolve the same way every
// call.
type Stub struct {
	Verdicts map[string]threat.ClassifierVerdict
	Fallback threat.ClassifierVerdict
	Err      error // returned instead of a verdict when set
}

// NewBenignStub returns a Stub that labels everything benign with high
// confidence.
func NewBenignStub() *Stub {
	return &Stub{
		Fallback: threat.ClassifierVerdict{Threat: threat.Benign, Confidence: 0.95, Reason: "no threat indicators"},
	}
}

func (s *Stub) Classify(_ context.Context, text string) (threat.ClassifierVerdict, error) {
	if s.Err != nil {
		return threat.ClassifierVerdict{}, s.Err
	}
	needles := make([]string, 0, len(s.Verdicts))
	for needle := range s.Verdicts {
		needles = append(needles, needle)
	}
	sort.Strings(needles)

	lower := strings.ToLower(text)
	for _, needle := range needles {
		if strings.Contains(lower, strings.ToLower(needle)) {
			return s.Verdicts[needle], nil
		}
	}
	return s.Fallback, nil
}

// normalizeVerdict clamps confidence into [0,1] and maps unrecognized labels
// to unknown so downstream stages only ever see well-typed verdicts.
func normalizeVerdict(v threat.ClassifierVerdict) threat.ClassifierVerdict {
	if !v.Threat.Valid() {
		v.Threat = threat.Unknown
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	return v
}
