// Package threat defines the shared domain types of the ThreatGate decision
// pipeline: threat categories, moderation actions, and the request/result
// contract returned to callers.
package threat

import (
	"errors"
	"fmt"
	"time"
)

// Type is an enumerated threat category assigned to a message.
type Type string

const (
	Phishing        Type = "phishing"         // credential harvesting or account takeover
	Scam            Type = "scam"             // financial or social engineering fraud
	Malware         Type = "malware"          // malicious downloads or links
	Impersonation   Type = "impersonation"    // pretending to be authority or trusted entity
	PromptInjection Type = "prompt_injection" // attempts to override AI instructions
	Benign          Type = "benign"           // no threat detected
	Unknown         Type = "unknown"          // classifier unavailable, degraded substitute
)

// Valid reports whether t is a recognized threat category.
func (t Type) Valid() bool {
	switch t {
	case Phishing, Scam, Malware, Impersonation, PromptInjection, Benign, Unknown:
		return true
	}
	return false
}

// Severity returns the per-category risk multiplier in [0,1].
// Benign and unknown contribute nothing regardless of confidence.
func (t Type) Severity() float64 {
	switch t {
	case Phishing, Malware:
		return 1.0
	case Scam, Impersonation:
		return 0.8
	case PromptInjection:
		return 0.7
	default:
		return 0.0
	}
}

// Action is a moderation decision, ordered by restrictiveness.
type Action string

const (
	ActionAllow Action = "allow"
	ActionFlag  Action = "flag"
	ActionBlock Action = "block"
)

// rank maps actions to their restrictiveness order (allow < flag < block).
func (a Action) rank() int {
	switch a {
	case ActionFlag:
		return 1
	case ActionBlock:
		return 2
	default:
		return 0
	}
}

// Stricter returns the more restrictive of a and b.
func Stricter(a, b Action) Action {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// WeakerThan reports whether a is strictly less restrictive than b.
func (a Action) WeakerThan(b Action) bool {
	return a.rank() < b.rank()
}

// ConfidenceLevel buckets a raw classifier confidence for callers that
// render a qualitative label instead of a float.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// Confidence bucket boundaries.
const (
	confidenceHighFloor   = 0.7
	confidenceMediumFloor = 0.4
)

// BucketConfidence maps a raw confidence in [0,1] to a ConfidenceLevel.
func BucketConfidence(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= confidenceHighFloor:
		return ConfidenceHigh
	case confidence >= confidenceMediumFloor:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Structural validation errors. Requests failing these are rejected before
// any pipeline stage runs and produce no audit entry.
var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMissingIdentity = errors.New("identity key is missing")
	ErrMessageTooLong  = errors.New("message exceeds maximum length")
)

// AnalysisRequest is one message to analyze. Immutable once received.
type AnalysisRequest struct {
	Message    string    `json:"message"`
	Identity   string    `json:"identity"`
	ReceivedAt time.Time `json:"received_at"`
}

// Validate checks the request for structural problems.
// maxLen <= 0 disables the length check.
func (r AnalysisRequest) Validate(maxLen int) error {
	if r.Message == "" {
		return ErrEmptyMessage
	}
	if r.Identity == "" {
		return ErrMissingIdentity
	}
	if maxLen > 0 && len([]rune(r.Message)) > maxLen {
		return fmt.Errorf("%w (%d > %d)", ErrMessageTooLong, len([]rune(r.Message)), maxLen)
	}
	return nil
}

// RuleMatch is a single deterministic rule hit over the message text.
type RuleMatch struct {
	Rule        string `json:"rule"`
	Category    string `json:"category"`
	Span        [2]int `json:"span"` // [start, end) byte offsets in normalized text
	Severity    int    `json:"severity"`
	Description string `json:"description,omitempty"`
}

// ClassifierVerdict is the normalized output of the semantic classifier.
// Degraded is true when the classifier was unavailable and a fallback value
// was substituted; degraded verdicts always carry confidence 0.
type ClassifierVerdict struct {
	Threat     Type          `json:"threat_type"`
	Confidence float64       `json:"confidence"`
	Reason     string        `json:"reason,omitempty"`
	Latency    time.Duration `json:"-"`
	Degraded   bool          `json:"degraded,omitempty"`
}

// RiskAssessment is the fused risk score and provisional action, before
// identity history is applied. Derived, never stored on its own.
type RiskAssessment struct {
	Score      int    `json:"risk_score"` // 0-100
	BaseAction Action `json:"base_action"`
}

// DecisionTrace is a frozen snapshot of every intermediate value behind one
// decision, returned verbatim to the caller for auditability.
type DecisionTrace struct {
	LLMThreat   Type    `json:"llm_threat"`
	Confidence  float64 `json:"confidence"`
	RiskScore   int     `json:"risk_score"`
	BaseAction  Action  `json:"base_action"`
	MemoryHits  int     `json:"memory_hits"`
	FinalAction Action  `json:"final_action"`
}

// AnalysisResult is the unit returned per request and the unit persisted to
// the audit ledger. Unaudited marks a decision whose ledger append failed;
// MemoryDegraded marks a decision made without identity history because the
// memory store was unreachable (escalation skipped, fail-open).
type AnalysisResult struct {
	RequestID       string          `json:"request_id"`
	ThreatType      Type            `json:"threat_type"`
	Confidence      float64         `json:"confidence"`
	Reason          string          `json:"reason"`
	RiskScore       int             `json:"risk_score"`
	Action          Action          `json:"action"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	DecisionTrace   DecisionTrace   `json:"decision_trace"`
	RuleMatches     []RuleMatch     `json:"rule_matches,omitempty"`
	Unaudited       bool            `json:"unaudited,omitempty"`
	MemoryDegraded  bool            `json:"memory_degraded,omitempty"`
}
