// Package engine sequences the decision pipeline per request: rule matching
// and classification fan out concurrently, then fusion, identity memory,
// escalation, and the audit ledger run in order, producing one
// AnalysisResult per accepted message.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/threatgate/threatgate/pkg/classifier"
	"github.com/threatgate/threatgate/pkg/fusion"
	"github.com/threatgate/threatgate/pkg/ledger"
	"github.com/threatgate/threatgate/pkg/memory"
	"github.com/threatgate/threatgate/pkg/policy"
	"github.com/threatgate/threatgate/pkg/rules"
	"github.com/threatgate/threatgate/pkg/telemetry"
	"github.com/threatgate/threatgate/pkg/threat"
)

// Options bundle the engine's tunables.
type Options struct {
	Weights       fusion.Weights
	Limits        policy.Limits
	MaxMessageLen int // structural limit; 0 uses rules.DefaultMaxMessageLen
}

// Engine is the decision orchestrator. All dependencies are injected;
// the engine itself holds no mutable state beyond its collaborators.
type Engine struct {
	rules    *rules.Engine
	gateway  *classifier.Gateway
	store    memory.Store
	ledger   *ledger.Ledger
	counters *telemetry.Counters
	opts     Options
}

// New creates an Engine. gateway, store and ledger must be non-nil;
// counters may be nil when telemetry is not wanted.
func New(ruleEngine *rules.Engine, gateway *classifier.Gateway, store memory.Store, auditLedger *ledger.Ledger, counters *telemetry.Counters, opts Options) *Engine {
	if opts.MaxMessageLen <= 0 {
		opts.MaxMessageLen = rules.DefaultMaxMessageLen
	}
	if ruleEngine == nil {
		ruleEngine = rules.NewEngine(nil, opts.MaxMessageLen)
	}
	return &Engine{
		rules:    ruleEngine,
		gateway:  gateway,
		store:    store,
		ledger:   auditLedger,
		counters: counters,
		opts:     opts,
	}
}

// Analyze runs the pipeline for one request. It fails only on structurally
// invalid input; every internal degradation (classifier down, memory store
// down, ledger append failure) is surfaced inside the result instead.
func (e *Engine) Analyze(ctx context.Context, req threat.AnalysisRequest) (threat.AnalysisResult, error) {
	if err := req.Validate(e.opts.MaxMessageLen); err != nil {
		return threat.AnalysisResult{}, err
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = time.Now().UTC()
	}

	// Rule matching and the classifier call are independent; run them
	// concurrently and join. This is the pipeline's only fan-out point.
	var (
		matches []threat.RuleMatch
		verdict threat.ClassifierVerdict
		wg      sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		matches = e.rules.Match(req.Message)
	}()
	go func() {
		defer wg.Done()
		verdict = e.gateway.Classify(ctx, req.Message)
	}()
	wg.Wait()

	assessment := fusion.Fuse(matches, verdict, e.opts.Weights)
	violated := assessment.BaseAction != threat.ActionAllow

	// Atomic read-modify-write of the identity's violation history. A dead
	// store fails open: escalation is skipped rather than blocking all
	// traffic because history is unreachable.
	memoryDegraded := false
	hits, err := e.store.RecordAndEscalate(ctx, req.Identity, violated)
	if err != nil {
		log.Printf("○ memory store unavailable for identity update: %v", err)
		memoryDegraded = true
		hits = 0
	}

	final := assessment.BaseAction
	if !memoryDegraded {
		final = policy.Escalate(assessment.BaseAction, hits, verdict.Threat, e.opts.Limits)
	}

	result := threat.AnalysisResult{
		RequestID:       uuid.NewString(),
		ThreatType:      verdict.Threat,
		Confidence:      verdict.Confidence,
		Reason:          buildReason(verdict, matches),
		RiskScore:       assessment.Score,
		Action:          final,
		ConfidenceLevel: threat.BucketConfidence(verdict.Confidence),
		DecisionTrace: threat.DecisionTrace{
			LLMThreat:   verdict.Threat,
			Confidence:  verdict.Confidence,
			RiskScore:   assessment.Score,
			BaseAction:  assessment.BaseAction,
			MemoryHits:  hits,
			FinalAction: final,
		},
		RuleMatches:    matches,
		MemoryDegraded: memoryDegraded,
	}

	// The decision is never lost from the caller's perspective: a failed
	// append marks the result unaudited instead of dropping it.
	if _, err := e.ledger.Append(result, req.Identity, rules.Signals(matches), req.ReceivedAt); err != nil {
		log.Printf("○ audit append failed for request %s: %v", result.RequestID, err)
		result.Unaudited = true
	}

	if e.counters != nil {
		e.counters.Observe(result)
	}
	return result, nil
}

// buildReason produces the human-readable justification. The classifier's
// reason wins when present; a degraded verdict falls back to describing the
// strongest rule hit.
func buildReason(verdict threat.ClassifierVerdict, matches []threat.RuleMatch) string {
	if !verdict.Degraded && verdict.Reason != "" {
		return verdict.Reason
	}
	if len(matches) > 0 {
		m := matches[0] // highest severity first
		return fmt.Sprintf("classifier unavailable; strongest rule hit: %s (%s)", m.Rule, m.Category)
	}
	if verdict.Degraded {
		return "classifier unavailable and no rule hits"
	}
	return "no threat indicators"
}
