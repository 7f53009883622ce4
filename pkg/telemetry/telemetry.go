// Package telemetry tracks decision counters for the gateway. In-process
// atomics only; surfaced through the health endpoint rather than shipped
// anywhere.
package telemetry

import (
	"sync/atomic"

	"github.com/threatgate/threatgate/pkg/threat"
)

// Counters accumulates per-decision outcomes. Safe for concurrent use.
type Counters struct {
	analyses  atomic.Int64
	allowed   atomic.Int64
	flagged   atomic.Int64
	blocked   atomic.Int64
	escalated atomic.Int64 // final action stricter than base
	degraded  atomic.Int64 // classifier verdict was degraded
	unaudited atomic.Int64 // ledger append failed
}

// Observe records one completed analysis.
func (c *Counters) Observe(result threat.AnalysisResult) {
	c.analyses.Add(1)
	switch result.Action {
	case threat.ActionAllow:
		c.allowed.Add(1)
	case threat.ActionFlag:
		c.flagged.Add(1)
	case threat.ActionBlock:
		c.blocked.Add(1)
	}
	if result.DecisionTrace.BaseAction.WeakerThan(result.Action) {
		c.escalated.Add(1)
	}
	if result.ThreatType == threat.Unknown && result.Confidence == 0 {
		c.degraded.Add(1)
	}
	if result.Unaudited {
		c.unaudited.Add(1)
	}
}

// Snapshot returns the current counter values for the health endpoint.
func (c *Counters) Snapshot() map[string]int64 {
	return map[string]int64{
		"analyses":  c.analyses.Load(),
		"allowed":   c.allowed.Load(),
		"flagged":   c.flagged.Load(),
		"blocked":   c.blocked.Load(),
		"escalated": c.escalated.Load(),
		"degraded":  c.degraded.Load(),
		"unaudited": c.unaudited.Load(),
	}
}
