package classifier

import (
	"context"
	"time"

	"github.com/threatgate/threatgate/pkg/threat"
)

// DefaultTimeout bounds a single classifier call.
const DefaultTimeout = 4 * time.Second

// Gateway enforces the pipeline's contract around any Classifier backend:
// exactly one call per request, a bounded timeout, and a degraded verdict
// on any failure. It never returns an error upward - a missing verdict must
// not abort the analysis.
type Gateway struct {
	backend Classifier
	timeout time.Duration
}

// NewGateway wraps backend with the gateway contract. A nil backend is
// valid and always yields a degraded verdict (classifier not configured).
func NewGateway(backend Classifier, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{backend: backend, timeout: timeout}
}

// Classify calls the backend once with the configured timeout. On timeout
// or any backend error it returns the degraded verdict {unknown, 0}.
// No retries here - retry policy belongs to the external caller.
func (g *Gateway) Classify(ctx context.Context, text string) threat.ClassifierVerdict {
	if g.backend == nil {
		return DegradedVerdict("classifier not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	verdict, err := g.backend.Classify(ctx, text)
	if err != nil {
		v := DegradedVerdict("classifier unavailable: " + err.Error())
		v.Latency = time.Since(start)
		return v
	}
	verdict = normalizeVerdict(verdict)
	if verdict.Latency == 0 {
		verdict.Latency = time.Since(start)
	}
	return verdict
}
