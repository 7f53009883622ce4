// Package ledger is the append-only, hash-chained audit record of every
// decision. Each entry's hash input includes the previous entry's hash, so
// retroactive tampering breaks the chain and is detectable by Verify. The
// ledger is independent of the decision pipeline: it records results, it
// never influences them.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/threatgate/threatgate/pkg/threat"
)

// GenesisHash seeds the chain before any entry exists.
const GenesisHash = "threatgate-ledger-genesis-v1"

// Entry is one audit record. Entries are addressed by sequence number
// (1-based) and are never mutated or deleted.
type Entry struct {
	Seq          uint64        `json:"seq"`
	Timestamp    time.Time     `json:"ts"`
	RequestID    string        `json:"request_id"`
	IdentityHash string        `json:"identity_hash"` // SHA-256 of the identity key, not the key itself
	ThreatType   threat.Type   `json:"threat_type"`
	Action       threat.Action `json:"action"`
	RiskScore    int           `json:"risk_score"`
	Signals      []string      `json:"signals,omitempty"`
	ResultHash   string        `json:"result_hash"` // SHA-256 of the canonical result JSON
	PrevHash     string        `json:"prev_hash"`
	Hash         string        `json:"hash"` // SHA-256 of this entry with Hash empty
}

// computeHash hashes the entry with its Hash field cleared.
func computeHash(e Entry) string {
	e.Hash = ""
	b, err := json.Marshal(e)
	if err != nil {
		// Entry contains only marshalable fields; failure here is a defect.
		panic(fmt.Sprintf("ledger: marshal entry: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashResult computes the content hash of an analysis result.
func HashResult(result threat.AnalysisResult) string {
	b, err := json.Marshal(result)
	if err != nil {
		panic(fmt.Sprintf("ledger: marshal result: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashIdentity hashes an identity key for storage. Audit entries must not
// leak raw identity keys.
func HashIdentity(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])
}

// Ledger holds the chain as an arena of entries addressed by sequence
// number. Appends serialize on one mutex; the critical section is hash and
// write only, deliberately narrow.
type Ledger struct {
	mu      sync.Mutex
	entries []Entry
	offset  uint64 // seq of entries[0] minus one; non-zero after a resume
	sink    Sink
	now     func() time.Time
}

// New creates a ledger persisting through sink. When the sink already holds
// entries the chain resumes from the last persisted one, so a restarted
// gateway continues the existing sequence instead of colliding with it.
// A nil sink keeps the chain in memory only.
func New(sink Sink) (*Ledger, error) {
	l := &Ledger{sink: sink, now: time.Now}
	if sink != nil {
		last, ok, err := sink.Last()
		if err != nil {
			return nil, fmt.Errorf("ledger resume: %w", err)
		}
		if ok {
			l.entries = []Entry{last}
			l.offset = last.Seq - 1
		}
	}
	return l, nil
}

// SetClock overrides the ledger clock. Test hook.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Append chains and persists one entry for the result. The entry is durable
// before Append returns; on sink failure nothing is recorded and the error
// is returned so the orchestrator can mark the result unaudited. A zero
// receivedAt stamps the entry with the ledger clock instead.
func (l *Ledger) Append(result threat.AnalysisResult, identity string, signals []string, receivedAt time.Time) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := GenesisHash
	if n := len(l.entries); n > 0 {
		prev = l.entries[n-1].Hash
	}

	ts := receivedAt
	if ts.IsZero() {
		ts = l.now()
	}

	entry := Entry{
		Seq:          l.offset + uint64(len(l.entries)) + 1,
		Timestamp:    ts.UTC(),
		RequestID:    result.RequestID,
		IdentityHash: HashIdentity(identity),
		ThreatType:   result.ThreatType,
		Action:       result.Action,
		RiskScore:    result.RiskScore,
		Signals:      signals,
		ResultHash:   HashResult(result),
		PrevHash:     prev,
	}
	entry.Hash = computeHash(entry)

	if l.sink != nil {
		if err := l.sink.Persist(entry); err != nil {
			return Entry{}, fmt.Errorf("ledger append: %w", err)
		}
	}

	l.entries = append(l.entries, entry)
	return entry, nil
}

// Len returns the length of the chain, counting entries persisted before a
// resume.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int(l.offset) + len(l.entries)
}

// Range returns a copy of in-memory entries with Seq in [from, to]. from <= 0
// means the first held entry; to <= 0 means the last. Entries persisted
// before a resume are only reachable through the sink.
func (l *Ledger) Range(from, to uint64) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return nil
	}
	lo := l.offset + 1
	hi := l.offset + uint64(len(l.entries))
	if from < lo {
		from = lo
	}
	if to == 0 || to > hi {
		to = hi
	}
	if from > to {
		return nil
	}

	out := make([]Entry, to-from+1)
	copy(out, l.entries[from-lo:to-lo+1])
	return out
}

// Verify recomputes the chain over [from, to] and reports the first broken
// link. ok is true when every held entry's hash matches its content and its
// PrevHash matches the predecessor's hash (or the genesis seed for entry 1).
// A resumed entry's backward link points outside memory and is not checked.
func (l *Ledger) Verify(from, to uint64) (ok bool, brokenSeq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return true, 0
	}
	lo := l.offset + 1
	hi := l.offset + uint64(len(l.entries))
	if from < lo {
		from = lo
	}
	if to == 0 || to > hi {
		to = hi
	}

	for seq := from; seq <= to; seq++ {
		e := l.entries[seq-lo]
		if computeHash(e) != e.Hash {
			return false, seq
		}
		if seq == lo {
			if e.Seq == 1 && e.PrevHash != GenesisHash {
				return false, seq
			}
			continue
		}
		if e.PrevHash != l.entries[seq-lo-1].Hash {
			return false, seq
		}
	}
	return true, 0
}
