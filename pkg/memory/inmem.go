package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// InMemoryStore is the default Store: a sharded locked map. Sharding keeps
// per-identity updates serialized while identities on different shards
// update fully in parallel. Empty on startup; no global singleton - callers
// hold a handle to one instance.
type InMemoryStore struct {
	shards [shardCount]shard
	window time.Duration
	now    func() time.Time // injectable clock for decay tests
}

type shard struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewInMemoryStore creates a store with the given decay window
// (<= 0 uses DefaultDecayWindow).
func NewInMemoryStore(window time.Duration) *InMemoryStore {
	if window <= 0 {
		window = DefaultDecayWindow
	}
	s := &InMemoryStore{window: window, now: time.Now}
	for i := range s.shards {
		s.shards[i].records = make(map[string]*Record)
	}
	return s
}

// SetClock overrides the store's clock. Test hook.
func (s *InMemoryStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *InMemoryStore) shardFor(identity string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identity))
	return &s.shards[h.Sum32()%shardCount]
}

// decayed returns the record after applying window expiry, or nil if the
// record is absent or fully decayed. Caller holds the shard lock.
func (s *InMemoryStore) decayed(sh *shard, identity string, now time.Time) *Record {
	rec, ok := sh.records[identity]
	if !ok {
		return nil
	}
	if now.Sub(rec.LastViolation) >= s.window {
		delete(sh.records, identity)
		return nil
	}
	return rec
}

// Read returns the identity's current record, with decay applied.
func (s *InMemoryStore) Read(_ context.Context, identity string) (Record, bool, error) {
	sh := s.shardFor(identity)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec := s.decayed(sh, identity, s.now())
	if rec == nil {
		return Record{}, false, nil
	}
	return *rec, true, nil
}

// RecordAndEscalate implements the Store contract. The whole read-modify-
// write runs under the shard lock, so two concurrent violations for the
// same identity always observe each other: hits N+1 and N+2, never twice
// N+1.
func (s *InMemoryStore) RecordAndEscalate(_ context.Context, identity string, violated bool) (int, error) {
	sh := s.shardFor(identity)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := s.now()
	rec := s.decayed(sh, identity, now)

	if !violated {
		if rec == nil {
			return 0, nil
		}
		return rec.ViolationCount, nil
	}

	if rec == nil {
		rec = &Record{Identity: identity}
		sh.records[identity] = rec
	}
	rec.ViolationCount++
	rec.LastViolation = now
	return rec.ViolationCount, nil
}
