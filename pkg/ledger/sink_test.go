package ledger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/threatgate/threatgate/pkg/threat"
)

func TestJSONLSinkRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "events.jsonl")

	sink, err := NewJSONLSink(path)
	if err != nil {
		t.Fatalf("NewJSONLSink: %v", err)
	}

	l := newLedger(t, sink)
	want := 3
	for i := 0; i < want; i++ {
		if _, err := l.Append(sampleResult("req"), "user-1", []string{"urgency"}, time.Time{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var got []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line %d: %v", len(got)+1, err)
		}
		got = append(got, e)
	}
	if err := scanner.Err(); err != nil {
		t.Fatal(err)
	}

	if len(got) != want {
		t.Fatalf("read %d entries, want %d", len(got), want)
	}
	prev := GenesisHash
	for i, e := range got {
		if e.Seq != uint64(i+1) {
			t.Errorf("entry %d seq = %d", i, e.Seq)
		}
		if e.PrevHash != prev {
			t.Errorf("entry %d prev_hash broken", i)
		}
		prev = e.Hash
	}
}

func TestJSONLSinkAppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	sink, err := NewJSONLSink(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Persist(Entry{Seq: 1, Hash: "a"}); err != nil {
		t.Fatal(err)
	}
	_ = sink.Close()

	sink, err = NewJSONLSink(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Persist(Entry{Seq: 2, Hash: "b"}); err != nil {
		t.Fatal(err)
	}

	last, ok, err := sink.Last()
	if err != nil {
		t.Fatal(err)
	}
	if !ok || last.Seq != 2 || last.Hash != "b" {
		t.Fatalf("Last = %+v, ok=%v, want seq 2 hash b", last, ok)
	}
	_ = sink.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Fatalf("file has %d lines, want 2 (reopen must append, not truncate)", lines)
	}
}

func TestJSONLSinkLastEmpty(t *testing.T) {
	sink, err := NewJSONLSink(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	if _, ok, err := sink.Last(); err != nil || ok {
		t.Fatalf("Last on empty log = ok=%v err=%v, want no entry", ok, err)
	}
}

func TestJSONLSinkRestartContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	sink, err := NewJSONLSink(path)
	if err != nil {
		t.Fatal(err)
	}
	l := newLedger(t, sink)
	first, err := l.Append(sampleResult("req-1"), "user-1", nil, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	_ = sink.Close()

	sink, err = NewJSONLSink(path)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	l = newLedger(t, sink)
	second, err := l.Append(sampleResult("req-2"), "user-1", nil, time.Time{})
	if err != nil {
		t.Fatalf("append after restart: %v", err)
	}
	if second.Seq != 2 {
		t.Errorf("seq = %d, want 2", second.Seq)
	}
	if second.PrevHash != first.Hash {
		t.Error("restarted ledger did not link to the persisted chain")
	}
	if ok, broken := l.Verify(0, 0); !ok {
		t.Fatalf("chain broken at seq %d after restart", broken)
	}
}

func TestSQLiteSinkPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	sink, err := NewSQLiteSink(path)
	if err != nil {
		t.Fatalf("NewSQLiteSink: %v", err)
	}
	defer sink.Close()

	l := newLedger(t, sink)
	res := sampleResult("req-1")
	res.ThreatType = threat.Scam
	res.Action = threat.ActionFlag
	res.RiskScore = 56
	entry, err := l.Append(res, "user-1", []string{"urgency", "authority_claim"}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}

	var (
		count      int
		threatType string
		action     string
		riskScore  int
		signals    string
		hash       string
	)
	if err := sink.db.QueryRow(`SELECT COUNT(*) FROM audit_entries`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("row count = %d, want 1", count)
	}
	err = sink.db.QueryRow(
		`SELECT threat_type, action, risk_score, signals, hash FROM audit_entries WHERE seq = ?`,
		entry.Seq,
	).Scan(&threatType, &action, &riskScore, &signals, &hash)
	if err != nil {
		t.Fatal(err)
	}
	if threatType != "scam" || action != "flag" || riskScore != 56 {
		t.Errorf("row = %s/%s/%d", threatType, action, riskScore)
	}
	if signals != "urgency,authority_claim" {
		t.Errorf("signals = %q", signals)
	}
	if hash != entry.Hash {
		t.Error("stored hash differs from chained hash")
	}
}

func TestSQLiteSinkRestartContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	sink, err := NewSQLiteSink(path)
	if err != nil {
		t.Fatal(err)
	}
	l := newLedger(t, sink)
	first, err := l.Append(sampleResult("req-1"), "user-1", []string{"urgency"}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	// A gateway restart over the same database must not collide with the
	// persisted seq 1 row.
	sink, err = NewSQLiteSink(path)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	last, ok, err := sink.Last()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Last found no entry in a non-empty database")
	}
	if last.Hash != first.Hash || last.Seq != 1 {
		t.Fatalf("Last = seq %d hash %q, want seq 1 hash %q", last.Seq, last.Hash, first.Hash)
	}
	if len(last.Signals) != 1 || last.Signals[0] != "urgency" {
		t.Errorf("Last signals = %v, want [urgency]", last.Signals)
	}

	l = newLedger(t, sink)
	second, err := l.Append(sampleResult("req-2"), "user-1", nil, time.Time{})
	if err != nil {
		t.Fatalf("append after restart: %v", err)
	}
	if second.Seq != 2 {
		t.Errorf("seq = %d, want 2", second.Seq)
	}
	if second.PrevHash != first.Hash {
		t.Error("restarted ledger did not link to the persisted chain")
	}
	if ok, broken := l.Verify(0, 0); !ok {
		t.Fatalf("chain broken at seq %d after restart", broken)
	}
}

func TestSQLiteSinkLastEmpty(t *testing.T) {
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	if _, ok, err := sink.Last(); err != nil || ok {
		t.Fatalf("Last on empty database = ok=%v err=%v, want no entry", ok, err)
	}
}

func TestSQLiteSinkRejectsDuplicateSeq(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	sink, err := NewSQLiteSink(path)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	if err := sink.Persist(Entry{Seq: 1, Hash: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Persist(Entry{Seq: 1, Hash: "b"}); err == nil {
		t.Fatal("duplicate seq should violate the primary key")
	}
}
