package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink persists chained entries durably. Persist must return only after the
// entry is written; a failed Persist leaves the chain without the entry.
// Last reports the most recently persisted entry so a restarting ledger can
// resume the chain where it left off.
type Sink interface {
	Persist(entry Entry) error
	Last() (Entry, bool, error)
	Close() error
}

// JSONLSink appends one JSON object per line to a log file. The default
// sink: human-greppable and trivially shippable.
type JSONLSink struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewJSONLSink opens (or creates) the audit log file in append mode.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &JSONLSink{path: path, file: f}, nil
}

// Last scans the log file and returns its final entry.
func (s *JSONLSink) Last() (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var line []byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if b := bytes.TrimSpace(sc.Bytes()); len(b) > 0 {
			line = append(line[:0], b...)
		}
	}
	if err := sc.Err(); err != nil {
		return Entry{}, false, fmt.Errorf("read audit log: %w", err)
	}
	if len(line) == 0 {
		return Entry{}, false, nil
	}

	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return Entry{}, false, fmt.Errorf("parse last audit entry: %w", err)
	}
	return e, true, nil
}

func (s *JSONLSink) Persist(entry Entry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(b); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	// Sync per entry: durability before the result is returned outweighs
	// write throughput at the ledger's request rates.
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
