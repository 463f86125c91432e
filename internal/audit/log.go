package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Log is an append-only JSONL verdict log. Each entry carries the hash of
// the line before it, so edits, deletions and insertions are detectable.
type Log struct {
	mu   sync.Mutex
	path string
	file *os.File
	tail string
	n    int
}

// Open opens or creates the log at path. An existing log is walked to
// recover the chain tail; a broken chain is refused with ErrBrokenChain so
// new verdicts are never appended behind a tampered entry.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	c := newChain()
	if existing, err := os.Open(path); err == nil {
		err = eachLine(existing, func(_ int, line []byte) error {
			_, err := c.link(line)
			return err
		})
		existing.Close()
		if err != nil {
			return nil, fmt.Errorf("audit: %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("audit: read existing log: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}
	if err := endLine(file); err != nil {
		file.Close()
		return nil, fmt.Errorf("audit: terminate last entry: %w", err)
	}
	return &Log{path: path, file: file, tail: c.tail, n: c.n}, nil
}

// endLine adds the newline a hand-edited or truncated log may be missing,
// so the next entry starts on its own line.
func endLine(f *os.File) error {
	st, err := f.Stat()
	if err != nil || st.Size() == 0 {
		return err
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, st.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.Write([]byte{'\n'})
	return err
}

// Record appends entry, stamping Timestamp when empty and PrevHash always.
func (l *Log) Record(entry AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp == "" {
		entry = entry.At(time.Now())
	}
	entry.PrevHash = l.tail

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}

	l.tail = HashLine(line)
	l.n++
	return nil
}

// Len returns the number of entries in the log, including those present
// before Open.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// Path returns the file the log appends to.
func (l *Log) Path() string {
	return l.path
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
