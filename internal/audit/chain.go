package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// GenesisHash is the prev_hash of the first entry in a log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// ErrBrokenChain reports an entry whose prev_hash does not match the line before it.
var ErrBrokenChain = errors.New("audit: hash chain broken")

// maxLine bounds one JSONL entry. Verdict entries are well under 1 KiB.
const maxLine = 1 << 20

// HashLine returns "sha256:<hex>" of one raw JSONL line.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}

// eachLine calls fn with every non-empty line of r, numbered from 1.
// The slice passed to fn is only valid during the call.
func eachLine(r io.Reader, fn func(n int, line []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLine)
	n := 0
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		n++
		if err := fn(n, line); err != nil {
			return err
		}
	}
	return sc.Err()
}

// linkError locates a chain failure.
type linkError struct {
	line int
	err  error
}

func (e *linkError) Error() string { return fmt.Sprintf("line %d: %v", e.line, e.err) }
func (e *linkError) Unwrap() error { return e.err }

// chain follows prev_hash links while walking a log.
type chain struct {
	tail string
	n    int
}

func newChain() *chain {
	return &chain{tail: GenesisHash}
}

// link parses line, checks it against the current tail and advances.
func (c *chain) link(line []byte) (AuditEntry, error) {
	var e AuditEntry
	if err := json.Unmarshal(line, &e); err != nil {
		return e, &linkError{line: c.n + 1, err: fmt.Errorf("parse error: %w", err)}
	}
	if e.PrevHash != c.tail {
		want := "hash of previous entry " + c.tail
		if c.n == 0 {
			want = "genesis hash"
		}
		return e, &linkError{line: c.n + 1, err: fmt.Errorf("%w: prev_hash is %q, expected %s", ErrBrokenChain, e.PrevHash, want)}
	}
	c.n++
	c.tail = HashLine(line)
	return e, nil
}
