package audit

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Sessions  int    `json:"sessions"`
	Tampers   int    `json:"binary_tamper_events,omitempty"`
	Last      string `json:"last_timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// Verify opens path and checks its hash chain.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()
	return VerifyReader(f)
}

// VerifyReader checks the chain of a log read from r. On failure Lines is
// the number of entries verified before the first broken link.
func VerifyReader(r io.Reader) VerifyResult {
	c := newChain()
	var res VerifyResult
	sessions := make(map[string]bool)

	err := eachLine(r, func(_ int, line []byte) error {
		e, err := c.link(line)
		if err != nil {
			return err
		}
		if e.Session != "" {
			sessions[e.Session] = true
		}
		if e.Event == EventTamper {
			res.Tampers++
		}
		res.Last = e.Timestamp
		return nil
	})

	res.Lines = c.n
	res.Sessions = len(sessions)
	if err != nil {
		res.Error = err.Error()
		var le *linkError
		if errors.As(err, &le) {
			res.Error = le.err.Error()
			res.ErrorLine = le.line
		}
		return res
	}
	res.Valid = true
	return res
}

// Tail returns the raw last n lines of the log at path. n <= 0 returns all.
func Tail(path string, n int) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var lines [][]byte
	err = eachLine(f, func(_ int, line []byte) error {
		lines = append(lines, append([]byte(nil), line...))
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return lines, nil
}
