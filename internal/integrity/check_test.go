package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeBinary(t *testing.T) (string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "geowatch")
	content := []byte("test binary content")
	if err := os.WriteFile(path, content, 0o755); err != nil {
		t.Fatal(err)
	}
	h := sha256.Sum256(content)
	return path, hex.EncodeToString(h[:])
}

func TestVerifyFileMatches(t *testing.T) {
	path, hash := writeBinary(t)

	res, err := VerifyFile(path, strings.ToUpper(hash))
	if err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if res.Skipped || res.Actual != hash {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestVerifyFileMismatch(t *testing.T) {
	path, _ := writeBinary(t)

	res, err := VerifyFile(path, strings.Repeat("ab", 32))
	if !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
	if !strings.Contains(res.Reason(), "abababababababab") {
		t.Errorf("reason should name the expected hash: %s", res.Reason())
	}
}

func TestVerifyFileSkipsWithoutExpected(t *testing.T) {
	path, _ := writeBinary(t)

	res, err := VerifyFile(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped {
		t.Error("expected Skipped without an expected hash")
	}
}

func TestVerifyFileMissing(t *testing.T) {
	if _, err := VerifyFile(filepath.Join(t.TempDir(), "nope"), "abc"); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestExpectedPrefersBuildHash(t *testing.T) {
	old, oldPaths := ExpectedHash, ChecksumPaths
	defer func() { ExpectedHash, ChecksumPaths = old, oldPaths }()

	sum := filepath.Join(t.TempDir(), "binary.sha256")
	fileHash := strings.Repeat("cd", 32)
	if err := os.WriteFile(sum, []byte(fileHash+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ChecksumPaths = []string{"/nonexistent/binary.sha256", sum}

	ExpectedHash = ""
	if got := Expected(); got != fileHash {
		t.Errorf("expected checksum file hash, got %q", got)
	}
	ExpectedHash = "build"
	if got := Expected(); got != "build" {
		t.Errorf("expected build hash, got %q", got)
	}
}

func TestExpectedIgnoresMalformedFile(t *testing.T) {
	old, oldPaths := ExpectedHash, ChecksumPaths
	defer func() { ExpectedHash, ChecksumPaths = old, oldPaths }()

	sum := filepath.Join(t.TempDir(), "binary.sha256")
	if err := os.WriteFile(sum, []byte("not-a-hash"), 0o644); err != nil {
		t.Fatal(err)
	}
	ExpectedHash = ""
	ChecksumPaths = []string{sum}
	if got := Expected(); got != "" {
		t.Errorf("expected empty for malformed file, got %q", got)
	}
}

func TestVerifyRunningBinarySkipsInTests(t *testing.T) {
	old, oldPaths := ExpectedHash, ChecksumPaths
	defer func() { ExpectedHash, ChecksumPaths = old, oldPaths }()
	ExpectedHash = ""
	ChecksumPaths = nil

	res, err := Verify()
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped || res.Actual == "" {
		t.Errorf("unexpected result %+v", res)
	}
}
