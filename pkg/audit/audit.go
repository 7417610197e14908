// Package audit implements the append-only, hash-chained JSONL audit log.
//
// Each entry carries prev_hash and entry_hash, where
//
//	entry_hash = SHA-256(prev_hash || canonicalJSON(entry without entry_hash))
//
// and the first entry chains from the literal "GENESIS". Any edit,
// reorder, or deletion breaks verification from that entry onward.
// Sensitive fields are redacted before hashing, so the chain covers what
// was actually persisted.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Mindburn-Labs/cord/pkg/canonicalize"
)

// RedactionLevel controls how much of the proposal text survives logging.
type RedactionLevel string

const (
	RedactNone RedactionLevel = "none"
	RedactPII  RedactionLevel = "pii"
	RedactFull RedactionLevel = "full"
)

// Genesis is the prev_hash of the first chain entry.
const Genesis = "GENESIS"

// redactedFields are entry keys scrubbed before hashing and writing.
var redactedFields = []string{"proposal", "text", "path"}

var piiRedactions = []struct {
	pattern *regexp.Regexp
	token   string
}{
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN-REDACTED]"},
	{regexp.MustCompile(`\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|` +
		`3[47][0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12})\b`), "[CC-REDACTED]"},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`), "[EMAIL-REDACTED]"},
	{regexp.MustCompile(`\b(\+1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`), "[PHONE-REDACTED]"},
}

// Redact scrubs PII from text according to level. RedactFull replaces the
// whole text with a hash prefix; RedactPII substitutes per-type tokens in
// SSN, credit card, email, phone order.
func Redact(text string, level RedactionLevel) string {
	if text == "" || level == RedactNone {
		return text
	}
	if level == RedactFull {
		sum := sha256.Sum256([]byte(text))
		return hex.EncodeToString(sum[:])[:16] + "...[redacted]"
	}
	for _, r := range piiRedactions {
		text = r.pattern.ReplaceAllString(text, r.token)
	}
	return text
}

// Log is a hash-chained JSONL audit log backed by a single file.
// Appends are serialized; the file is opened O_APPEND per write.
type Log struct {
	mu        sync.Mutex
	path      string
	redaction RedactionLevel
}

// New returns a Log writing to path with the given redaction level.
// An unknown level falls back to RedactPII.
func New(path string, redaction RedactionLevel) *Log {
	switch redaction {
	case RedactNone, RedactPII, RedactFull:
	default:
		redaction = RedactPII
	}
	return &Log{path: path, redaction: redaction}
}

// Path returns the log file location.
func (l *Log) Path() string { return l.path }

func canonicalHash(prev string, entry map[string]json.RawMessage) (string, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("audit: marshal entry: %w", err)
	}
	canonical, err := canonicalize.Bytes(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(append([]byte(prev), canonical...))
	return hex.EncodeToString(sum[:]), nil
}

// lastHash reads the entry_hash of the final parseable line, or Genesis
// for a missing or empty log. Unparseable trailing lines yield Genesis,
// which verification then reports as a break.
func (l *Log) lastHash() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return Genesis
	}
	lines := nonEmptyLines(string(data))
	if len(lines) == 0 {
		return Genesis
	}
	var entry struct {
		EntryHash string `json:"entry_hash"`
	}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil || entry.EntryHash == "" {
		return Genesis
	}
	return entry.EntryHash
}

// Append writes a hash-chained entry and returns its entry_hash.
// Redaction is applied to sensitive fields before hashing.
func (l *Log) Append(entry map[string]any) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sanitized := make(map[string]json.RawMessage, len(entry)+3)
	for k, v := range entry {
		if s, ok := v.(string); ok {
			for _, f := range redactedFields {
				if k == f {
					v = Redact(s, l.redaction)
					break
				}
			}
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("audit: marshal field %q: %w", k, err)
		}
		sanitized[k] = raw
	}

	timestamp, _ := json.Marshal(time.Now().UTC().Format(time.RFC3339Nano))
	sanitized["timestamp"] = timestamp
	prev := l.lastHash()
	prevRaw, _ := json.Marshal(prev)
	sanitized["prev_hash"] = prevRaw

	entryHash, err := canonicalHash(prev, sanitized)
	if err != nil {
		return "", err
	}
	hashRaw, _ := json.Marshal(entryHash)
	sanitized["entry_hash"] = hashRaw

	line, err := json.Marshal(sanitized)
	if err != nil {
		return "", fmt.Errorf("audit: marshal line: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return "", fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return "", fmt.Errorf("audit: write entry: %w", err)
	}
	return entryHash, nil
}

// Verify walks the chain from Genesis. It returns (true, n) for an intact
// log of n entries, or (false, i) where i is the index of the first entry
// that fails: unparseable, wrong prev_hash, or wrong recomputed hash.
// A missing or empty log verifies as (true, 0).
func (l *Log) Verify() (bool, int) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return true, 0
	}
	lines := nonEmptyLines(string(data))
	if len(lines) == 0 {
		return true, 0
	}

	expectedPrev := Genesis
	for i, line := range lines {
		var entry map[string]json.RawMessage
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return false, i
		}
		var prev string
		if raw, ok := entry["prev_hash"]; !ok || json.Unmarshal(raw, &prev) != nil {
			return false, i
		}
		if prev != expectedPrev {
			return false, i
		}
		var stored string
		if raw, ok := entry["entry_hash"]; !ok || json.Unmarshal(raw, &stored) != nil {
			return false, i
		}
		delete(entry, "entry_hash")
		recomputed, err := canonicalHash(prev, entry)
		if err != nil || stored != recomputed {
			return false, i
		}
		expectedPrev = stored
	}
	return true, len(lines)
}

// Read returns every parseable entry in file order, skipping bad lines.
func (l *Log) Read() []map[string]any {
	f, err := os.Open(l.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var entries []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// RateWindow counts entries whose timestamp falls inside the trailing
// window. It returns whether the count reaches maxCount, the count, and
// the per-minute rate rounded to one decimal.
func (l *Log) RateWindow(window time.Duration, maxCount int) (bool, int, float64) {
	entries := l.Read()
	if len(entries) == 0 {
		return false, 0, 0.0
	}

	cutoff := time.Now().UTC().Add(-window)
	count := 0
	for _, entry := range entries {
		s, ok := entry["timestamp"].(string)
		if !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			continue
		}
		if !ts.Before(cutoff) {
			count++
		}
	}

	rate := float64(count) / window.Seconds() * 60
	rate = roundTo1(rate)
	return count >= maxCount, count, rate
}

func nonEmptyLines(data string) []string {
	var lines []string
	for _, line := range strings.Split(data, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func roundTo1(f float64) float64 {
	return float64(int64(f*10+0.5)) / 10
}
