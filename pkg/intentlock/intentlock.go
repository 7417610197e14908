// Package intentlock binds a session to a declared intent: who is
// operating, what they intend to do, which paths, commands, and network
// targets are in bounds, and a passphrase hash for unlock verification.
package intentlock

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Mindburn-Labs/cord/pkg/policy"
)

// ErrMissingFields is returned by Set when user id, passphrase, or intent
// text is empty.
var ErrMissingFields = errors.New("intentlock: user_id, passphrase, and intent_text are required")

// Scope defines the allowed boundaries for a session.
type Scope struct {
	AllowPaths          []string `json:"allow_paths"`
	AllowCommands       []string `json:"allow_commands"`
	AllowNetworkTargets []string `json:"allow_network_targets"`
}

// scopeDoc accepts both snake_case and camelCase keys on load.
type scopeDoc struct {
	AllowPaths         []string `json:"allow_paths"`
	AllowPathsAlt      []string `json:"allowPaths"`
	AllowCommands      []string `json:"allow_commands"`
	AllowCommandsAlt   []string `json:"allowCommands"`
	AllowNetTargets    []string `json:"allow_network_targets"`
	AllowNetTargetsAlt []string `json:"allowNetworkTargets"`
}

func (d scopeDoc) toScope() Scope {
	pick := func(a, b []string) []string {
		if a != nil {
			return a
		}
		if b != nil {
			return b
		}
		return []string{}
	}
	return Scope{
		AllowPaths:          pick(d.AllowPaths, d.AllowPathsAlt),
		AllowCommands:       pick(d.AllowCommands, d.AllowCommandsAlt),
		AllowNetworkTargets: pick(d.AllowNetTargets, d.AllowNetTargetsAlt),
	}
}

// PathAllowed reports whether targetPath resolves inside root and under at
// least one allowed path prefix. An empty target is allowed; an empty
// allowlist denies every non-empty target.
func (s Scope) PathAllowed(targetPath, root string) bool {
	if targetPath == "" {
		return true
	}
	abs, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	if !strings.HasPrefix(abs, absRoot) {
		return false
	}
	for _, p := range s.AllowPaths {
		allowed, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if strings.HasPrefix(abs, allowed) {
			return true
		}
	}
	return false
}

// NetworkAllowed reports whether target contains any allowed host.
// Matching is substring containment, so an allowlist entry "example.com"
// covers "api.example.com/path".
func (s Scope) NetworkAllowed(target string) bool {
	if target == "" {
		return false
	}
	for _, host := range s.AllowNetworkTargets {
		if strings.Contains(target, host) {
			return true
		}
	}
	return false
}

// CommandAllowed reports whether the proposal text matches any allowed
// command pattern. Patterns are case-insensitive regexes; invalid
// patterns never match. An empty proposal is allowed.
func (s Scope) CommandAllowed(proposal string) bool {
	if proposal == "" {
		return true
	}
	for _, pattern := range s.AllowCommands {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			continue
		}
		if re.MatchString(proposal) {
			return true
		}
	}
	return false
}

// Lock is an active intent lock binding a session to a declared purpose.
type Lock struct {
	UserID         string `json:"user_id"`
	IntentText     string `json:"intent_text"`
	Scope          Scope  `json:"scope"`
	PassphraseHash string `json:"passphrase_hash"`
	CreatedAt      string `json:"created_at"`
}

func hashPassphrase(passphrase string) string {
	sum := sha256.Sum256([]byte(passphrase))
	return hex.EncodeToString(sum[:])
}

// Set creates and persists an intent lock. The write is atomic: the lock
// is staged to a temp file and renamed into place.
func Set(userID, passphrase, intentText string, scope Scope, path string) (*Lock, error) {
	if userID == "" || passphrase == "" || intentText == "" {
		return nil, ErrMissingFields
	}
	if scope.AllowPaths == nil {
		scope.AllowPaths = []string{}
	}
	if scope.AllowCommands == nil {
		scope.AllowCommands = []string{}
	}
	if scope.AllowNetworkTargets == nil {
		scope.AllowNetworkTargets = []string{}
	}

	lock := &Lock{
		UserID:         userID,
		IntentText:     intentText,
		Scope:          scope,
		PassphraseHash: hashPassphrase(passphrase),
		CreatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("intentlock: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".intent-lock-*")
	if err != nil {
		return nil, fmt.Errorf("intentlock: stage: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("intentlock: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("intentlock: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("intentlock: install: %w", err)
	}
	return lock, nil
}

// Load reads the lock at path. A missing, malformed, or incomplete lock
// file yields nil: the engine treats all three as "no lock set".
func Load(path string) *Lock {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var doc struct {
		UserID         string   `json:"user_id"`
		IntentText     string   `json:"intent_text"`
		Scope          scopeDoc `json:"scope"`
		PassphraseHash string   `json:"passphrase_hash"`
		CreatedAt      string   `json:"created_at"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	if doc.UserID == "" || doc.IntentText == "" || doc.PassphraseHash == "" {
		return nil
	}
	return &Lock{
		UserID:         doc.UserID,
		IntentText:     doc.IntentText,
		Scope:          doc.Scope.toScope(),
		PassphraseHash: doc.PassphraseHash,
		CreatedAt:      doc.CreatedAt,
	}
}

// VerifyPassphrase checks an attempt against the lock at path. No lock
// means no verification succeeds.
func VerifyPassphrase(attempt, path string) bool {
	lock := Load(path)
	if lock == nil {
		return false
	}
	return hashPassphrase(attempt) == lock.PassphraseHash
}

// IntentAligned reports whether proposal text aligns with the declared
// intent. Alignment holds when the session intent verbatim matches the
// lock intent (case-insensitive) or when stop-word-filtered proposal
// tokens overlap the synonym-expanded intent tokens.
func (l *Lock) IntentAligned(text, sessionIntent string) bool {
	intent := strings.ToLower(l.IntentText)
	if sessionIntent != "" && strings.ToLower(sessionIntent) == intent {
		return true
	}

	intentWords := contentWords(intent)
	textWords := contentWords(strings.ToLower(text))

	expanded := make(map[string]struct{}, len(intentWords))
	for w := range intentWords {
		expanded[w] = struct{}{}
	}
	for w := range intentWords {
		for key, synonyms := range policy.IntentSynonyms {
			if w != key && !contains(synonyms, w) {
				continue
			}
			expanded[key] = struct{}{}
			for _, syn := range synonyms {
				expanded[syn] = struct{}{}
			}
		}
	}

	for w := range textWords {
		if _, ok := expanded[w]; ok {
			return true
		}
	}
	return false
}

func contentWords(s string) map[string]struct{} {
	words := map[string]struct{}{}
	for _, w := range strings.Fields(s) {
		if _, stop := policy.IntentStopWords[w]; stop {
			continue
		}
		words[w] = struct{}{}
	}
	return words
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
