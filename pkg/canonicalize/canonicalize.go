// Package canonicalize produces RFC 8785 (JCS) canonical JSON. Audit chain
// hashes are computed over the canonical form so that key order and number
// formatting never affect verification.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JSON marshals v and returns its canonical form.
func JSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}
	return Bytes(raw)
}

// Bytes canonicalizes an already-serialized JSON document.
func Bytes(raw []byte) ([]byte, error) {
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: transform: %w", err)
	}
	return out, nil
}

// ChainHash returns the hex SHA-256 of prev concatenated with the canonical
// form of v.
func ChainHash(prev string, v any) (string, error) {
	canonical, err := JSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(append([]byte(prev), canonical...))
	return hex.EncodeToString(sum[:]), nil
}
