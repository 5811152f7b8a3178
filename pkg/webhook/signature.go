package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// SignaturePrefix identifies the HMAC algorithm in the signature header value.
// The "sha256=<hex>" format follows the scheme popularized by GitHub webhooks.
const SignaturePrefix = "sha256="

// Sign computes an HMAC-SHA256 signature over payload and returns it in
// "sha256=<hex>" form. The payload should be the canonical JSON encoding of
// the delivery envelope (see CanonicalJSON) so that sender and receiver agree
// on the exact bytes being authenticated.
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return SignaturePrefix + hex.EncodeToString(h.Sum(nil))
}

// Verify recomputes the payload signature and compares it to the provided one
// in constant time. It accepts signatures with or without the "sha256=" prefix
// for compatibility with receivers that strip it before comparison.
func Verify(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, payload)
	signature = SignaturePrefix + strings.TrimPrefix(signature, SignaturePrefix)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// CanonicalJSON encodes v as JSON with object keys sorted lexicographically at
// every nesting level, producing a byte-stable encoding suitable as HMAC input.
// Numbers round-trip through json.Number so their textual representation is
// preserved exactly.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	// Round-trip through an untyped decode: encoding/json marshals
	// map[string]any with sorted keys, which yields the canonical form.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return canonical, nil
}
