// Package sequence maps session identifiers to ntfy sequence tokens so
// repeated publishes edit one notification in place instead of spawning
// a new one per progress report.
package sequence

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
)

// Registry owns the session -> token map. Entries are never evicted; the
// process is short-lived and the map is bounded by the number of distinct
// sessions it sees.
//
// The read-modify-write in RecordOrGenerate is a single critical section,
// so two overlapping publishes for the same session can never both mint a
// fresh token or clobber each other's writes.
type Registry struct {
	mu sync.Mutex

	// forced, when set, replaces minted tokens process-wide (NTFY_MCP_SEQUENCE_ID).
	forced string

	tokens map[string]string
}

// NewRegistry creates an empty registry. forced may be empty.
func NewRegistry(forced string) *Registry {
	return &Registry{forced: forced, tokens: map[string]string{}}
}

// TokenFor returns the stored token for session, if any. Read-only.
func (r *Registry) TokenFor(session string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.tokens[session]
	return tok, ok
}

// RecordOrGenerate resolves the token governing the outbound sequence header.
//
//   - wantsUpdate false: no token, no mutation (brand-new notification).
//   - callerToken set: stored verbatim, overwriting any prior value.
//   - forced token configured: used as-is, never stored per session.
//   - existing entry: returned unchanged.
//   - otherwise: a fresh token is minted and stored.
func (r *Registry) RecordOrGenerate(session, callerToken string, wantsUpdate bool) (string, bool) {
	if !wantsUpdate {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if callerToken != "" {
		r.tokens[session] = callerToken
		return callerToken, true
	}
	if r.forced != "" {
		return r.forced, true
	}
	if tok, ok := r.tokens[session]; ok {
		return tok, true
	}
	tok := newToken()
	r.tokens[session] = tok
	return tok, true
}

// Len reports the number of stored entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

// Forced reports whether a process-wide token override is configured.
func (r *Registry) Forced() bool { return r.forced != "" }

// newToken mints an 8-byte URL-safe random token, the same shape ntfy
// sequence IDs typically take.
func newToken() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
