// Package gate holds the process-wide publish on/off switch.
package gate

import "sync"

// Gate tracks whether publishing is currently enabled.
//
// The effective value is the environment override when one is present,
// otherwise the latest SetEnabled value. Startup default is disabled.
// State is purely in-memory; a restart re-evaluates the override and
// otherwise resets to disabled, so "restart to fully disable" always works.
//
// Safe for concurrent use.
type Gate struct {
	mu       sync.Mutex
	enabled  bool
	override *bool
}

// New creates a Gate. A non-nil override pins the effective value for the
// life of the process.
func New(override *bool) *Gate {
	return &Gate{override: override}
}

// Enabled reports the effective state.
func (g *Gate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.override != nil {
		return *g.override
	}
	return g.enabled
}

// SetEnabled requests a state change. While an override is active the
// request is rejected and the stored state is left untouched; the caller
// gets false so it can report the fixed "override active" outcome.
func (g *Gate) SetEnabled(v bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.override != nil {
		return false
	}
	g.enabled = v
	return true
}

// Overridden reports whether an environment override is pinning the gate.
func (g *Gate) Overridden() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.override != nil
}
