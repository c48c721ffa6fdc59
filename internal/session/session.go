// Package session holds the authenticated principal and the credentials
// used to scope all store operations.
//
// Scope is an immutable value threaded explicitly through every orchestrator
// call; Manager exists only for hosts that keep a single signed-in user and
// need an atomic snapshot of the current scope. Switching context never
// mutates previously issued Scope values.
package session

import "sync/atomic"

// Scope identifies the principal a store operation runs as. The zero value
// is the anonymous scope: reads see only public rows and writes that
// require a principal are skipped.
type Scope struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

// Anonymous reports whether the scope has no authenticated principal.
func (s Scope) Anonymous() bool {
	return s.UserID == ""
}

// Manager holds the currently active scope. Safe for concurrent use: reads
// and writes go through a single atomic pointer, so a call never observes a
// scope mutated mid-call by a concurrent sign-out.
type Manager struct {
	current atomic.Pointer[Scope]
}

// NewManager creates a Manager with the anonymous scope active.
func NewManager() *Manager {
	m := &Manager{}
	m.current.Store(&Scope{})
	return m
}

// SetContext replaces the active scope. A nil scope clears it: subsequent
// operations run anonymously. Idempotent and total.
func (m *Manager) SetContext(scope *Scope) {
	if scope == nil {
		m.current.Store(&Scope{})
		return
	}
	cp := *scope
	m.current.Store(&cp)
}

// Current returns an atomic snapshot of the active scope. The returned
// value is a copy; later SetContext calls do not affect it.
func (m *Manager) Current() Scope {
	return *m.current.Load()
}
