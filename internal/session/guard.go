// Package session implements the focus session guard, the only gate on
// unshift operations.
package session

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/focusshift/shiftd/internal/domain"
)

// Guard tracks the optional time-boxed lock that forbids reverting to the
// unrestricted state while active. Expired sessions are treated as absent
// (lazy expiry) and purged best-effort on read.
type Guard struct {
	store  domain.PreferenceStore
	clock  domain.Clock
	logger *zap.Logger
}

// NewGuard creates a session guard backed by the preference store.
func NewGuard(store domain.PreferenceStore, clock domain.Clock, logger *zap.Logger) *Guard {
	return &Guard{store: store, clock: clock, logger: logger}
}

// Start records a session ending duration from now and returns it. A zero or
// negative duration records nothing.
func (g *Guard) Start(duration time.Duration) (*domain.FocusSession, error) {
	if duration <= 0 {
		return nil, nil
	}

	now := g.clock.Now()
	session := domain.FocusSession{
		StartedAt: now,
		EndsAt:    now.Add(duration),
	}
	if err := g.store.SaveFocusSession(session); err != nil {
		return nil, fmt.Errorf("failed to persist focus session: %w", err)
	}

	g.logger.Info("focus session started",
		zap.Time("ends_at", session.EndsAt),
		zap.Duration("duration", duration))
	return &session, nil
}

// Current returns the active session, or nil if none. A persisted session
// that has expired is cleared as a side effect; failure to purge is not an
// error.
func (g *Guard) Current() (*domain.FocusSession, error) {
	session, err := g.store.LoadFocusSession()
	if err != nil {
		return nil, fmt.Errorf("failed to load focus session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	if !session.Active(g.clock.Now()) {
		if err := g.store.ClearFocusSession(); err != nil {
			g.logger.Warn("failed to purge expired session", zap.Error(err))
		}
		return nil, nil
	}
	return session, nil
}

// Clear removes any recorded session unconditionally. This is intentionally
// unguarded; emergency teardown relies on it.
func (g *Guard) Clear() error {
	return g.store.ClearFocusSession()
}

// CanUnshift reports whether no session is active.
func (g *Guard) CanUnshift() (bool, error) {
	session, err := g.Current()
	if err != nil {
		return false, err
	}
	return session == nil, nil
}

// Ensure Guard implements domain.SessionGuard.
var _ domain.SessionGuard = (*Guard)(nil)
