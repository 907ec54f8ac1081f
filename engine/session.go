package engine

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/nexusclaw/agent-vault-protocol/interfaces"
)

const defaultWorkspace = "default"

// SessionManager tracks the single active session: its identity, TTL, and
// the PIN attempt counter. At most one session is active at any time;
// beginning a new session replaces the previous one.
type SessionManager struct {
	platform interfaces.Platform

	active      bool
	sessionID   string
	workspace   string
	createdAt   uint32
	ttl         uint32
	pinAttempts uint8
}

// NewSessionManager creates a session manager with no active session.
func NewSessionManager(platform interfaces.Platform) *SessionManager {
	return &SessionManager{platform: platform}
}

// Begin authenticates with the secure element and establishes a fresh
// session, replacing any active one. The PIN attempt counter gates the
// call: once it reaches interfaces.MaxPINAttempts the account is locked
// for the lifetime of the context, correct PIN or not.
//
// ttl of zero selects interfaces.DefaultTTL; an empty workspace selects
// "default".
func (m *SessionManager) Begin(ctx context.Context, verifier interfaces.PINVerifier, workspace string, ttl uint32, pin string) error {
	if m.pinAttempts >= interfaces.MaxPINAttempts {
		return interfaces.NewError(interfaces.KindPINLocked, "too many failed PIN attempts")
	}

	if err := verifier.VerifyPIN(ctx, pin); err != nil {
		var pe *interfaces.Error
		if errors.As(err, &pe) && pe.Kind == interfaces.KindPINInvalid {
			m.pinAttempts++
			return err
		}
		return err
	}

	m.pinAttempts = 0

	var random [interfaces.SessionIDLen / 2]byte
	if err := m.platform.RandomBytes(random[:]); err != nil {
		return interfaces.WrapError(interfaces.KindInternalError, "session id generation failed", err)
	}

	if workspace == "" {
		workspace = defaultWorkspace
	}
	if ttl == 0 {
		ttl = interfaces.DefaultTTL
	}

	m.active = true
	m.sessionID = hex.EncodeToString(random[:])
	m.workspace = workspace
	m.createdAt = m.platform.NowSeconds()
	m.ttl = ttl

	return nil
}

// IsValid reports whether a session is active and unexpired. Observing an
// expired session invalidates it (lazy expiry).
func (m *SessionManager) IsValid() bool {
	if !m.active {
		return false
	}
	if m.platform.NowSeconds() >= m.createdAt+m.ttl {
		m.Invalidate()
		return false
	}
	return true
}

// Invalidate unconditionally clears the active session and forgets its id.
func (m *SessionManager) Invalidate() {
	m.active = false
	m.sessionID = ""
}

// ID returns the active session id, or the empty string when no session is
// active.
func (m *SessionManager) ID() string {
	if !m.active {
		return ""
	}
	return m.sessionID
}

// Workspace returns the namespace tag of the active session.
func (m *SessionManager) Workspace() string {
	return m.workspace
}

// TTL returns the time-to-live the active session was created with.
func (m *SessionManager) TTL() uint32 {
	return m.ttl
}

// Locked reports whether the PIN attempt counter has reached the lockout
// threshold.
func (m *SessionManager) Locked() bool {
	return m.pinAttempts >= interfaces.MaxPINAttempts
}
