package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusclaw/agent-vault-protocol/interfaces"
)

// fakePlatform provides a settable clock and deterministic randomness.
type fakePlatform struct {
	now     uint32
	randErr error
}

func (p *fakePlatform) NowSeconds() uint32 { return p.now }

func (p *fakePlatform) RandomBytes(b []byte) error {
	if p.randErr != nil {
		return p.randErr
	}
	for i := range b {
		b[i] = byte(i + 1)
	}
	return nil
}

// fakeVerifier accepts a single configured PIN.
type fakeVerifier struct {
	pin string
}

func (v *fakeVerifier) VerifyPIN(_ context.Context, pin string) error {
	if pin != v.pin {
		return interfaces.NewError(interfaces.KindPINInvalid, "PIN rejected")
	}
	return nil
}

func TestSessionBegin(t *testing.T) {
	platform := &fakePlatform{now: 1000}
	m := NewSessionManager(platform)

	err := m.Begin(context.Background(), &fakeVerifier{pin: "1234"}, "prod", 60, "1234")
	require.NoError(t, err)

	assert.True(t, m.IsValid())
	assert.Len(t, m.ID(), interfaces.SessionIDLen)
	assert.Equal(t, "prod", m.Workspace())
	assert.Equal(t, uint32(60), m.TTL())
}

func TestSessionDefaults(t *testing.T) {
	m := NewSessionManager(&fakePlatform{now: 1000})

	require.NoError(t, m.Begin(context.Background(), &fakeVerifier{pin: "1234"}, "", 0, "1234"))

	assert.Equal(t, "default", m.Workspace())
	assert.Equal(t, uint32(interfaces.DefaultTTL), m.TTL())
}

func TestSessionWrongPIN(t *testing.T) {
	m := NewSessionManager(&fakePlatform{now: 1000})

	err := m.Begin(context.Background(), &fakeVerifier{pin: "1234"}, "", 0, "9999")
	require.Error(t, err)
	assert.Equal(t, interfaces.KindPINInvalid, interfaces.KindOf(err))
	assert.False(t, m.IsValid())
}

func TestSessionLockout(t *testing.T) {
	m := NewSessionManager(&fakePlatform{now: 1000})
	verifier := &fakeVerifier{pin: "1234"}

	for i := 0; i < int(interfaces.MaxPINAttempts); i++ {
		err := m.Begin(context.Background(), verifier, "", 0, "wrong")
		assert.Equal(t, interfaces.KindPINInvalid, interfaces.KindOf(err))
	}
	assert.True(t, m.Locked())

	// Correct PIN no longer helps once locked.
	err := m.Begin(context.Background(), verifier, "", 0, "1234")
	assert.Equal(t, interfaces.KindPINLocked, interfaces.KindOf(err))
}

func TestSessionCounterResetsOnSuccess(t *testing.T) {
	m := NewSessionManager(&fakePlatform{now: 1000})
	verifier := &fakeVerifier{pin: "1234"}

	for i := 0; i < int(interfaces.MaxPINAttempts)-1; i++ {
		require.Error(t, m.Begin(context.Background(), verifier, "", 0, "wrong"))
	}
	require.NoError(t, m.Begin(context.Background(), verifier, "", 0, "1234"))

	// A full round of failures is available again.
	for i := 0; i < int(interfaces.MaxPINAttempts)-1; i++ {
		err := m.Begin(context.Background(), verifier, "", 0, "wrong")
		assert.Equal(t, interfaces.KindPINInvalid, interfaces.KindOf(err))
	}
	assert.False(t, m.Locked())
}

func TestSessionExpiry(t *testing.T) {
	platform := &fakePlatform{now: 1000}
	m := NewSessionManager(platform)

	require.NoError(t, m.Begin(context.Background(), &fakeVerifier{pin: "1234"}, "", 60, "1234"))

	platform.now = 1059
	assert.True(t, m.IsValid())

	platform.now = 1060
	assert.False(t, m.IsValid())
	assert.Empty(t, m.ID())
}

func TestSessionReplacement(t *testing.T) {
	platform := &fakePlatform{now: 1000}
	m := NewSessionManager(platform)
	verifier := &fakeVerifier{pin: "1234"}

	require.NoError(t, m.Begin(context.Background(), verifier, "first", 60, "1234"))
	first := m.ID()

	platform.now = 1010
	require.NoError(t, m.Begin(context.Background(), verifier, "second", 120, "1234"))

	assert.True(t, m.IsValid())
	assert.Equal(t, "second", m.Workspace())
	assert.Equal(t, uint32(120), m.TTL())
	// Same deterministic randomness, so the id matches; what matters is
	// that the old session's clock no longer applies.
	platform.now = 1070
	assert.True(t, m.IsValid(), "replacement session uses its own creation time")
	_ = first
}

func TestSessionInvalidate(t *testing.T) {
	m := NewSessionManager(&fakePlatform{now: 1000})

	require.NoError(t, m.Begin(context.Background(), &fakeVerifier{pin: "1234"}, "", 0, "1234"))
	m.Invalidate()

	assert.False(t, m.IsValid())
	assert.Empty(t, m.ID())
}
