package interfaces

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Protocol identity advertised by DISCOVER.
const (
	ProtocolVersion = "0.1.0"
	BackendType     = "hardware"
	Manufacturer    = "AVP Protocol"
	Model           = "NexusClaw"

	// PlaceholderSerial is reported when the secure element cannot be
	// queried for its real serial number.
	PlaceholderSerial = "NC00000001"
)

// Wire protocol limits. These are bit-exact with the AVP envelope format and
// must not be changed independently of the host agents.
const (
	MaxJSONLen  = 1024
	MaxNameLen  = 64
	MaxValueLen = 512
	MaxSecrets  = 32

	DefaultTTL     = 300
	SessionIDLen   = 32 // hex chars, 16 random bytes
	MaxPINAttempts = 5

	MaxSecretSize = 256
)

// Secure element slot allocation. Data slots hold secret bytes, key slots
// hold ECC private keys. Key slot 0 is the device attestation key by
// convention.
const (
	SlotSecretsStart = 96
	SlotSecretsEnd   = 127
	SlotKeysStart    = 0
	SlotKeysEnd      = 31

	AttestationKeySlot = 0
)

// DeviceInfo identifies the secure element behind the adapter.
type DeviceInfo struct {
	Model           string
	Serial          string
	FirmwareVersion string
}

// Platform provides the clock and RNG capabilities the engine consumes.
// On the target device these are the monotonic uptime counter and the
// hardware RNG; tests substitute deterministic implementations.
type Platform interface {
	// NowSeconds returns a monotonically nondecreasing timestamp in seconds.
	NowSeconds() uint32

	// RandomBytes fills buf with cryptographically secure random bytes.
	RandomBytes(buf []byte) error
}

// SystemPlatform implements Platform on the host OS: a monotonic clock
// anchored at construction time and crypto/rand for randomness.
type SystemPlatform struct {
	start time.Time
}

// NewSystemPlatform creates a Platform backed by the OS clock and CSPRNG.
func NewSystemPlatform() *SystemPlatform {
	return &SystemPlatform{start: time.Now()}
}

// NowSeconds returns seconds elapsed since the platform was created. The
// underlying reading is monotonic, so wall clock steps do not affect
// session expiry.
func (p *SystemPlatform) NowSeconds() uint32 {
	return uint32(time.Since(p.start) / time.Second)
}

// RandomBytes fills buf from crypto/rand.
func (p *SystemPlatform) RandomBytes(buf []byte) error {
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("platform RNG failed: %w", err)
	}
	return nil
}
