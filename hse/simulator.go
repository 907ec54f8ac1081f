package hse

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/nexusclaw/agent-vault-protocol/cryptoutils"
	"github.com/nexusclaw/agent-vault-protocol/interfaces"
)

// Simulator is an in-memory secure element for development and testing.
// Secret slots live in a map, ECC keys are derived deterministically from a
// seed, and the PIN is checked against an Argon2id digest. The same seed
// always produces the same key material, so test fixtures are stable.
type Simulator struct {
	mu sync.RWMutex

	seed      []byte
	pinDigest string
	slots     map[uint8][]byte
	keys      map[uint8]*ecdsa.PrivateKey
	info      interfaces.DeviceInfo
}

// NewSimulatorWithPIN creates a simulator and provisions its PIN digest
// from a plaintext PIN.
func NewSimulatorWithPIN(seed []byte, pin string) (*Simulator, error) {
	digest, err := cryptoutils.HashPIN(pin)
	if err != nil {
		return nil, err
	}
	return NewSimulator(seed, digest)
}

// NewSimulator creates a simulator. The seed must be at least 16 bytes;
// pinDigest is an Argon2id digest from cryptoutils.HashPIN.
func NewSimulator(seed []byte, pinDigest string) (*Simulator, error) {
	if len(seed) < 16 {
		return nil, errors.New("simulator seed must be at least 16 bytes")
	}

	sim := &Simulator{
		pinDigest: pinDigest,
		slots:     make(map[uint8][]byte),
		keys:      make(map[uint8]*ecdsa.PrivateKey),
		info: interfaces.DeviceInfo{
			Model:           "TROPIC01-SIM",
			Serial:          "SIM00000001",
			FirmwareVersion: "1.0.0",
		},
	}

	sim.seed = append([]byte(nil), seed...)

	// Derive the well-known key slots up front; remaining key slots are
	// derived on first use.
	for _, slot := range wellKnownKeys {
		sim.keys[slot] = deriveKey(seed, slot)
	}

	return sim, nil
}

// deriveKey produces a deterministic P-256 key for a key slot.
func deriveKey(seed []byte, slot uint8) *ecdsa.PrivateKey {
	curve := elliptic.P256()
	h := sha256.Sum256(append(append([]byte("avp-sim-key-"), seed...), slot))

	d := new(big.Int).SetBytes(h[:])
	n := new(big.Int).Sub(curve.Params().N, big.NewInt(1))
	d.Mod(d, n)
	d.Add(d, big.NewInt(1))

	priv := &ecdsa.PrivateKey{D: d}
	priv.Curve = curve
	priv.X, priv.Y = curve.ScalarBaseMult(d.Bytes())
	return priv
}

// VerifyPIN checks the PIN against the configured Argon2id digest.
func (s *Simulator) VerifyPIN(_ context.Context, pin string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ok, err := cryptoutils.VerifyPIN(s.pinDigest, pin)
	if err != nil {
		return interfaces.WrapError(interfaces.KindHardwareError, "PIN digest unusable", err)
	}
	if !ok {
		return interfaces.NewError(interfaces.KindPINInvalid, "PIN rejected")
	}
	return nil
}

// Store writes data into a data slot, overwriting prior content.
func (s *Simulator) Store(_ context.Context, slot uint8, data []byte) error {
	if !validDataSlot(slot) {
		return interfaces.NewError(interfaces.KindInvalidParameter, fmt.Sprintf("slot %d outside data range", slot))
	}
	if len(data) > interfaces.MaxSecretSize {
		return interfaces.NewError(interfaces.KindInvalidParameter,
			fmt.Sprintf("value exceeds %d bytes", interfaces.MaxSecretSize))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot] = append([]byte(nil), data...)
	return nil
}

// Retrieve reads a data slot.
func (s *Simulator) Retrieve(_ context.Context, slot uint8) ([]byte, error) {
	if !validDataSlot(slot) {
		return nil, interfaces.NewError(interfaces.KindInvalidParameter, fmt.Sprintf("slot %d outside data range", slot))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.slots[slot]
	if !ok {
		return nil, interfaces.NewError(interfaces.KindSecretNotFound, fmt.Sprintf("slot %d is empty", slot))
	}
	return append([]byte(nil), data...), nil
}

// Erase zeroes and forgets a data slot.
func (s *Simulator) Erase(_ context.Context, slot uint8) error {
	if !validDataSlot(slot) {
		return interfaces.NewError(interfaces.KindInvalidParameter, fmt.Sprintf("slot %d outside data range", slot))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cryptoutils.Zeroize(s.slots[slot])
	delete(s.slots, slot)
	return nil
}

// Sign produces a 64-byte r||s ECDSA P-256 signature over SHA-256(msg)
// with the key in keySlot.
func (s *Simulator) Sign(_ context.Context, keySlot uint8, msg []byte) ([]byte, error) {
	if !validKeySlot(keySlot) {
		return nil, interfaces.NewError(interfaces.KindInvalidParameter, fmt.Sprintf("slot %d outside key range", keySlot))
	}

	digest := sha256.Sum256(msg)
	return s.signDigest(keySlot, digest[:])
}

// ResolveKey maps a key label to its key slot.
func (s *Simulator) ResolveKey(name string) (uint8, error) {
	return resolveKeyName(name)
}

// GetInfo returns the simulated device identity.
func (s *Simulator) GetInfo(_ context.Context) (interfaces.DeviceInfo, error) {
	return s.info, nil
}

// Attest signs the 32-byte challenge with the attestation key. The
// challenge is used as the signed digest directly, matching the device
// behavior.
func (s *Simulator) Attest(_ context.Context, challenge [32]byte) ([]byte, error) {
	return s.signDigest(interfaces.AttestationKeySlot, challenge[:])
}

func (s *Simulator) signDigest(keySlot uint8, digest []byte) ([]byte, error) {
	key := s.keyFor(keySlot)

	r, sv, err := ecdsa.Sign(rand.Reader, key, digest)
	if err != nil {
		return nil, interfaces.WrapError(interfaces.KindCryptoError, "signing failed", err)
	}

	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	sv.FillBytes(sig[32:])
	return sig, nil
}

func (s *Simulator) keyFor(keySlot uint8) *ecdsa.PrivateKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[keySlot]
	if !ok {
		key = deriveKey(s.seed, keySlot)
		s.keys[keySlot] = key
	}
	return key
}

// PublicKey exposes the public half of a key slot so callers can verify
// signatures produced by the simulator.
func (s *Simulator) PublicKey(keySlot uint8) *ecdsa.PublicKey {
	return &s.keyFor(keySlot).PublicKey
}
