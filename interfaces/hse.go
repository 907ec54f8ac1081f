package interfaces

import "context"

// PINVerifier validates a PIN against the secure element's pairing
// mechanism. It is the narrow slice of SecureElement the session manager
// consumes.
type PINVerifier interface {
	// VerifyPIN returns nil when the PIN is accepted. A rejected PIN is
	// reported as KindPINInvalid; transport failures as KindHardwareError.
	VerifyPIN(ctx context.Context, pin string) error
}

// SecureElement abstracts the operations the engine performs against the
// hardware secure element. Implementations live in the hse package; the
// engine never touches device I/O directly.
//
// Failure modes map onto the protocol error taxonomy: adapters return
// *Error values so handlers can funnel them into the response envelope
// unchanged.
type SecureElement interface {
	PINVerifier

	// Store writes up to MaxSecretSize bytes into a data slot, overwriting
	// prior content. The slot must be within [SlotSecretsStart, SlotSecretsEnd].
	Store(ctx context.Context, slot uint8, data []byte) error

	// Retrieve reads the content of a data slot. An empty or never-written
	// slot is reported as KindSecretNotFound.
	Retrieve(ctx context.Context, slot uint8) ([]byte, error)

	// Erase destroys the content of a data slot. Writing a full slot of
	// zeros is an acceptable implementation.
	Erase(ctx context.Context, slot uint8) error

	// Sign produces a 64-byte signature over msg with the key in keySlot.
	// Key slots are within [SlotKeysStart, SlotKeysEnd].
	Sign(ctx context.Context, keySlot uint8, msg []byte) ([]byte, error)

	// ResolveKey maps a caller-supplied key label to a key slot. The empty
	// label resolves to AttestationKeySlot; unknown labels are
	// KindInvalidParameter.
	ResolveKey(name string) (uint8, error)

	// GetInfo returns the device identity.
	GetInfo(ctx context.Context) (DeviceInfo, error)

	// Attest signs a 32-byte challenge with the device attestation key
	// (key slot AttestationKeySlot).
	Attest(ctx context.Context, challenge [32]byte) ([]byte, error)
}
