package hse

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/google/go-tpm/legacy/tpm2"
	"github.com/google/go-tpm/tpmutil"

	"github.com/nexusclaw/agent-vault-protocol/cryptoutils"
	"github.com/nexusclaw/agent-vault-protocol/interfaces"
)

// TPM NV and handle layout. Data slots map to NV indices; signing keys are
// expected as persistent objects provisioned externally.
const (
	tpmNVSlotBase   = tpmutil.Handle(0x01500000)
	tpmNVPINDigest  = tpmutil.Handle(0x01500100)
	tpmKeyBase      = tpmutil.Handle(0x81008000)
	tpmSlotDataSize = 2 + interfaces.MaxSecretSize // length prefix + payload
)

// TPMBackend implements SecureElement on a TPM 2.0 device. Secret slots are
// NV indices under owner authorization with a two-byte length prefix; key
// slots resolve to persistent ECC signing keys. The PIN digest lives in a
// dedicated NV index so it survives reboots with the rest of the state.
type TPMBackend struct {
	mu  sync.Mutex
	rwc io.ReadWriteCloser
}

// NewTPMBackend opens the TPM character device (e.g. /dev/tpmrm0).
func NewTPMBackend(devicePath string) (*TPMBackend, error) {
	rwc, err := tpm2.OpenTPM(devicePath)
	if err != nil {
		return nil, fmt.Errorf("opening TPM %s: %w", devicePath, err)
	}
	return &TPMBackend{rwc: rwc}, nil
}

// Close releases the TPM device.
func (b *TPMBackend) Close() error {
	return b.rwc.Close()
}

// ProvisionPIN stores the Argon2id digest for PIN verification in its NV
// index. Run once during device setup.
func (b *TPMBackend) ProvisionPIN(_ context.Context, pin string) error {
	digest, err := cryptoutils.HashPIN(pin)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureNVIndex(tpmNVPINDigest, uint16(len(digest))); err != nil {
		return err
	}
	if err := tpm2.NVWrite(b.rwc, tpm2.HandleOwner, tpmNVPINDigest, "", []byte(digest), 0); err != nil {
		return fmt.Errorf("writing PIN digest: %w", err)
	}
	return nil
}

// VerifyPIN reads the provisioned digest and checks the PIN against it.
func (b *TPMBackend) VerifyPIN(_ context.Context, pin string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	raw, err := tpm2.NVReadEx(b.rwc, tpmNVPINDigest, tpm2.HandleOwner, "", 0)
	if err != nil {
		return interfaces.WrapError(interfaces.KindHardwareError, "PIN digest not provisioned", err)
	}

	ok, err := cryptoutils.VerifyPIN(string(raw), pin)
	if err != nil {
		return interfaces.WrapError(interfaces.KindHardwareError, "PIN digest unusable", err)
	}
	if !ok {
		return interfaces.NewError(interfaces.KindPINInvalid, "PIN rejected")
	}
	return nil
}

// Store writes data into the NV index backing a data slot.
func (b *TPMBackend) Store(_ context.Context, slot uint8, data []byte) error {
	if !validDataSlot(slot) {
		return interfaces.NewError(interfaces.KindInvalidParameter, fmt.Sprintf("slot %d outside data range", slot))
	}
	if len(data) > interfaces.MaxSecretSize {
		return interfaces.NewError(interfaces.KindInvalidParameter,
			fmt.Sprintf("value exceeds %d bytes", interfaces.MaxSecretSize))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	index := nvIndexFor(slot)
	if err := b.ensureNVIndex(index, tpmSlotDataSize); err != nil {
		return err
	}

	buf := make([]byte, tpmSlotDataSize)
	defer cryptoutils.Zeroize(buf)
	binary.BigEndian.PutUint16(buf[:2], uint16(len(data)))
	copy(buf[2:], data)

	if err := tpm2.NVWrite(b.rwc, tpm2.HandleOwner, index, "", buf, 0); err != nil {
		return interfaces.WrapError(interfaces.KindHardwareError, "NV write failed", err)
	}
	return nil
}

// Retrieve reads the NV index backing a data slot.
func (b *TPMBackend) Retrieve(_ context.Context, slot uint8) ([]byte, error) {
	if !validDataSlot(slot) {
		return nil, interfaces.NewError(interfaces.KindInvalidParameter, fmt.Sprintf("slot %d outside data range", slot))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	index := nvIndexFor(slot)
	if _, err := tpm2.NVReadPublic(b.rwc, index); err != nil {
		return nil, interfaces.WrapError(interfaces.KindSecretNotFound, fmt.Sprintf("slot %d is empty", slot), err)
	}

	raw, err := tpm2.NVReadEx(b.rwc, index, tpm2.HandleOwner, "", 0)
	if err != nil {
		return nil, interfaces.WrapError(interfaces.KindHardwareError, "NV read failed", err)
	}
	defer cryptoutils.Zeroize(raw)

	if len(raw) < 2 {
		return nil, interfaces.NewError(interfaces.KindHardwareError, "NV slot content malformed")
	}
	n := int(binary.BigEndian.Uint16(raw[:2]))
	if n > len(raw)-2 {
		return nil, interfaces.NewError(interfaces.KindHardwareError, "NV slot content malformed")
	}
	return append([]byte(nil), raw[2:2+n]...), nil
}

// Erase undefines the NV index backing a data slot.
func (b *TPMBackend) Erase(_ context.Context, slot uint8) error {
	if !validDataSlot(slot) {
		return interfaces.NewError(interfaces.KindInvalidParameter, fmt.Sprintf("slot %d outside data range", slot))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	index := nvIndexFor(slot)
	if _, err := tpm2.NVReadPublic(b.rwc, index); err != nil {
		return nil // already gone
	}
	if err := tpm2.NVUndefineSpace(b.rwc, "", tpm2.HandleOwner, index); err != nil {
		return interfaces.WrapError(interfaces.KindHardwareError, "NV undefine failed", err)
	}
	return nil
}

// Sign signs SHA-256(msg) with the persistent key backing keySlot.
func (b *TPMBackend) Sign(_ context.Context, keySlot uint8, msg []byte) ([]byte, error) {
	if !validKeySlot(keySlot) {
		return nil, interfaces.NewError(interfaces.KindInvalidParameter, fmt.Sprintf("slot %d outside key range", keySlot))
	}

	digest := sha256.Sum256(msg)
	return b.signDigest(keySlot, digest[:])
}

// ResolveKey maps a key label to its key slot.
func (b *TPMBackend) ResolveKey(name string) (uint8, error) {
	return resolveKeyName(name)
}

// GetInfo reports the TPM identity. The manufacturer id stands in for a
// serial number; TPMs do not expose one directly.
func (b *TPMBackend) GetInfo(_ context.Context) (interfaces.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	info := interfaces.DeviceInfo{Model: "TPM2.0", Serial: interfaces.PlaceholderSerial, FirmwareVersion: "2.0"}
	if vendor, err := tpm2.GetManufacturer(b.rwc); err == nil {
		info.Serial = "TPM-" + hex.EncodeToString(vendor)
	}
	return info, nil
}

// Attest signs the challenge with the attestation key (key slot 0).
func (b *TPMBackend) Attest(_ context.Context, challenge [32]byte) ([]byte, error) {
	return b.signDigest(interfaces.AttestationKeySlot, challenge[:])
}

func (b *TPMBackend) signDigest(keySlot uint8, digest []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handle := tpmKeyBase + tpmutil.Handle(keySlot)
	sig, err := tpm2.Sign(b.rwc, handle, "", digest, nil, nil)
	if err != nil {
		return nil, interfaces.WrapError(interfaces.KindCryptoError, "TPM sign failed", err)
	}

	if sig.ECC == nil {
		return nil, interfaces.NewError(interfaces.KindCryptoError, "key is not an ECC signing key")
	}

	out := make([]byte, 64)
	sig.ECC.R.FillBytes(out[:32])
	sig.ECC.S.FillBytes(out[32:])
	return out, nil
}

// ensureNVIndex defines an NV index under owner auth if it does not exist.
func (b *TPMBackend) ensureNVIndex(index tpmutil.Handle, size uint16) error {
	if _, err := tpm2.NVReadPublic(b.rwc, index); err == nil {
		return nil
	}

	attrs := tpm2.AttrOwnerWrite | tpm2.AttrOwnerRead | tpm2.AttrAuthWrite | tpm2.AttrAuthRead
	if err := tpm2.NVDefineSpace(b.rwc, tpm2.HandleOwner, index, "", "", nil, attrs, size); err != nil {
		return interfaces.WrapError(interfaces.KindHardwareError, "NV define failed", err)
	}
	return nil
}

func nvIndexFor(slot uint8) tpmutil.Handle {
	return tpmNVSlotBase + tpmutil.Handle(slot)
}
