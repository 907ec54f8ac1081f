package hse

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/nexusclaw/agent-vault-protocol/cryptoutils"
	"github.com/nexusclaw/agent-vault-protocol/interfaces"
)

// VaultBackend implements SecureElement on a HashiCorp Vault server for
// host-side development: data slots live in a KV v2 mount, signing uses
// transit keys, and the PIN digest is a KV entry. It exists so agents can
// be developed against the full protocol without device hardware; it does
// not provide the tamper resistance of a real secure element.
type VaultBackend struct {
	client *vaultapi.Client
	mount  string
	log    *slog.Logger
}

// NewVaultBackend creates a Vault-based secure element.
//
// Parameters:
//   - address: Vault server address (e.g. http://127.0.0.1:8200)
//   - token: Vault token; falls back to the VAULT_TOKEN environment variable
//   - mount: KV v2 mount holding slot data and the PIN digest
//   - log: structured logger for operational insights
func NewVaultBackend(address, token, mount string, log *slog.Logger) (*VaultBackend, error) {
	config := vaultapi.DefaultConfig()
	config.Address = address
	config.Timeout = 30 * time.Second

	client, err := vaultapi.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	return &VaultBackend{
		client: client,
		mount:  strings.Trim(mount, "/"),
		log:    log,
	}, nil
}

// ProvisionPIN writes the Argon2id PIN digest into the KV mount.
func (b *VaultBackend) ProvisionPIN(ctx context.Context, pin string) error {
	digest, err := cryptoutils.HashPIN(pin)
	if err != nil {
		return err
	}
	_, err = b.client.Logical().WriteWithContext(ctx, b.dataPath("pin"), map[string]interface{}{
		"data": map[string]interface{}{"digest": digest},
	})
	if err != nil {
		return fmt.Errorf("writing PIN digest: %w", err)
	}
	return nil
}

// VerifyPIN checks the PIN against the stored digest.
func (b *VaultBackend) VerifyPIN(ctx context.Context, pin string) error {
	secret, err := b.client.Logical().ReadWithContext(ctx, b.dataPath("pin"))
	if err != nil {
		return interfaces.WrapError(interfaces.KindHardwareError, "reading PIN digest failed", err)
	}
	digest, ok := kvField(secret, "digest")
	if !ok {
		return interfaces.NewError(interfaces.KindHardwareError, "PIN digest not provisioned")
	}

	match, err := cryptoutils.VerifyPIN(digest, pin)
	if err != nil {
		return interfaces.WrapError(interfaces.KindHardwareError, "PIN digest unusable", err)
	}
	if !match {
		return interfaces.NewError(interfaces.KindPINInvalid, "PIN rejected")
	}
	return nil
}

// Store writes data into the KV entry backing a data slot.
func (b *VaultBackend) Store(ctx context.Context, slot uint8, data []byte) error {
	if !validDataSlot(slot) {
		return interfaces.NewError(interfaces.KindInvalidParameter, fmt.Sprintf("slot %d outside data range", slot))
	}
	if len(data) > interfaces.MaxSecretSize {
		return interfaces.NewError(interfaces.KindInvalidParameter,
			fmt.Sprintf("value exceeds %d bytes", interfaces.MaxSecretSize))
	}

	_, err := b.client.Logical().WriteWithContext(ctx, b.slotPath(slot), map[string]interface{}{
		"data": map[string]interface{}{"value": base64.StdEncoding.EncodeToString(data)},
	})
	if err != nil {
		return interfaces.WrapError(interfaces.KindHardwareError, "Vault write failed", err)
	}

	b.log.Debug("Stored slot in Vault", "slot", slot)
	return nil
}

// Retrieve reads the KV entry backing a data slot.
func (b *VaultBackend) Retrieve(ctx context.Context, slot uint8) ([]byte, error) {
	if !validDataSlot(slot) {
		return nil, interfaces.NewError(interfaces.KindInvalidParameter, fmt.Sprintf("slot %d outside data range", slot))
	}

	secret, err := b.client.Logical().ReadWithContext(ctx, b.slotPath(slot))
	if err != nil {
		return nil, interfaces.WrapError(interfaces.KindHardwareError, "Vault read failed", err)
	}

	encoded, ok := kvField(secret, "value")
	if !ok {
		return nil, interfaces.NewError(interfaces.KindSecretNotFound, fmt.Sprintf("slot %d is empty", slot))
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, interfaces.WrapError(interfaces.KindHardwareError, "slot content malformed", err)
	}
	return data, nil
}

// Erase deletes the KV entry backing a data slot.
func (b *VaultBackend) Erase(ctx context.Context, slot uint8) error {
	if !validDataSlot(slot) {
		return interfaces.NewError(interfaces.KindInvalidParameter, fmt.Sprintf("slot %d outside data range", slot))
	}

	if _, err := b.client.Logical().DeleteWithContext(ctx, b.metadataPath(slot)); err != nil {
		return interfaces.WrapError(interfaces.KindHardwareError, "Vault delete failed", err)
	}
	return nil
}

// Sign signs msg with the transit key backing keySlot. Transit returns the
// raw signature bytes in its own envelope format; the base64 payload after
// the "vault:v1:" prefix is returned.
func (b *VaultBackend) Sign(ctx context.Context, keySlot uint8, msg []byte) ([]byte, error) {
	if !validKeySlot(keySlot) {
		return nil, interfaces.NewError(interfaces.KindInvalidParameter, fmt.Sprintf("slot %d outside key range", keySlot))
	}
	return b.transitSign(ctx, keySlot, msg)
}

// ResolveKey maps a key label to its key slot.
func (b *VaultBackend) ResolveKey(name string) (uint8, error) {
	return resolveKeyName(name)
}

// GetInfo reports the Vault server identity.
func (b *VaultBackend) GetInfo(ctx context.Context) (interfaces.DeviceInfo, error) {
	info := interfaces.DeviceInfo{Model: "VAULT-TRANSIT", Serial: "VAULT-DEV", FirmwareVersion: "unknown"}
	if health, err := b.client.Sys().HealthWithContext(ctx); err == nil {
		info.FirmwareVersion = health.Version
	}
	return info, nil
}

// Attest signs the challenge with the attestation transit key.
func (b *VaultBackend) Attest(ctx context.Context, challenge [32]byte) ([]byte, error) {
	return b.transitSign(ctx, interfaces.AttestationKeySlot, challenge[:])
}

func (b *VaultBackend) transitSign(ctx context.Context, keySlot uint8, msg []byte) ([]byte, error) {
	path := fmt.Sprintf("transit/sign/avp-key-%d", keySlot)
	secret, err := b.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"input": base64.StdEncoding.EncodeToString(msg),
	})
	if err != nil {
		return nil, interfaces.WrapError(interfaces.KindCryptoError, "transit sign failed", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, interfaces.NewError(interfaces.KindCryptoError, "transit sign returned no data")
	}

	raw, _ := secret.Data["signature"].(string)
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return nil, interfaces.NewError(interfaces.KindCryptoError, "transit signature malformed")
	}

	sig, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, interfaces.WrapError(interfaces.KindCryptoError, "transit signature malformed", err)
	}
	return sig, nil
}

func (b *VaultBackend) dataPath(name string) string {
	return fmt.Sprintf("%s/data/%s", b.mount, name)
}

func (b *VaultBackend) slotPath(slot uint8) string {
	return fmt.Sprintf("%s/data/slots/%d", b.mount, slot)
}

func (b *VaultBackend) metadataPath(slot uint8) string {
	return fmt.Sprintf("%s/metadata/slots/%d", b.mount, slot)
}

// kvField extracts a string field from a KV v2 read response.
func kvField(secret *vaultapi.Secret, field string) (string, bool) {
	if secret == nil {
		return "", false
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", false
	}
	val, ok := data[field].(string)
	return val, ok && val != ""
}
