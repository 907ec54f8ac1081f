package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nexusclaw/agent-vault-protocol/cryptoutils"
	"github.com/nexusclaw/agent-vault-protocol/interfaces"
	"github.com/nexusclaw/agent-vault-protocol/protocol"
)

func (e *Engine) handleDiscover(ctx context.Context) (*protocol.Response, error) {
	serial := interfaces.PlaceholderSerial
	available := e.se != nil
	if available {
		if info, err := e.se.GetInfo(ctx); err == nil && info.Serial != "" {
			serial = info.Serial
		}
	}

	return &protocol.Response{
		OK:           true,
		Version:      interfaces.ProtocolVersion,
		BackendType:  interfaces.BackendType,
		Manufacturer: interfaces.Manufacturer,
		Model:        interfaces.Model,
		Serial:       serial,
		Capabilities: &protocol.Capabilities{
			HWSign:        available,
			HWAttest:      available,
			MaxSecrets:    interfaces.MaxSecrets,
			MaxSecretSize: interfaces.MaxSecretSize,
		},
	}, nil
}

func (e *Engine) handleAuthenticate(ctx context.Context, cmd *protocol.Command) (*protocol.Response, error) {
	if e.se == nil {
		return nil, interfaces.NewError(interfaces.KindHardwareError, "secure element unavailable")
	}

	if err := e.session.Begin(ctx, e.se, cmd.Workspace, cmd.TTL, cmd.PIN); err != nil {
		return nil, err
	}

	e.log.Info("Session established", "workspace", e.session.Workspace(), "ttl", e.session.TTL())

	return &protocol.Response{
		OK:        true,
		SessionID: e.session.ID(),
		ExpiresIn: e.session.TTL(),
		Workspace: e.session.Workspace(),
	}, nil
}

// handleStore serves both STORE and ROTATE; the verbs are semantically
// identical, the distinct name only expresses caller intent.
func (e *Engine) handleStore(ctx context.Context, cmd *protocol.Command) (*protocol.Response, error) {
	if err := e.requireSession(cmd); err != nil {
		return nil, err
	}
	if cmd.Name == "" {
		return nil, interfaces.NewError(interfaces.KindInvalidParameter, "missing secret name")
	}
	if len(cmd.Value) > interfaces.MaxSecretSize {
		return nil, interfaces.NewError(interfaces.KindInvalidParameter,
			fmt.Sprintf("value exceeds %d bytes", interfaces.MaxSecretSize))
	}

	value := []byte(cmd.Value)
	defer cryptoutils.Zeroize(value)

	_, existed := e.table.Find(cmd.Name)
	idx, err := e.table.Allocate(cmd.Name)
	if err != nil {
		return nil, err
	}

	if err := e.se.Store(ctx, e.table.Slot(idx), value); err != nil {
		// Never leak a metadata entry whose slot was not written.
		if !existed {
			e.table.Free(idx)
		}
		return nil, err
	}
	e.table.Touch(idx)

	return protocol.OKResponse(), nil
}

func (e *Engine) handleRetrieve(ctx context.Context, cmd *protocol.Command) (*protocol.Response, error) {
	if err := e.requireSession(cmd); err != nil {
		return nil, err
	}
	if cmd.Name == "" {
		return nil, interfaces.NewError(interfaces.KindInvalidParameter, "missing secret name")
	}

	idx, ok := e.table.Find(cmd.Name)
	if !ok {
		return nil, interfaces.NewError(interfaces.KindSecretNotFound, "secret "+cmd.Name+" not found")
	}

	data, err := e.se.Retrieve(ctx, e.table.Slot(idx))
	if err != nil {
		return nil, err
	}
	defer cryptoutils.Zeroize(data)

	return &protocol.Response{OK: true, Value: string(data)}, nil
}

func (e *Engine) handleDelete(ctx context.Context, cmd *protocol.Command) (*protocol.Response, error) {
	if err := e.requireSession(cmd); err != nil {
		return nil, err
	}
	if cmd.Name == "" {
		return nil, interfaces.NewError(interfaces.KindInvalidParameter, "missing secret name")
	}

	idx, ok := e.table.Find(cmd.Name)
	if !ok {
		return nil, interfaces.NewError(interfaces.KindSecretNotFound, "secret "+cmd.Name+" not found")
	}

	// Destroy slot contents first; the entry stays if the erase fails.
	if err := e.se.Erase(ctx, e.table.Slot(idx)); err != nil {
		return nil, err
	}
	e.table.Free(idx)

	return protocol.OKResponse(), nil
}

func (e *Engine) handleList(cmd *protocol.Command) (*protocol.Response, error) {
	if err := e.requireSession(cmd); err != nil {
		return nil, err
	}

	names := e.table.Names()
	return &protocol.Response{OK: true, Secrets: &names}, nil
}

func (e *Engine) handleHWChallenge(ctx context.Context) (*protocol.Response, error) {
	info := interfaces.DeviceInfo{Model: "TROPIC01", Serial: interfaces.PlaceholderSerial}
	if e.se != nil {
		if got, err := e.se.GetInfo(ctx); err == nil {
			info = got
		}
	}

	verified := true
	return &protocol.Response{
		OK:       true,
		Verified: &verified,
		Model:    info.Model,
		Serial:   info.Serial,
	}, nil
}

func (e *Engine) handleHWSign(ctx context.Context, cmd *protocol.Command) (*protocol.Response, error) {
	if err := e.requireSession(cmd); err != nil {
		return nil, err
	}
	if len(cmd.Data) == 0 {
		return nil, interfaces.NewError(interfaces.KindInvalidParameter, "missing data to sign")
	}

	keySlot, err := e.se.ResolveKey(cmd.KeyName)
	if err != nil {
		return nil, err
	}

	sig, err := e.se.Sign(ctx, keySlot, cmd.Data)
	if err != nil {
		return nil, err
	}

	return &protocol.Response{OK: true, Signature: hex.EncodeToString(sig)}, nil
}

// attestationDoc is the device identity document signed by the attestation
// key. The signature covers the SHA-256 of the document serialized without
// the signature field.
type attestationDoc struct {
	Model     string `json:"model"`
	Serial    string `json:"serial"`
	Firmware  string `json:"firmware"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature,omitempty"`
}

func (e *Engine) handleHWAttest(ctx context.Context, cmd *protocol.Command) (*protocol.Response, error) {
	if err := e.requireSession(cmd); err != nil {
		return nil, err
	}

	info, err := e.se.GetInfo(ctx)
	if err != nil {
		return nil, err
	}

	var nonce [16]byte
	if err := e.platform.RandomBytes(nonce[:]); err != nil {
		return nil, interfaces.WrapError(interfaces.KindInternalError, "attestation nonce generation failed", err)
	}

	doc := attestationDoc{
		Model:    info.Model,
		Serial:   info.Serial,
		Firmware: info.FirmwareVersion,
		Nonce:    hex.EncodeToString(nonce[:]),
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, interfaces.WrapError(interfaces.KindInternalError, "attestation document serialization failed", err)
	}

	sig, err := e.se.Attest(ctx, sha256.Sum256(body))
	if err != nil {
		return nil, err
	}

	doc.Signature = hex.EncodeToString(sig)
	signed, err := json.Marshal(doc)
	if err != nil {
		return nil, interfaces.WrapError(interfaces.KindInternalError, "attestation document serialization failed", err)
	}

	return &protocol.Response{OK: true, Attestation: string(signed)}, nil
}
