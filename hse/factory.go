package hse

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/nexusclaw/agent-vault-protocol/interfaces"
)

// BackendFactory creates secure element backends from URI strings.
type BackendFactory struct {
	log *slog.Logger
}

// NewBackendFactory creates a new factory instance that can create backends.
func NewBackendFactory(logger *slog.Logger) *BackendFactory {
	return &BackendFactory{log: logger}
}

// BackendFor creates a secure element backend from a location URI.
// The URI format should be [scheme]://[host][/path][?params]
//
// Supported schemes:
//   - sim:// - In-memory simulator; seed and pin come from query params
//   - tpm:// - Local TPM 2.0 character device, path selects the device
//   - vault:// - HashiCorp Vault KV + transit (development only)
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (f *BackendFactory) BackendFor(locationURI string) (interfaces.SecureElement, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URI: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "sim":
		return f.createSimulator(u)
	case "tpm":
		return f.createTPMBackend(u)
	case "vault":
		return f.createVaultBackend(u)
	default:
		return nil, fmt.Errorf("unsupported backend scheme: %s", u.Scheme)
	}
}

// createSimulator creates an in-memory simulator backend.
// URI format: sim://?seed=<hex>&pin=<pin>
// The seed makes key derivation deterministic; pin provisions the PIN digest.
func (f *BackendFactory) createSimulator(u *url.URL) (interfaces.SecureElement, error) {
	f.log.Debug("Creating simulator backend", slog.String("uri", u.Redacted()))

	query := u.Query()
	seedHex := query.Get("seed")
	if seedHex == "" {
		seedHex = "000102030405060708090a0b0c0d0e0f"
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid simulator seed: %w", err)
	}

	pin := query.Get("pin")
	if pin == "" {
		pin = "123456"
	}

	sim, err := NewSimulatorWithPIN(seed, pin)
	if err != nil {
		return nil, err
	}
	return sim, nil
}

// createTPMBackend creates a TPM 2.0 backend.
// URI format: tpm:///dev/tpmrm0
func (f *BackendFactory) createTPMBackend(u *url.URL) (interfaces.SecureElement, error) {
	f.log.Debug("Creating TPM backend", slog.String("uri", u.String()))

	path := u.Path
	if path == "" {
		path = "/dev/tpmrm0"
	}

	backend, err := NewTPMBackend(path)
	if err != nil {
		return nil, err
	}
	return backend, nil
}

// createVaultBackend creates a Vault development backend.
// URI format: vault://token@host:port/?mount=avp&tls=true
func (f *BackendFactory) createVaultBackend(u *url.URL) (interfaces.SecureElement, error) {
	f.log.Debug("Creating Vault backend", slog.String("uri", u.Redacted()))

	if u.Host == "" {
		return nil, fmt.Errorf("vault URI requires a host")
	}

	query := u.Query()
	mount := query.Get("mount")
	if mount == "" {
		mount = "avp"
	}

	scheme := "http"
	if query.Get("tls") == "true" {
		scheme = "https"
	}

	var token string
	if u.User != nil {
		token = u.User.Username()
	}

	backend, err := NewVaultBackend(fmt.Sprintf("%s://%s", scheme, u.Host), token, mount, f.log)
	if err != nil {
		return nil, err
	}
	return backend, nil
}
