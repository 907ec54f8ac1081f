package hse

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusclaw/agent-vault-protocol/interfaces"
)

func newVaultTestBackend(t *testing.T, handler http.Handler) *VaultBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend, err := NewVaultBackend(srv.URL, "test-token", "avp", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return backend
}

func TestVaultSign(t *testing.T) {
	sig := []byte{0x01, 0x02, 0x03, 0x04}
	backend := newVaultTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/transit/sign/avp-key-3", r.URL.Path)
		fmt.Fprintf(w, `{"data":{"signature":"vault:v1:%s"}}`, base64.StdEncoding.EncodeToString(sig))
	}))

	got, err := backend.Sign(context.Background(), 3, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, sig, got)
}

func TestVaultSignEmptyResponse(t *testing.T) {
	// A 204 from Vault surfaces as a nil secret with a nil error.
	backend := newVaultTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	_, err := backend.Sign(context.Background(), 0, []byte("payload"))
	require.Error(t, err)
	assert.Equal(t, interfaces.KindCryptoError, interfaces.KindOf(err))
}

func TestVaultSignMalformedSignature(t *testing.T) {
	backend := newVaultTestBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"signature":"not-a-transit-signature"}}`)
	}))

	_, err := backend.Sign(context.Background(), 0, []byte("payload"))
	require.Error(t, err)
	assert.Equal(t, interfaces.KindCryptoError, interfaces.KindOf(err))
}
