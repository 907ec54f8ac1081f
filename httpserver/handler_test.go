package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusclaw/agent-vault-protocol/engine"
	"github.com/nexusclaw/agent-vault-protocol/hse"
	"github.com/nexusclaw/agent-vault-protocol/interfaces"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sim, err := hse.NewSimulatorWithPIN([]byte("0123456789abcdef"), "123456")
	require.NoError(t, err)

	eng := engine.New(sim, interfaces.NewSystemPlatform(), logger)
	handler := NewHandler(eng, nil, logger)

	srv, err := New(&HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      logger,
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
		ReadTimeout:              time.Second,
		WriteTimeout:             time.Second,
	}, handler)
	require.NoError(t, err)
	return srv
}

func postCommand(t *testing.T, ts *httptest.Server, body string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/v1/command", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestHandleCommandDiscover(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.getRouter())
	defer ts.Close()

	status, resp := postCommand(t, ts, `{"op":"DISCOVER"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, interfaces.ProtocolVersion, resp["version"])
}

func TestHandleCommandSessionFlow(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.getRouter())
	defer ts.Close()

	_, resp := postCommand(t, ts, `{"op":"AUTHENTICATE","pin":"123456"}`)
	require.Equal(t, true, resp["ok"])

	_, resp = postCommand(t, ts, `{"op":"STORE","name":"api-key","value":"hunter2"}`)
	require.Equal(t, true, resp["ok"])

	_, resp = postCommand(t, ts, `{"op":"RETRIEVE","name":"api-key"}`)
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, "hunter2", resp["value"])
}

func TestHandleCommandProtocolError(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.getRouter())
	defer ts.Close()

	// Protocol failures still travel as HTTP 200 response envelopes.
	status, resp := postCommand(t, ts, `definitely not json`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, resp["ok"])
	assert.Equal(t, string(interfaces.KindParseError), resp["error"])
}

func TestHandleCommandOversizedBody(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.getRouter())
	defer ts.Close()

	status, resp := postCommand(t, ts, `{"op":"DISCOVER","pad":"`+strings.Repeat("x", 2*interfaces.MaxJSONLen)+`"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(interfaces.KindParseError), resp["error"])
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.getRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/livez")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDrainRejectsCommands(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.getRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/drain")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	status, _ := postCommand(t, ts, `{"op":"DISCOVER"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	resp, err = http.Get(ts.URL + "/undrain")
	require.NoError(t, err)
	resp.Body.Close()

	status, decoded := postCommand(t, ts, `{"op":"DISCOVER"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, decoded["ok"])
}
