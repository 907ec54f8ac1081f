package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusclaw/agent-vault-protocol/interfaces"
)

func kindOf(t *testing.T, err error) interfaces.ErrorKind {
	t.Helper()
	require.Error(t, err)
	return interfaces.KindOf(err)
}

func TestParseCommandAllFields(t *testing.T) {
	raw := `{
		"op": "AUTHENTICATE",
		"session_id": "00112233445566778899aabbccddeeff",
		"workspace": "ws",
		"name": "api-key",
		"value": "c2VjcmV0",
		"auth_method": "pin",
		"pin": "1234",
		"ttl": 120,
		"key_name": "agent",
		"data": "deadbeef"
	}`

	cmd, err := ParseCommand([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, OpAuthenticate, cmd.Op)
	assert.Equal(t, "00112233445566778899aabbccddeeff", cmd.SessionID)
	assert.Equal(t, "ws", cmd.Workspace)
	assert.Equal(t, "api-key", cmd.Name)
	assert.Equal(t, "c2VjcmV0", cmd.Value)
	assert.Equal(t, "pin", cmd.AuthMethod)
	assert.Equal(t, "1234", cmd.PIN)
	assert.Equal(t, uint32(120), cmd.TTL)
	assert.Equal(t, "agent", cmd.KeyName)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, cmd.Data)
}

func TestParseCommandUnknownFieldsIgnored(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"op":"DISCOVER","future_field":42}`))
	require.NoError(t, err)
	assert.Equal(t, OpDiscover, cmd.Op)
}

func TestParseCommandMalformedJSON(t *testing.T) {
	for _, raw := range []string{
		`{"op":"DISCOVER"`,
		`{"op":}`,
		`not json`,
		`[1,2,3]`,
		``,
		`  `,
	} {
		_, err := ParseCommand([]byte(raw))
		assert.Equal(t, interfaces.KindParseError, kindOf(t, err), "input: %q", raw)
	}
}

func TestParseCommandMissingOp(t *testing.T) {
	_, err := ParseCommand([]byte(`{"name":"x"}`))
	assert.Equal(t, interfaces.KindParseError, kindOf(t, err))
}

func TestParseCommandUnknownOp(t *testing.T) {
	_, err := ParseCommand([]byte(`{"op":"EXPLODE"}`))
	assert.Equal(t, interfaces.KindInvalidOperation, kindOf(t, err))
}

func TestParseCommandOversizedRequest(t *testing.T) {
	raw := `{"op":"STORE","name":"x","junk":"` + strings.Repeat("a", interfaces.MaxJSONLen) + `"}`
	_, err := ParseCommand([]byte(raw))
	assert.Equal(t, interfaces.KindParseError, kindOf(t, err))
}

func TestParseCommandFieldCeilings(t *testing.T) {
	cases := map[string]string{
		"name":        strings.Repeat("n", 64),
		"workspace":   strings.Repeat("w", 64),
		"value":       strings.Repeat("v", 512),
		"pin":         strings.Repeat("1", 16),
		"auth_method": strings.Repeat("m", 16),
		"key_name":    strings.Repeat("k", 64),
		"session_id":  strings.Repeat("f", 33),
	}
	for field, val := range cases {
		raw, err := json.Marshal(map[string]string{"op": "STORE", field: val})
		require.NoError(t, err)
		_, err = ParseCommand(raw)
		assert.Equal(t, interfaces.KindParseError, kindOf(t, err), "field: %s", field)
	}
}

func TestParseCommandFieldTypeMismatch(t *testing.T) {
	_, err := ParseCommand([]byte(`{"op":"AUTHENTICATE","ttl":"soon"}`))
	assert.Equal(t, interfaces.KindInvalidParameter, kindOf(t, err))
}

func TestParseCommandTTLAlias(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"op":"AUTHENTICATE","requested_ttl":60}`))
	require.NoError(t, err)
	assert.Equal(t, uint32(60), cmd.TTL)

	// ttl wins when both are present, regardless of order.
	cmd, err = ParseCommand([]byte(`{"op":"AUTHENTICATE","requested_ttl":60,"ttl":90}`))
	require.NoError(t, err)
	assert.Equal(t, uint32(90), cmd.TTL)

	cmd, err = ParseCommand([]byte(`{"op":"AUTHENTICATE","ttl":90,"requested_ttl":60}`))
	require.NoError(t, err)
	assert.Equal(t, uint32(90), cmd.TTL)
}

func TestParseCommandBadHexData(t *testing.T) {
	for _, data := range []string{"abc", "zz", "0x1234"} {
		raw := `{"op":"HW_SIGN","data":"` + data + `"}`
		_, err := ParseCommand([]byte(raw))
		assert.Equal(t, interfaces.KindInvalidParameter, kindOf(t, err), "data: %q", data)
	}
}

func TestParseCommandLeadingWhitespace(t *testing.T) {
	cmd, err := ParseCommand([]byte("  \r\n\t{\"op\":\"LIST\"}"))
	require.NoError(t, err)
	assert.Equal(t, OpList, cmd.Op)
}

func TestCommandZeroize(t *testing.T) {
	cmd, err := ParseCommand([]byte(`{"op":"STORE","pin":"1234","value":"sekrit","data":"ff"}`))
	require.NoError(t, err)

	cmd.Zeroize()
	assert.Empty(t, cmd.PIN)
	assert.Empty(t, cmd.Value)
	assert.Equal(t, []byte{0}, cmd.Data)
}

func TestMarshalResponseSuccess(t *testing.T) {
	out, err := MarshalResponse(OKResponse())
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
}

func TestMarshalResponseError(t *testing.T) {
	resp := ErrorResponse(interfaces.NewError(interfaces.KindSecretNotFound, "no such secret"))
	out, err := MarshalResponse(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":false,"error":"SECRET_NOT_FOUND","message":"no such secret"}`, string(out))
}

func TestErrorResponseNonProtocolError(t *testing.T) {
	resp := ErrorResponse(assert.AnError)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error)
}

func TestMarshalResponseEmptyList(t *testing.T) {
	names := []string{}
	out, err := MarshalResponse(&Response{OK: true, Secrets: &names})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"secrets":[]}`, string(out))
}

func TestMarshalResponseOverflow(t *testing.T) {
	names := make([]string, 0, interfaces.MaxSecrets)
	for i := 0; i < interfaces.MaxSecrets; i++ {
		names = append(names, strings.Repeat("n", interfaces.MaxNameLen-1))
	}
	_, err := MarshalResponse(&Response{OK: true, Secrets: &names})
	assert.Equal(t, interfaces.KindInternalError, kindOf(t, err))
}
