package protocol

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nexusclaw/agent-vault-protocol/interfaces"
)

// Op is a protocol verb.
type Op string

const (
	OpDiscover     Op = "DISCOVER"
	OpAuthenticate Op = "AUTHENTICATE"
	OpStore        Op = "STORE"
	OpRetrieve     Op = "RETRIEVE"
	OpDelete       Op = "DELETE"
	OpList         Op = "LIST"
	OpRotate       Op = "ROTATE"
	OpHWChallenge  Op = "HW_CHALLENGE"
	OpHWSign       Op = "HW_SIGN"
	OpHWAttest     Op = "HW_ATTEST"
)

var knownOps = map[Op]bool{
	OpDiscover:     true,
	OpAuthenticate: true,
	OpStore:        true,
	OpRetrieve:     true,
	OpDelete:       true,
	OpList:         true,
	OpRotate:       true,
	OpHWChallenge:  true,
	OpHWSign:       true,
	OpHWAttest:     true,
}

// Command is a parsed request envelope.
type Command struct {
	Op         Op
	SessionID  string
	Workspace  string
	Name       string
	Value      string
	AuthMethod string
	PIN        string
	TTL        uint32
	KeyName    string
	Data       []byte
}

// Zeroize clears the sensitive fields of the command. Called by the
// dispatcher once the operation frame is released.
func (c *Command) Zeroize() {
	c.PIN = ""
	c.Value = ""
	for i := range c.Data {
		c.Data[i] = 0
	}
}

// envelope is the raw wire shape. Pointers distinguish absent fields from
// zero values; unknown fields are ignored by encoding/json.
type envelope struct {
	Op           *string `json:"op"`
	SessionID    *string `json:"session_id"`
	Workspace    *string `json:"workspace"`
	Name         *string `json:"name"`
	Value        *string `json:"value"`
	AuthMethod   *string `json:"auth_method"`
	PIN          *string `json:"pin"`
	TTL          *uint32 `json:"ttl"`
	RequestedTTL *uint32 `json:"requested_ttl"`
	KeyName      *string `json:"key_name"`
	Data         *string `json:"data"`
}

// Per-field length ceilings of the wire format.
const (
	maxOpLen         = 32
	maxSessionIDLen  = interfaces.SessionIDLen
	maxWorkspaceLen  = interfaces.MaxNameLen - 1
	maxSecretNameLen = interfaces.MaxNameLen - 1
	maxValueFieldLen = interfaces.MaxValueLen - 1
	maxAuthMethodLen = 15
	maxPINLen        = 15
	maxKeyNameLen    = interfaces.MaxNameLen - 1
	maxDataHexLen    = 2 * interfaces.MaxSecretSize
)

// ParseCommand parses a raw request envelope. Malformed JSON surfaces as
// PARSE_ERROR, a type mismatch on a recognized field as INVALID_PARAMETER,
// and an unrecognized verb as INVALID_OPERATION. A field exceeding its
// ceiling is a parse error, never a silent truncation.
func ParseCommand(raw []byte) (*Command, error) {
	if len(raw) > interfaces.MaxJSONLen {
		return nil, interfaces.NewError(interfaces.KindParseError, "request exceeds maximum length")
	}

	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, interfaces.NewError(interfaces.KindParseError, "request is not a JSON object")
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		if typeErr, ok := err.(*json.UnmarshalTypeError); ok {
			return nil, interfaces.WrapError(interfaces.KindInvalidParameter,
				fmt.Sprintf("field %q has wrong type", typeErr.Field), err)
		}
		return nil, interfaces.WrapError(interfaces.KindParseError, "malformed JSON", err)
	}

	if env.Op == nil || *env.Op == "" {
		return nil, interfaces.NewError(interfaces.KindParseError, "missing op")
	}
	if len(*env.Op) > maxOpLen {
		return nil, interfaces.NewError(interfaces.KindParseError, "op exceeds field ceiling")
	}

	op := Op(*env.Op)
	if !knownOps[op] {
		return nil, interfaces.NewError(interfaces.KindInvalidOperation, "unknown operation "+*env.Op)
	}

	cmd := &Command{Op: op}

	for _, f := range []struct {
		name string
		src  *string
		dst  *string
		max  int
	}{
		{"session_id", env.SessionID, &cmd.SessionID, maxSessionIDLen},
		{"workspace", env.Workspace, &cmd.Workspace, maxWorkspaceLen},
		{"name", env.Name, &cmd.Name, maxSecretNameLen},
		{"value", env.Value, &cmd.Value, maxValueFieldLen},
		{"auth_method", env.AuthMethod, &cmd.AuthMethod, maxAuthMethodLen},
		{"pin", env.PIN, &cmd.PIN, maxPINLen},
		{"key_name", env.KeyName, &cmd.KeyName, maxKeyNameLen},
	} {
		if f.src == nil {
			continue
		}
		if len(*f.src) > f.max {
			return nil, interfaces.NewError(interfaces.KindParseError,
				fmt.Sprintf("field %q exceeds %d bytes", f.name, f.max))
		}
		*f.dst = *f.src
	}

	// requested_ttl aliases ttl; ttl wins when both are present.
	if env.TTL != nil {
		cmd.TTL = *env.TTL
	} else if env.RequestedTTL != nil {
		cmd.TTL = *env.RequestedTTL
	}

	if env.Data != nil {
		if len(*env.Data) > maxDataHexLen {
			return nil, interfaces.NewError(interfaces.KindParseError,
				fmt.Sprintf("field %q exceeds %d bytes", "data", maxDataHexLen))
		}
		data, err := hex.DecodeString(*env.Data)
		if err != nil {
			return nil, interfaces.WrapError(interfaces.KindInvalidParameter,
				"field \"data\" is not valid hex", err)
		}
		cmd.Data = data
	}

	return cmd, nil
}
