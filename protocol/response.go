package protocol

import (
	"encoding/json"
	"errors"

	"github.com/nexusclaw/agent-vault-protocol/interfaces"
)

// Capabilities is the DISCOVER capability descriptor.
type Capabilities struct {
	HWSign        bool   `json:"hw_sign"`
	HWAttest      bool   `json:"hw_attest"`
	MaxSecrets    uint32 `json:"max_secrets"`
	MaxSecretSize uint32 `json:"max_secret_size"`
}

// Response is a response envelope. Exactly the fields populated by a
// handler appear on the wire; everything else is omitted.
type Response struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	// DISCOVER
	Version      string        `json:"version,omitempty"`
	BackendType  string        `json:"backend_type,omitempty"`
	Manufacturer string        `json:"manufacturer,omitempty"`
	Model        string        `json:"model,omitempty"`
	Serial       string        `json:"serial,omitempty"`
	Capabilities *Capabilities `json:"capabilities,omitempty"`

	// AUTHENTICATE
	SessionID string `json:"session_id,omitempty"`
	ExpiresIn uint32 `json:"expires_in,omitempty"`
	Workspace string `json:"workspace,omitempty"`

	// RETRIEVE
	Value string `json:"value,omitempty"`

	// LIST; pointer so an empty list still serializes as [].
	Secrets *[]string `json:"secrets,omitempty"`

	// HW_CHALLENGE
	Verified *bool `json:"verified,omitempty"`

	// HW_SIGN
	Signature string `json:"signature,omitempty"`

	// HW_ATTEST
	Attestation string `json:"attestation,omitempty"`
}

// OKResponse is the bare success envelope.
func OKResponse() *Response {
	return &Response{OK: true}
}

// ErrorResponse builds a failure envelope from any error, classifying
// non-protocol errors as INTERNAL_ERROR.
func ErrorResponse(err error) *Response {
	var pe *interfaces.Error
	if !errors.As(err, &pe) {
		pe = interfaces.NewError(interfaces.KindInternalError, "")
	}
	return &Response{OK: false, Error: string(pe.Kind), Message: pe.Detail()}
}

// MarshalResponse serializes a response envelope. A result that would
// exceed the wire limit is refused with INTERNAL_ERROR rather than emitted
// truncated.
func MarshalResponse(resp *Response) ([]byte, error) {
	out, err := json.Marshal(resp)
	if err != nil {
		return nil, interfaces.WrapError(interfaces.KindInternalError, "response serialization failed", err)
	}
	if len(out) > interfaces.MaxJSONLen {
		return nil, interfaces.NewError(interfaces.KindInternalError, "response exceeds maximum length")
	}
	return out, nil
}
