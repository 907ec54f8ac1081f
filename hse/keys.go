package hse

import (
	"github.com/nexusclaw/agent-vault-protocol/interfaces"
)

// wellKnownKeys maps the key labels agents use in HW_SIGN requests to key
// slots. The mapping is shared by all backends; the empty label resolves
// to the attestation key by convention.
var wellKnownKeys = map[string]uint8{
	"attestation": interfaces.AttestationKeySlot,
	"agent":       1,
	"recovery":    2,
}

func resolveKeyName(name string) (uint8, error) {
	if name == "" {
		return interfaces.AttestationKeySlot, nil
	}
	slot, ok := wellKnownKeys[name]
	if !ok {
		return 0, interfaces.NewError(interfaces.KindInvalidParameter, "unknown key name "+name)
	}
	return slot, nil
}

func validDataSlot(slot uint8) bool {
	return slot >= interfaces.SlotSecretsStart && slot <= interfaces.SlotSecretsEnd
}

func validKeySlot(slot uint8) bool {
	return slot <= interfaces.SlotKeysEnd
}
