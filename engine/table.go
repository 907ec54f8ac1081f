package engine

import (
	"github.com/nexusclaw/agent-vault-protocol/interfaces"
)

// secretMeta is one secret metadata entry. Entries are value types stored
// inline in a fixed-size array; the table index is the identity.
type secretMeta struct {
	name      string
	slotIndex uint8
	createdAt uint32
	updatedAt uint32
	inUse     bool
}

// SecretTable is the in-memory metadata table mapping secret names to
// secure element data slots. Entry i owns data slot
// interfaces.SlotSecretsStart+i. The table holds metadata only; secret
// bytes live in the secure element.
type SecretTable struct {
	platform interfaces.Platform

	entries [interfaces.MaxSecrets]secretMeta
	count   uint8
}

// NewSecretTable creates an empty table.
func NewSecretTable(platform interfaces.Platform) *SecretTable {
	return &SecretTable{platform: platform}
}

// Find returns the table index holding name. Lookup is case-sensitive and
// exact, scanning in-use entries in ascending index order.
func (t *SecretTable) Find(name string) (int, bool) {
	for i := range t.entries {
		if t.entries[i].inUse && t.entries[i].name == name {
			return i, true
		}
	}
	return 0, false
}

// Allocate returns the table index for name, reusing the existing entry on
// the update path or claiming the lowest-indexed free entry for a new name.
// A full table fails with CAPACITY_EXCEEDED.
func (t *SecretTable) Allocate(name string) (int, error) {
	if idx, ok := t.Find(name); ok {
		return idx, nil
	}

	for i := range t.entries {
		if t.entries[i].inUse {
			continue
		}
		t.entries[i] = secretMeta{
			name:      name,
			slotIndex: uint8(interfaces.SlotSecretsStart + i),
			createdAt: t.platform.NowSeconds(),
			inUse:     true,
		}
		t.count++
		return i, nil
	}

	return 0, interfaces.NewError(interfaces.KindCapacityExceeded, "secret table full")
}

// Slot returns the secure element data slot owned by the entry at idx.
func (t *SecretTable) Slot(idx int) uint8 {
	return t.entries[idx].slotIndex
}

// Touch records an update timestamp on the entry at idx.
func (t *SecretTable) Touch(idx int) {
	t.entries[idx].updatedAt = t.platform.NowSeconds()
}

// Free clears the entry at idx. Freeing an unused entry is a no-op.
func (t *SecretTable) Free(idx int) {
	if !t.entries[idx].inUse {
		return
	}
	t.entries[idx] = secretMeta{}
	t.count--
}

// Count returns the number of in-use entries.
func (t *SecretTable) Count() int {
	return int(t.count)
}

// Names enumerates in-use entry names by ascending table index, which
// matches ascending slot index. Update timestamps do not affect the order.
func (t *SecretTable) Names() []string {
	names := make([]string, 0, t.count)
	for i := range t.entries {
		if t.entries[i].inUse {
			names = append(names, t.entries[i].name)
		}
	}
	return names
}
