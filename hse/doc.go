// Package hse provides secure element adapters implementing the
// interfaces.SecureElement contract, selected at startup through a
// URI-based factory:
//
//   - sim://                          in-memory simulator for tests and development
//   - tpm:///dev/tpmrm0               TPM 2.0 device (NV storage + persistent signing keys)
//   - vault://host:8200?mount=secret  HashiCorp Vault development backend (KV v2 + transit)
//
// All adapters expose the same slot model: data slots in
// [interfaces.SlotSecretsStart, interfaces.SlotSecretsEnd] holding at most
// interfaces.MaxSecretSize bytes, and key slots in
// [interfaces.SlotKeysStart, interfaces.SlotKeysEnd] with slot 0 reserved
// for the device attestation key. PIN verification uses an Argon2id digest
// held by the backend; see cryptoutils.HashPIN.
//
// Adapter failures are reported as *interfaces.Error values so the engine
// can funnel them into response envelopes without translation.
package hse
