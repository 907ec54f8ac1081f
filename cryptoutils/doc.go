// Package cryptoutils provides the cryptographic helpers shared by the AVP
// secure element backends: Argon2id PIN digests with constant-time
// verification, and zeroization for sensitive operation-scoped buffers.
package cryptoutils
