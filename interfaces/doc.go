// Package interfaces defines the core contracts and types shared across the
// AVP engine. It provides the boundary between the protocol engine and its
// collaborators without implementation details.
//
// The package contains:
//
//   - SecureElement: the adapter contract for the hardware secure element
//     (slot storage, PIN verification, signing, attestation)
//   - Platform: the clock and RNG capabilities injected into the engine
//   - Error: the protocol error taxonomy surfaced on the wire
//   - Protocol constants: slot ranges, field ceilings, session parameters
//
// All constants are bit-exact with the AVP wire protocol. Components depend
// on this package only; concrete secure element backends live in the hse
// package and are selected at startup.
package interfaces
