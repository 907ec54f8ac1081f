// Package protocol implements the AVP envelope codec: parsing of request
// envelopes into Command records and serialization of Response records.
//
// Requests and responses are single UTF-8 JSON objects of at most
// interfaces.MaxJSONLen bytes. The parser accepts one top-level object,
// extracts the recognized fields, ignores unknown fields, and enforces the
// per-field length ceilings of the wire format. Binary payloads are
// hex-encoded lower case on the wire; odd-length or non-hex input is
// rejected.
//
// The codec performs no I/O and holds no state; the engine package drives
// it from its dispatch loop.
package protocol
