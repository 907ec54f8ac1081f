// Package engine implements the AVP protocol core: a reactive
// request/response engine mediating access to a hardware secure element.
//
// An Engine owns the single protocol context: the session manager with PIN
// lockout, the secret metadata table mapping names to secure element slots,
// and a reference to the SecureElement adapter. Process is the only entry
// point; it parses one request envelope, dispatches to the verb handler,
// and serializes the response. All errors funnel into the response
// envelope.
//
// The engine performs no background work. Process invocations are
// serialized internally, so transports may share one Engine; the protocol
// itself is strictly one command at a time.
package engine
