package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nexusclaw/agent-vault-protocol/interfaces"
	"github.com/nexusclaw/agent-vault-protocol/protocol"
)

// Engine is the AVP protocol context: one session slot, the secret
// metadata table, and the secure element adapter. It is created once at
// startup and serves requests until shutdown. Requests are strictly
// serialized, matching the one-command-at-a-time device model.
type Engine struct {
	mu       sync.Mutex
	se       interfaces.SecureElement
	platform interfaces.Platform
	session  *SessionManager
	table    *SecretTable
	log      *slog.Logger
}

// New creates an engine. se may be nil when the secure element is
// unavailable; in that state only DISCOVER and HW_CHALLENGE are served,
// from static capability data.
func New(se interfaces.SecureElement, platform interfaces.Platform, log *slog.Logger) *Engine {
	return &Engine{
		se:       se,
		platform: platform,
		session:  NewSessionManager(platform),
		table:    NewSecretTable(platform),
		log:      log,
	}
}

// Process handles one request envelope and always returns a response
// envelope. No error escapes as an out-of-band condition; parse failures,
// handler failures, and serializer overflow all materialize as a failure
// response.
func (e *Engine) Process(ctx context.Context, raw []byte) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	cmd, err := protocol.ParseCommand(raw)
	if err != nil {
		e.log.Debug("Request rejected by parser", "err", err)
		return mustMarshal(protocol.ErrorResponse(err))
	}
	defer cmd.Zeroize()

	resp, err := e.dispatch(ctx, cmd)
	if err != nil {
		e.log.Debug("Operation failed", "op", string(cmd.Op), "kind", string(interfaces.KindOf(err)))
		resp = protocol.ErrorResponse(err)
	} else {
		e.log.Debug("Operation completed", "op", string(cmd.Op))
	}

	out, err := protocol.MarshalResponse(resp)
	if err != nil {
		// Serializer overflow; handler side effects are not rolled back.
		e.log.Error("Response serialization failed", "op", string(cmd.Op), "err", err)
		return mustMarshal(protocol.ErrorResponse(err))
	}
	return out
}

func (e *Engine) dispatch(ctx context.Context, cmd *protocol.Command) (*protocol.Response, error) {
	switch cmd.Op {
	case protocol.OpDiscover:
		return e.handleDiscover(ctx)
	case protocol.OpAuthenticate:
		return e.handleAuthenticate(ctx, cmd)
	case protocol.OpStore, protocol.OpRotate:
		return e.handleStore(ctx, cmd)
	case protocol.OpRetrieve:
		return e.handleRetrieve(ctx, cmd)
	case protocol.OpDelete:
		return e.handleDelete(ctx, cmd)
	case protocol.OpList:
		return e.handleList(cmd)
	case protocol.OpHWChallenge:
		return e.handleHWChallenge(ctx)
	case protocol.OpHWSign:
		return e.handleHWSign(ctx, cmd)
	case protocol.OpHWAttest:
		return e.handleHWAttest(ctx, cmd)
	default:
		return nil, interfaces.NewError(interfaces.KindInvalidOperation, "unknown operation")
	}
}

// requireSession gates the session-bound verbs. An invalid or expired
// session fails with NOT_AUTHENTICATED; a client-supplied session_id that
// does not match the active session is rejected the same way.
func (e *Engine) requireSession(cmd *protocol.Command) error {
	if !e.session.IsValid() {
		return interfaces.NewError(interfaces.KindNotAuthenticated, "no valid session")
	}
	if cmd.SessionID != "" && cmd.SessionID != e.session.ID() {
		return interfaces.NewError(interfaces.KindNotAuthenticated, "session_id mismatch")
	}
	return nil
}

// mustMarshal serializes responses that fit the wire limit by
// construction (bare errors and {"ok":true}).
func mustMarshal(resp *protocol.Response) []byte {
	out, err := protocol.MarshalResponse(resp)
	if err != nil {
		return []byte(`{"ok":false,"error":"INTERNAL_ERROR","message":"INTERNAL_ERROR"}`)
	}
	return out
}
