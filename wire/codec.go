// Package wire implements the pluggable frame codecs of spec §4.1: the
// message codec (Action/ActionResponse/Event/Join/JoinResponse/Error) and
// the state-update codec (noChange/firstSync/diff), each available in a
// JSON-object, opcode-array, or opcode-MessagePack form, with optional
// path-hash and dynamic-key compression on the state-update side.
package wire

import (
	"landsync/core"
)

// DecodedMessage is the result of decoding one inbound frame: its kind
// plus the raw bytes of its kind-specific payload, left for the caller to
// unmarshal into the concrete message struct via Codec's typed decoders.
type DecodedMessage struct {
	Kind core.MessageKind
	Raw  []byte
}

// MessageCodec encodes and decodes the TransportMessage envelope of spec
// §6.2. Implementations must be safe for concurrent use by multiple
// goroutines only if they declare ThreadSafe() == true; the adapter's
// parallel-encoding path (spec §4.6.6) checks this before fanning work out.
type MessageCodec interface {
	Name() string
	ThreadSafe() bool

	EncodeAction(requestID, typeIdentifier string, payload []byte) ([]byte, error)
	EncodeActionResponse(requestID string, response interface{}) ([]byte, error)
	EncodeEvent(event core.EventMessage) ([]byte, error)
	EncodeJoin(msg core.JoinMessage) ([]byte, error)
	EncodeJoinResponse(msg core.JoinResponseMessage) ([]byte, error)
	EncodeError(msg core.ErrorMessage) ([]byte, error)

	// Decode parses raw wire bytes in this codec's own encoding into a
	// message kind and its payload. A join frame sent in the JSON-object
	// shape before codec negotiation (spec §4.6.8) is decodable here only
	// by the JSON-object codec; DecodeJoinFrame decodes such a frame
	// whatever the room's codec.
	Decode(raw []byte) (DecodedMessage, error)

	DecodeActionPayload(raw []byte) (core.ActionMessage, error)
	DecodeJoinPayload(raw []byte) (core.JoinMessage, error)
	DecodeEventPayload(raw []byte) (core.EventMessage, error)
}

// Scope identifies the (land, recipient) pair a state-update codec's
// dynamic-key dictionary is keyed on (spec §4.1). Recipient is either a
// PlayerID string or the sentinel BroadcastScope for the shared broadcast
// view.
type Scope struct {
	Land      string
	Recipient string
}

// BroadcastScope is the Recipient value used for the shared broadcast
// cache's dynamic-key dictionary.
const BroadcastScope = "*broadcast*"

// StateUpdateCodec encodes/decodes state-update frames (spec §3, §4.1).
type StateUpdateCodec interface {
	Name() string
	ThreadSafe() bool
	// SupportsMerge reports whether this codec's bytes can be losslessly
	// re-embedded inside an opcode-107 merged frame (true only for the
	// MessagePack state codec paired with a MessagePack message codec).
	SupportsMerge() bool

	// Encode renders update for scope, forcing definition mode for every
	// dynamic key when update.Kind == core.UpdateFirstSync (spec §4.1).
	Encode(update core.StateUpdate, scope Scope) ([]byte, error)

	// ResetScope clears the dynamic-key dictionary for scope; called
	// before encoding a firstSync so a late joiner is taught every slot
	// from scratch.
	ResetScope(scope Scope)

	Decode(raw []byte) (core.StateUpdate, error)
}
