package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"landsync/core"
)

// jsonEnvelope is the outer JSON-object message shape: {"kind": N, ...}.
type jsonEnvelope struct {
	Kind core.MessageKind `json:"kind"`
	Body json.RawMessage  `json:"body"`
}

// JSONMessageCodec is the JSON-object message encoding of spec §4.1: every
// frame is `{"kind": <opcode>, "body": {...}}`. It is safe for concurrent
// use since it holds no mutable state.
type JSONMessageCodec struct{}

func NewJSONMessageCodec() *JSONMessageCodec { return &JSONMessageCodec{} }

func (c *JSONMessageCodec) Name() string    { return "json_object" }
func (c *JSONMessageCodec) ThreadSafe() bool { return true }

func (c *JSONMessageCodec) wrap(kind core.MessageKind, body interface{}) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal body for kind %d: %w", kind, err)
	}
	return json.Marshal(jsonEnvelope{Kind: kind, Body: raw})
}

func (c *JSONMessageCodec) EncodeAction(requestID, typeIdentifier string, payload []byte) ([]byte, error) {
	return c.wrap(core.KindAction, core.ActionMessage{
		RequestID:      requestID,
		TypeIdentifier: typeIdentifier,
		PayloadB64:     base64.StdEncoding.EncodeToString(payload),
	})
}

func (c *JSONMessageCodec) EncodeActionResponse(requestID string, response interface{}) ([]byte, error) {
	return c.wrap(core.KindActionResponse, core.ActionResponseMessage{RequestID: requestID, Response: response})
}

func (c *JSONMessageCodec) EncodeEvent(event core.EventMessage) ([]byte, error) {
	return c.wrap(core.KindEvent, event)
}

func (c *JSONMessageCodec) EncodeJoin(msg core.JoinMessage) ([]byte, error) {
	return c.wrap(core.KindJoin, msg)
}

func (c *JSONMessageCodec) EncodeJoinResponse(msg core.JoinResponseMessage) ([]byte, error) {
	return c.wrap(core.KindJoinResponse, msg)
}

func (c *JSONMessageCodec) EncodeError(msg core.ErrorMessage) ([]byte, error) {
	return c.wrap(core.KindError, msg)
}

func (c *JSONMessageCodec) Decode(raw []byte) (DecodedMessage, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return DecodedMessage{}, fmt.Errorf("%w: %v", core.NewGatewayError(core.CodeInvalidJSON, "malformed JSON frame", nil), err)
	}
	return DecodedMessage{Kind: env.Kind, Raw: env.Body}, nil
}

func (c *JSONMessageCodec) DecodeActionPayload(raw []byte) (core.ActionMessage, error) {
	var m core.ActionMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("%w: %v", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed action body", nil), err)
	}
	return m, nil
}

func (c *JSONMessageCodec) DecodeJoinPayload(raw []byte) (core.JoinMessage, error) {
	var m core.JoinMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("%w: %v", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed join body", nil), err)
	}
	return m, nil
}

func (c *JSONMessageCodec) DecodeEventPayload(raw []byte) (core.EventMessage, error) {
	var m core.EventMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("%w: %v", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed event body", nil), err)
	}
	return m, nil
}

// DecodeJoinFrame decodes a join frame using the JSON-object shape
// regardless of the negotiated steady-state codec, since join must always
// be JSON-parseable before codec negotiation (spec §4.6.8).
func DecodeJoinFrame(raw []byte) (core.JoinMessage, error) {
	codec := NewJSONMessageCodec()
	decoded, err := codec.Decode(raw)
	if err != nil {
		return core.JoinMessage{}, err
	}
	if decoded.Kind != core.KindJoin {
		return core.JoinMessage{}, fmt.Errorf("%w: expected join frame, got kind %d", core.NewGatewayError(core.CodeInvalidMessageFormat, "expected join frame", nil), decoded.Kind)
	}
	return codec.DecodeJoinPayload(decoded.Raw)
}
