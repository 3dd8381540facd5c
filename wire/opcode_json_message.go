package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"landsync/core"
)

// OpcodeJSONMessageCodec is the opcode-JSON-array message encoding: every
// frame is a JSON array `[opcode, ...fields]`, isomorphic to the
// JSON-object form but smaller on the wire (spec §4.1). Stateless, so
// thread-safe.
type OpcodeJSONMessageCodec struct{}

func NewOpcodeJSONMessageCodec() *OpcodeJSONMessageCodec { return &OpcodeJSONMessageCodec{} }

func (c *OpcodeJSONMessageCodec) Name() string     { return "opcode_json" }
func (c *OpcodeJSONMessageCodec) ThreadSafe() bool { return true }

func (c *OpcodeJSONMessageCodec) EncodeAction(requestID, typeIdentifier string, payload []byte) ([]byte, error) {
	return json.Marshal([]interface{}{core.KindAction, requestID, typeIdentifier, base64.StdEncoding.EncodeToString(payload)})
}

func (c *OpcodeJSONMessageCodec) EncodeActionResponse(requestID string, response interface{}) ([]byte, error) {
	return json.Marshal([]interface{}{core.KindActionResponse, requestID, response})
}

func (c *OpcodeJSONMessageCodec) EncodeEvent(event core.EventMessage) ([]byte, error) {
	return json.Marshal([]interface{}{core.KindEvent, event})
}

func (c *OpcodeJSONMessageCodec) EncodeJoin(msg core.JoinMessage) ([]byte, error) {
	return json.Marshal([]interface{}{core.KindJoin, msg.RequestID, msg.LandType, msg.LandInstanceID, msg.PlayerID, msg.DeviceID, msg.Metadata})
}

func (c *OpcodeJSONMessageCodec) EncodeJoinResponse(msg core.JoinResponseMessage) ([]byte, error) {
	return json.Marshal([]interface{}{core.KindJoinResponse, msg.RequestID, msg.Success, msg.LandType, msg.LandInstanceID, msg.PlayerSlot, msg.Encoding, msg.Reason})
}

func (c *OpcodeJSONMessageCodec) EncodeError(msg core.ErrorMessage) ([]byte, error) {
	return json.Marshal([]interface{}{core.KindError, msg.Code, msg.Message, msg.Details})
}

func (c *OpcodeJSONMessageCodec) Decode(raw []byte) (DecodedMessage, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame) == 0 {
		return DecodedMessage{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidJSON, "malformed opcode-array frame", nil))
	}
	var kind core.MessageKind
	if err := json.Unmarshal(frame[0], &kind); err != nil {
		return DecodedMessage{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "missing opcode", nil))
	}
	rest, err := json.Marshal(frame[1:])
	if err != nil {
		return DecodedMessage{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed opcode-array fields", nil))
	}
	return DecodedMessage{Kind: kind, Raw: rest}, nil
}

func (c *OpcodeJSONMessageCodec) DecodeActionPayload(raw []byte) (core.ActionMessage, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) < 3 {
		return core.ActionMessage{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed action fields", nil))
	}
	var m core.ActionMessage
	_ = json.Unmarshal(fields[0], &m.RequestID)
	_ = json.Unmarshal(fields[1], &m.TypeIdentifier)
	_ = json.Unmarshal(fields[2], &m.PayloadB64)
	return m, nil
}

func (c *OpcodeJSONMessageCodec) DecodeJoinPayload(raw []byte) (core.JoinMessage, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) < 6 {
		return core.JoinMessage{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed join fields", nil))
	}
	var m core.JoinMessage
	_ = json.Unmarshal(fields[0], &m.RequestID)
	_ = json.Unmarshal(fields[1], &m.LandType)
	_ = json.Unmarshal(fields[2], &m.LandInstanceID)
	_ = json.Unmarshal(fields[3], &m.PlayerID)
	_ = json.Unmarshal(fields[4], &m.DeviceID)
	_ = json.Unmarshal(fields[5], &m.Metadata)
	return m, nil
}

func (c *OpcodeJSONMessageCodec) DecodeEventPayload(raw []byte) (core.EventMessage, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) < 1 {
		return core.EventMessage{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed event fields", nil))
	}
	var m core.EventMessage
	if err := json.Unmarshal(fields[0], &m); err != nil {
		return core.EventMessage{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed event body", nil))
	}
	return m, nil
}
