package wire

import (
	"encoding/base64"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"landsync/core"
)

// MsgpackMessageCodec is the opcode-MessagePack message encoding: the same
// `[opcode, ...fields]` array shape as OpcodeJSONMessageCodec, but packed
// as MessagePack, shrinking overhead for high-frequency traffic (spec
// §4.1). Only this codec, paired with the MessagePack state-update codec,
// may emit the merged opcode-107 frame (spec §4.6.9).
type MsgpackMessageCodec struct{}

func NewMsgpackMessageCodec() *MsgpackMessageCodec { return &MsgpackMessageCodec{} }

func (c *MsgpackMessageCodec) Name() string     { return "opcode_msgpack" }
func (c *MsgpackMessageCodec) ThreadSafe() bool { return true }

func (c *MsgpackMessageCodec) EncodeAction(requestID, typeIdentifier string, payload []byte) ([]byte, error) {
	return msgpack.Marshal([]interface{}{core.KindAction, requestID, typeIdentifier, payload})
}

func (c *MsgpackMessageCodec) EncodeActionResponse(requestID string, response interface{}) ([]byte, error) {
	return msgpack.Marshal([]interface{}{core.KindActionResponse, requestID, response})
}

func (c *MsgpackMessageCodec) EncodeEvent(event core.EventMessage) ([]byte, error) {
	return msgpack.Marshal([]interface{}{core.KindEvent, event})
}

func (c *MsgpackMessageCodec) EncodeJoin(msg core.JoinMessage) ([]byte, error) {
	return msgpack.Marshal([]interface{}{core.KindJoin, msg.RequestID, msg.LandType, msg.LandInstanceID, msg.PlayerID, msg.DeviceID, msg.Metadata})
}

func (c *MsgpackMessageCodec) EncodeJoinResponse(msg core.JoinResponseMessage) ([]byte, error) {
	return msgpack.Marshal([]interface{}{core.KindJoinResponse, msg.RequestID, msg.Success, msg.LandType, msg.LandInstanceID, msg.PlayerSlot, msg.Encoding, msg.Reason})
}

func (c *MsgpackMessageCodec) EncodeError(msg core.ErrorMessage) ([]byte, error) {
	return msgpack.Marshal([]interface{}{core.KindError, msg.Code, msg.Message, msg.Details})
}

func (c *MsgpackMessageCodec) Decode(raw []byte) (DecodedMessage, error) {
	var frame []msgpack.RawMessage
	if err := msgpack.Unmarshal(raw, &frame); err != nil || len(frame) == 0 {
		return DecodedMessage{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed msgpack frame", nil))
	}
	var kind core.MessageKind
	if err := msgpack.Unmarshal(frame[0], &kind); err != nil {
		return DecodedMessage{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "missing opcode", nil))
	}
	rest, err := msgpack.Marshal(frame[1:])
	if err != nil {
		return DecodedMessage{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed msgpack fields", nil))
	}
	return DecodedMessage{Kind: kind, Raw: rest}, nil
}

func (c *MsgpackMessageCodec) DecodeActionPayload(raw []byte) (core.ActionMessage, error) {
	var fields []msgpack.RawMessage
	if err := msgpack.Unmarshal(raw, &fields); err != nil || len(fields) < 3 {
		return core.ActionMessage{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed action fields", nil))
	}
	var m core.ActionMessage
	var payload []byte
	_ = msgpack.Unmarshal(fields[0], &m.RequestID)
	_ = msgpack.Unmarshal(fields[1], &m.TypeIdentifier)
	_ = msgpack.Unmarshal(fields[2], &payload)
	m.PayloadB64 = base64.StdEncoding.EncodeToString(payload)
	return m, nil
}

func (c *MsgpackMessageCodec) DecodeJoinPayload(raw []byte) (core.JoinMessage, error) {
	var fields []msgpack.RawMessage
	if err := msgpack.Unmarshal(raw, &fields); err != nil || len(fields) < 6 {
		return core.JoinMessage{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed join fields", nil))
	}
	var m core.JoinMessage
	_ = msgpack.Unmarshal(fields[0], &m.RequestID)
	_ = msgpack.Unmarshal(fields[1], &m.LandType)
	_ = msgpack.Unmarshal(fields[2], &m.LandInstanceID)
	_ = msgpack.Unmarshal(fields[3], &m.PlayerID)
	_ = msgpack.Unmarshal(fields[4], &m.DeviceID)
	_ = msgpack.Unmarshal(fields[5], &m.Metadata)
	return m, nil
}

func (c *MsgpackMessageCodec) DecodeEventPayload(raw []byte) (core.EventMessage, error) {
	var fields []msgpack.RawMessage
	if err := msgpack.Unmarshal(raw, &fields); err != nil || len(fields) < 1 {
		return core.EventMessage{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed event fields", nil))
	}
	var m core.EventMessage
	if err := msgpack.Unmarshal(fields[0], &m); err != nil {
		return core.EventMessage{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed event body", nil))
	}
	return m, nil
}
