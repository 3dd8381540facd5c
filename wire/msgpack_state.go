package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"landsync/core"
)

// MsgpackStateUpdateCodec is the opcode-MessagePack state-update encoding:
// the same `[updateOpcode, {"patches": [...]}]` array shape as
// OpcodeJSONStateUpdateCodec, packed as MessagePack. It is the only
// state-update codec that SupportsMerge, since building the opcode-107
// frame (spec §4.1, §4.6.9) requires unpacking the state-update payload,
// prepending 107, and appending the events array — only possible when the
// bytes are already MessagePack arrays.
type MsgpackStateUpdateCodec struct {
	pathHashes map[string]uint32
	dyn        *dynamicKeyDictionary
}

func NewMsgpackStateUpdateCodec(pathHashes map[string]uint32) *MsgpackStateUpdateCodec {
	return &MsgpackStateUpdateCodec{pathHashes: pathHashes, dyn: newDynamicKeyDictionary()}
}

func (c *MsgpackStateUpdateCodec) Name() string        { return "opcode_msgpack" }
func (c *MsgpackStateUpdateCodec) ThreadSafe() bool     { return true }
func (c *MsgpackStateUpdateCodec) SupportsMerge() bool  { return true }
func (c *MsgpackStateUpdateCodec) ResetScope(scope Scope) { c.dyn.Reset(scope) }

func (c *MsgpackStateUpdateCodec) Encode(update core.StateUpdate, scope Scope) ([]byte, error) {
	if update.Kind == core.UpdateFirstSync {
		c.dyn.Reset(scope)
	}

	patches := make([]interface{}, 0, len(update.Patches))
	for _, p := range update.Patches {
		patches = append(patches, c.encodePatch(p, scope))
	}
	return msgpack.Marshal([]interface{}{update.Kind, map[string]interface{}{"patches": patches}})
}

func (c *MsgpackStateUpdateCodec) encodePatch(p core.StatePatch, scope Scope) interface{} {
	if len(c.pathHashes) == 0 {
		if p.Op == core.PatchRemove {
			return []interface{}{p.Path, opToInt(p.Op)}
		}
		return []interface{}{p.Path, opToInt(p.Op), p.Value}
	}

	_, hash, dynKeys, found := decomposePath(p.Path, c.pathHashes)
	if !found {
		return []interface{}{p.Path, nil, opToInt(p.Op), p.Value}
	}
	entries := c.dyn.Encode(scope, dynKeys)
	return []interface{}{hash, encodeDynKeyEntries(entries), opToInt(p.Op), p.Value}
}

func (c *MsgpackStateUpdateCodec) Decode(raw []byte) (core.StateUpdate, error) {
	var frame []msgpack.RawMessage
	if err := msgpack.Unmarshal(raw, &frame); err != nil || len(frame) < 2 {
		return core.StateUpdate{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed msgpack state frame", nil))
	}
	var kind core.UpdateKind
	if err := msgpack.Unmarshal(frame[0], &kind); err != nil {
		return core.StateUpdate{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed state kind", nil))
	}
	var body struct {
		Patches []msgpack.RawMessage `msgpack:"patches"`
	}
	if err := msgpack.Unmarshal(frame[1], &body); err != nil {
		return core.StateUpdate{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed patches body", nil))
	}

	update := core.StateUpdate{Kind: kind}
	for _, raw := range body.Patches {
		var fields []msgpack.RawMessage
		if err := msgpack.Unmarshal(raw, &fields); err != nil || len(fields) < 2 {
			return core.StateUpdate{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed patch entry", nil))
		}
		patch, err := c.decodePatch(fields)
		if err != nil {
			return core.StateUpdate{}, err
		}
		update.Patches = append(update.Patches, patch)
	}
	return update, nil
}

func (c *MsgpackStateUpdateCodec) decodePatch(fields []msgpack.RawMessage) (core.StatePatch, error) {
	if len(c.pathHashes) == 0 {
		var path string
		var op int
		_ = msgpack.Unmarshal(fields[0], &path)
		_ = msgpack.Unmarshal(fields[1], &op)
		var value interface{}
		if len(fields) > 2 {
			_ = msgpack.Unmarshal(fields[2], &value)
		}
		return core.StatePatch{Path: path, Op: intToOp(op), Value: value}, nil
	}

	var asString string
	if err := msgpack.Unmarshal(fields[0], &asString); err == nil {
		var op int
		_ = msgpack.Unmarshal(fields[2], &op)
		var value interface{}
		if len(fields) > 3 {
			_ = msgpack.Unmarshal(fields[3], &value)
		}
		return core.StatePatch{Path: asString, Op: intToOp(op), Value: value}, nil
	}

	var hash uint32
	if err := msgpack.Unmarshal(fields[0], &hash); err != nil {
		return core.StatePatch{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed path hash", nil))
	}
	pattern := reverseLookup(c.pathHashes, hash)
	var op int
	_ = msgpack.Unmarshal(fields[2], &op)
	var value interface{}
	if len(fields) > 3 {
		_ = msgpack.Unmarshal(fields[3], &value)
	}
	return core.StatePatch{Path: pattern, Op: intToOp(op), Value: value}, nil
}

// BuildMergedFrame constructs the opcode-107 frame of spec §4.1/§4.6.9:
// [107, stateUpdateBody, eventsArray]. stateUpdateBytes must have been
// produced by this codec's Encode; eventBodies are pre-encoded MessagePack
// event payloads, re-unpacked here so they nest as native array elements
// rather than opaque byte blobs.
func BuildMergedFrame(stateUpdateBytes []byte, eventBodies [][]byte) ([]byte, error) {
	var stateUpdate msgpack.RawMessage
	if err := msgpack.Unmarshal(stateUpdateBytes, &stateUpdate); err != nil {
		return nil, fmt.Errorf("wire: unpack state update for merge: %w", err)
	}

	events := make([]msgpack.RawMessage, len(eventBodies))
	for i, b := range eventBodies {
		var raw msgpack.RawMessage
		if err := msgpack.Unmarshal(b, &raw); err != nil {
			return nil, fmt.Errorf("wire: unpack event body for merge: %w", err)
		}
		events[i] = raw
	}

	return msgpack.Marshal([]interface{}{core.KindMerged, stateUpdate, events})
}
