package wire

import (
	"encoding/json"
	"fmt"

	"landsync/core"
)

// opcodeStateFrame is the outer shape shared by the plain opcode-array and
// path-hash variants: [updateOpcode, {"patches": [...]}].
type opcodeStateFrame struct {
	Kind    core.UpdateKind   `json:"-"`
	Patches []json.RawMessage `json:"-"`
}

func (f opcodeStateFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{f.Kind, map[string]interface{}{"patches": f.Patches}})
}

func (f *opcodeStateFrame) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) < 2 {
		return fmt.Errorf("malformed opcode state frame")
	}
	if err := json.Unmarshal(raw[0], &f.Kind); err != nil {
		return err
	}
	var body struct {
		Patches []json.RawMessage `json:"patches"`
	}
	if err := json.Unmarshal(raw[1], &body); err != nil {
		return err
	}
	f.Patches = body.Patches
	return nil
}

// OpcodeJSONStateUpdateCodec is the direct-encoding opcode-JSON-array
// state-update codec of spec §4.1/§9 — the teacher's source carried a
// second, AnyCodable-backed implementation retained only for backward
// compatibility; per spec §9 that form is not reimplemented here.
//
// When pathHashes is non-empty, patches additionally compress their path
// into [hash, dynamicKeyEncoding, opOp, value?] wherever a registered
// pattern matches; patches with no matching pattern fall back to
// [path, null, opOp, value?] unchanged.
type OpcodeJSONStateUpdateCodec struct {
	pathHashes map[string]uint32
	dyn        *dynamicKeyDictionary
}

// NewOpcodeJSONStateUpdateCodec builds the codec. Pass a nil or empty
// pathHashes map to disable path-hash compression (plain [path, op, value]
// patches only).
func NewOpcodeJSONStateUpdateCodec(pathHashes map[string]uint32) *OpcodeJSONStateUpdateCodec {
	return &OpcodeJSONStateUpdateCodec{pathHashes: pathHashes, dyn: newDynamicKeyDictionary()}
}

func (c *OpcodeJSONStateUpdateCodec) Name() string {
	if len(c.pathHashes) > 0 {
		return "opcode_json_pathhash"
	}
	return "opcode_json"
}

// ThreadSafe is true: the dynamic-key dictionary is guarded by its own
// mutex, satisfying spec §5's requirement that only encoders declaring
// thread-safety run in the parallel-encoding path.
func (c *OpcodeJSONStateUpdateCodec) ThreadSafe() bool    { return true }
func (c *OpcodeJSONStateUpdateCodec) SupportsMerge() bool { return false }

func (c *OpcodeJSONStateUpdateCodec) ResetScope(scope Scope) { c.dyn.Reset(scope) }

func (c *OpcodeJSONStateUpdateCodec) Encode(update core.StateUpdate, scope Scope) ([]byte, error) {
	if update.Kind == core.UpdateFirstSync {
		c.dyn.Reset(scope)
	}

	patches := make([]json.RawMessage, 0, len(update.Patches))
	for _, p := range update.Patches {
		entry, err := c.encodePatch(p, scope)
		if err != nil {
			return nil, err
		}
		patches = append(patches, entry)
	}
	return json.Marshal(opcodeStateFrame{Kind: update.Kind, Patches: patches})
}

func (c *OpcodeJSONStateUpdateCodec) encodePatch(p core.StatePatch, scope Scope) (json.RawMessage, error) {
	if len(c.pathHashes) == 0 {
		return json.Marshal(patchFields(p.Path, p.Op, p.Value))
	}

	_, hash, dynKeys, found := decomposePath(p.Path, c.pathHashes)
	if !found {
		return json.Marshal([]interface{}{p.Path, nil, opToInt(p.Op), p.Value})
	}

	entries := c.dyn.Encode(scope, dynKeys)
	return json.Marshal([]interface{}{hash, encodeDynKeyEntries(entries), opToInt(p.Op), p.Value})
}

// patchFields builds the plain [path, op, value?] array, omitting the
// trailing value element for remove (which carries none).
func patchFields(path string, op core.PatchOp, value interface{}) []interface{} {
	if op == core.PatchRemove {
		return []interface{}{path, opToInt(op)}
	}
	return []interface{}{path, opToInt(op), value}
}

// encodeDynKeyEntries renders the dynamic-key portion of a compressed
// patch: nil if there are none, the bare entry if there's exactly one, and
// an array of entries for two or more (spec §4.1).
func encodeDynKeyEntries(entries []dynKeyEntry) interface{} {
	if len(entries) == 0 {
		return nil
	}
	if len(entries) == 1 {
		return encodeOneDynKey(entries[0])
	}
	out := make([]interface{}, len(entries))
	for i, e := range entries {
		out[i] = encodeOneDynKey(e)
	}
	return out
}

func encodeOneDynKey(e dynKeyEntry) interface{} {
	if e.FirstUse {
		return []interface{}{e.Slot, e.Key}
	}
	return e.Slot
}

func (c *OpcodeJSONStateUpdateCodec) Decode(raw []byte) (core.StateUpdate, error) {
	var frame opcodeStateFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return core.StateUpdate{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidJSON, "malformed opcode state frame", nil))
	}

	update := core.StateUpdate{Kind: frame.Kind}
	for _, raw := range frame.Patches {
		var fields []json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || len(fields) < 2 {
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

func (c *OpcodeJSONStateUpdateCodec) decodePatch(fields []json.RawMessage) (core.StatePatch, error) {
	if len(c.pathHashes) == 0 {
		var path string
		var op int
		_ = json.Unmarshal(fields[0], &path)
		_ = json.Unmarshal(fields[1], &op)
		var value interface{}
		if len(fields) > 2 {
			_ = json.Unmarshal(fields[2], &value)
		}
		return core.StatePatch{Path: path, Op: intToOp(op), Value: value}, nil
	}

	// Path-hash form: [pathOrHash, dynKeyEncoding, opOp, value?]
	var asString string
	if err := json.Unmarshal(fields[0], &asString); err == nil {
		var op int
		_ = json.Unmarshal(fields[2], &op)
		var value interface{}
		if len(fields) > 3 {
			_ = json.Unmarshal(fields[3], &value)
		}
		return core.StatePatch{Path: asString, Op: intToOp(op), Value: value}, nil
	}

	var hash uint32
	if err := json.Unmarshal(fields[0], &hash); err != nil {
		return core.StatePatch{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidMessageFormat, "malformed path hash", nil))
	}
	pattern := reverseLookup(c.pathHashes, hash)
	var op int
	_ = json.Unmarshal(fields[2], &op)
	var value interface{}
	if len(fields) > 3 {
		_ = json.Unmarshal(fields[3], &value)
	}
	return core.StatePatch{Path: pattern, Op: intToOp(op), Value: value}, nil
}

func reverseLookup(m map[string]uint32, hash uint32) string {
	for pattern, h := range m {
		if h == hash {
			return pattern
		}
	}
	return ""
}
