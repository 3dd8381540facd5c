package wire

import (
	"encoding/json"
	"fmt"

	"landsync/core"
)

type jsonPatch struct {
	Path  string      `json:"path"`
	Op    string      `json:"op"`
	Value interface{} `json:"value,omitempty"`
}

type jsonStateFrame struct {
	Kind    core.UpdateKind `json:"kind"`
	Patches []jsonPatch     `json:"patches,omitempty"`
}

// JSONStateUpdateCodec is the JSON-object state-update encoding: no
// opcode compaction, no path-hash. Stateless and thread-safe.
type JSONStateUpdateCodec struct{}

func NewJSONStateUpdateCodec() *JSONStateUpdateCodec { return &JSONStateUpdateCodec{} }

func (c *JSONStateUpdateCodec) Name() string        { return "json_object" }
func (c *JSONStateUpdateCodec) ThreadSafe() bool     { return true }
func (c *JSONStateUpdateCodec) SupportsMerge() bool  { return false }
func (c *JSONStateUpdateCodec) ResetScope(Scope)     {}

func (c *JSONStateUpdateCodec) Encode(update core.StateUpdate, _ Scope) ([]byte, error) {
	frame := jsonStateFrame{Kind: update.Kind}
	for _, p := range update.Patches {
		frame.Patches = append(frame.Patches, jsonPatch{Path: p.Path, Op: p.Op.String(), Value: p.Value})
	}
	return json.Marshal(frame)
}

func (c *JSONStateUpdateCodec) Decode(raw []byte) (core.StateUpdate, error) {
	var frame jsonStateFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return core.StateUpdate{}, fmt.Errorf("%w", core.NewGatewayError(core.CodeInvalidJSON, "malformed state-update frame", nil))
	}
	update := core.StateUpdate{Kind: frame.Kind}
	for _, p := range frame.Patches {
		update.Patches = append(update.Patches, core.StatePatch{Path: p.Path, Op: parseOp(p.Op), Value: p.Value})
	}
	return update, nil
}

func parseOp(s string) core.PatchOp {
	switch s {
	case "set":
		return core.PatchSet
	case "remove":
		return core.PatchRemove
	case "add":
		return core.PatchAdd
	default:
		return core.PatchSet
	}
}

func opToInt(op core.PatchOp) int { return int(op) }

func intToOp(i int) core.PatchOp { return core.PatchOp(i) }
