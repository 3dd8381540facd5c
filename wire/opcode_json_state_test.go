package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landsync/core"
)

func TestOpcodeJSONStateUpdateCodecPlainRoundTrip(t *testing.T) {
	c := NewOpcodeJSONStateUpdateCodec(nil)
	update := core.StateUpdate{
		Kind: core.UpdateDiff,
		Patches: []core.StatePatch{
			{Path: "/players/alice/hp", Op: core.PatchSet, Value: float64(20)},
			{Path: "/players/alice/gold", Op: core.PatchRemove},
		},
	}

	raw, err := c.Encode(update, Scope{Land: "arena", Recipient: BroadcastScope})
	require.NoError(t, err)

	out, err := c.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, update, out)
}

func TestOpcodeJSONStateUpdateCodecNameReflectsPathHashes(t *testing.T) {
	plain := NewOpcodeJSONStateUpdateCodec(nil)
	assert.Equal(t, "opcode_json", plain.Name())

	withHashes := NewOpcodeJSONStateUpdateCodec(map[string]uint32{"players.*.hp": 1})
	assert.Equal(t, "opcode_json_pathhash", withHashes.Name())
}

func TestOpcodeJSONStateUpdateCodecPathHashCompression(t *testing.T) {
	patterns := map[string]uint32{"players.*.hp": 42}
	c := NewOpcodeJSONStateUpdateCodec(patterns)
	scope := Scope{Land: "arena", Recipient: BroadcastScope}

	update := core.StateUpdate{
		Kind: core.UpdateDiff,
		Patches: []core.StatePatch{
			{Path: "/players/alice/hp", Op: core.PatchSet, Value: float64(20)},
		},
	}

	raw, err := c.Encode(update, scope)
	require.NoError(t, err)

	out, err := c.Decode(raw)
	require.NoError(t, err)
	require.Len(t, out.Patches, 1)
	assert.Equal(t, "players.*.hp", out.Patches[0].Path)
	assert.Equal(t, core.PatchSet, out.Patches[0].Op)
	assert.Equal(t, float64(20), out.Patches[0].Value)
}

func TestOpcodeJSONStateUpdateCodecUnmatchedPathFallsBackToRawPath(t *testing.T) {
	patterns := map[string]uint32{"players.*.hp": 42}
	c := NewOpcodeJSONStateUpdateCodec(patterns)
	scope := Scope{Land: "arena", Recipient: BroadcastScope}

	update := core.StateUpdate{
		Kind:    core.UpdateDiff,
		Patches: []core.StatePatch{{Path: "/room/name", Op: core.PatchSet, Value: "arena-1"}},
	}

	raw, err := c.Encode(update, scope)
	require.NoError(t, err)

	out, err := c.Decode(raw)
	require.NoError(t, err)
	require.Len(t, out.Patches, 1)
	assert.Equal(t, "/room/name", out.Patches[0].Path)
}

func TestOpcodeJSONStateUpdateCodecFirstSyncResetsScope(t *testing.T) {
	patterns := map[string]uint32{"players.*.hp": 42}
	c := NewOpcodeJSONStateUpdateCodec(patterns)
	scope := Scope{Land: "arena", Recipient: "p1"}

	// teach a key once
	_, err := c.Encode(core.StateUpdate{
		Kind:    core.UpdateDiff,
		Patches: []core.StatePatch{{Path: "/players/alice/hp", Op: core.PatchSet, Value: float64(10)}},
	}, scope)
	require.NoError(t, err)

	// firstSync resets the dictionary; the key must be taught again
	raw, err := c.Encode(core.StateUpdate{
		Kind:    core.UpdateFirstSync,
		Patches: []core.StatePatch{{Path: "/players/alice/hp", Op: core.PatchSet, Value: float64(10)}},
	}, scope)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "alice")
}

func TestOpcodeJSONStateUpdateCodecDecodeMalformed(t *testing.T) {
	c := NewOpcodeJSONStateUpdateCodec(nil)
	_, err := c.Decode([]byte("not json"))
	assert.Error(t, err)
}
