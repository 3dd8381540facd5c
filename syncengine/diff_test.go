package syncengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"landsync/core"
)

func TestDiffAddRemoveSet(t *testing.T) {
	old := core.Snapshot{"hp": 10, "name": "alice"}
	new := core.Snapshot{"hp": 20, "gold": 5}

	patches := Diff(old, new, "")

	byPath := make(map[string]core.StatePatch)
	for _, p := range patches {
		byPath[p.Path] = p
	}

	hp, ok := byPath["/hp"]
	assert.True(t, ok)
	assert.Equal(t, core.PatchSet, hp.Op)
	assert.Equal(t, 20, hp.Value)

	name, ok := byPath["/name"]
	assert.True(t, ok)
	assert.Equal(t, core.PatchRemove, name.Op)

	gold, ok := byPath["/gold"]
	assert.True(t, ok)
	assert.Equal(t, core.PatchAdd, gold.Op)
	assert.Equal(t, 5, gold.Value)
}

func TestDiffUnchangedProducesNoPatch(t *testing.T) {
	old := core.Snapshot{"hp": 10}
	new := core.Snapshot{"hp": 10}
	assert.Empty(t, Diff(old, new, ""))
}

func TestDiffNumericTypesCompareEqual(t *testing.T) {
	old := core.Snapshot{"hp": int(10)}
	new := core.Snapshot{"hp": float64(10)}
	assert.Empty(t, Diff(old, new, ""))
}

func TestDiffRecursesIntoNestedObjects(t *testing.T) {
	old := core.Snapshot{"pos": core.Snapshot{"x": 1, "y": 2}}
	new := core.Snapshot{"pos": core.Snapshot{"x": 1, "y": 3}}

	patches := Diff(old, new, "")
	assert.Equal(t, []core.StatePatch{{Path: "/pos/y", Op: core.PatchSet, Value: 3}}, patches)
}

func TestDiffIsDeterministicAcrossCalls(t *testing.T) {
	old := core.Snapshot{"a": 1, "b": 2, "c": 3}
	new := core.Snapshot{"a": 4, "b": 5, "c": 6}

	first := Diff(old, new, "")
	second := Diff(old, new, "")
	assert.Equal(t, first, second)
}

func TestDiffArraysCompareByValue(t *testing.T) {
	old := core.Snapshot{"items": []interface{}{1, 2}}
	new := core.Snapshot{"items": []interface{}{1, 2}}
	assert.Empty(t, Diff(old, new, ""))

	new2 := core.Snapshot{"items": []interface{}{1, 3}}
	patches := Diff(old, new2, "")
	assert.Equal(t, []core.StatePatch{{Path: "/items/1", Op: core.PatchSet, Value: 3}}, patches)
}

func TestDiffArraysRecurseElementWise(t *testing.T) {
	old := core.Snapshot{"players": []interface{}{
		core.Snapshot{"hp": 10},
		core.Snapshot{"hp": 20},
	}}
	new := core.Snapshot{"players": []interface{}{
		core.Snapshot{"hp": 10},
		core.Snapshot{"hp": 25},
	}}

	patches := Diff(old, new, "")
	assert.Equal(t, []core.StatePatch{{Path: "/players/1/hp", Op: core.PatchSet, Value: 25}}, patches)
}

func TestDiffArraysGrowAndShrink(t *testing.T) {
	old := core.Snapshot{"items": []interface{}{1, 2, 3}}
	grown := core.Snapshot{"items": []interface{}{1, 2, 3, 4}}
	patches := Diff(old, grown, "")
	assert.Equal(t, []core.StatePatch{{Path: "/items/3", Op: core.PatchAdd, Value: 4}}, patches)

	shrunk := core.Snapshot{"items": []interface{}{1}}
	patches = Diff(old, shrunk, "")
	assert.Equal(t, []core.StatePatch{
		{Path: "/items/2", Op: core.PatchRemove},
		{Path: "/items/1", Op: core.PatchRemove},
	}, patches)

	got := ApplyPatches(old, patches)
	assert.Equal(t, shrunk, got)
}

func TestApplyPatchesRoundTrip(t *testing.T) {
	old := core.Snapshot{"hp": 10, "pos": core.Snapshot{"x": 1, "y": 2}, "name": "alice"}
	new := core.Snapshot{"hp": 20, "pos": core.Snapshot{"x": 1, "y": 3}, "gold": 5}

	patches := Diff(old, new, "")
	got := ApplyPatches(old, patches)

	assert.Equal(t, new, got)
}

func TestApplyPatchesDoesNotMutateBase(t *testing.T) {
	old := core.Snapshot{"hp": 10}
	patches := []core.StatePatch{{Path: "/hp", Op: core.PatchSet, Value: 20}}

	got := ApplyPatches(old, patches)

	assert.Equal(t, 10, old["hp"])
	assert.Equal(t, 20, got["hp"])
}

func TestApplyPatchesRemove(t *testing.T) {
	old := core.Snapshot{"hp": 10, "gold": 5}
	patches := []core.StatePatch{{Path: "/gold", Op: core.PatchRemove}}

	got := ApplyPatches(old, patches)
	_, ok := got["gold"]
	assert.False(t, ok)
	assert.Equal(t, 10, got["hp"])
}
