package syncengine

import (
	"fmt"
	"sort"
	"strconv"

	"landsync/core"
)

// Diff walks old and new in parallel by key and returns the patches that
// take old to new, per spec §4.5's algorithm: add for new-only keys,
// remove for old-only keys, recurse into nested objects/arrays that differ
// structurally, and set otherwise. Keys are walked in sorted order so the
// resulting patch list is deterministic across calls on equal inputs —
// required for the byte-identical-broadcast-payload guarantee.
func Diff(old, new core.Snapshot, basePath string) []core.StatePatch {
	var patches []core.StatePatch

	keys := make(map[string]struct{}, len(old)+len(new))
	for k := range old {
		keys[k] = struct{}{}
	}
	for k := range new {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, key := range sorted {
		path := basePath + "/" + key
		oldVal, oldOK := old[key]
		newVal, newOK := new[key]

		switch {
		case !oldOK:
			patches = append(patches, core.StatePatch{Path: path, Op: core.PatchAdd, Value: newVal})
		case !newOK:
			patches = append(patches, core.StatePatch{Path: path, Op: core.PatchRemove})
		case valuesEqual(oldVal, newVal):
			// unchanged, skip
		default:
			oldMap, oldIsMap := asSnapshot(oldVal)
			newMap, newIsMap := asSnapshot(newVal)
			if oldIsMap && newIsMap {
				patches = append(patches, Diff(oldMap, newMap, path)...)
				continue
			}
			oldArr, oldIsArr := asArray(oldVal)
			newArr, newIsArr := asArray(newVal)
			if oldIsArr && newIsArr {
				patches = append(patches, diffArray(oldArr, newArr, path)...)
				continue
			}
			patches = append(patches, core.StatePatch{Path: path, Op: core.PatchSet, Value: newVal})
		}
	}
	return patches
}

// diffArray walks two arrays by index, per spec §4.5 step 5: recurse into
// elements that are themselves objects or arrays, set changed leaves, add
// trailing elements new has that old doesn't, and remove — highest index
// first, so later removes in the same patch list don't shift an
// already-emitted index out from under a sequential applier — trailing
// elements old has that new doesn't.
func diffArray(old, new []interface{}, basePath string) []core.StatePatch {
	var patches []core.StatePatch

	minLen := len(old)
	if len(new) < minLen {
		minLen = len(new)
	}

	for i := 0; i < minLen; i++ {
		oldVal, newVal := old[i], new[i]
		if valuesEqual(oldVal, newVal) {
			continue
		}
		path := fmt.Sprintf("%s/%d", basePath, i)

		oldMap, oldIsMap := asSnapshot(oldVal)
		newMap, newIsMap := asSnapshot(newVal)
		if oldIsMap && newIsMap {
			patches = append(patches, Diff(oldMap, newMap, path)...)
			continue
		}
		oldArr, oldIsArr := asArray(oldVal)
		newArr, newIsArr := asArray(newVal)
		if oldIsArr && newIsArr {
			patches = append(patches, diffArray(oldArr, newArr, path)...)
			continue
		}
		patches = append(patches, core.StatePatch{Path: path, Op: core.PatchSet, Value: newVal})
	}

	for i := minLen; i < len(new); i++ {
		patches = append(patches, core.StatePatch{Path: fmt.Sprintf("%s/%d", basePath, i), Op: core.PatchAdd, Value: new[i]})
	}
	for i := len(old) - 1; i >= minLen; i-- {
		patches = append(patches, core.StatePatch{Path: fmt.Sprintf("%s/%d", basePath, i), Op: core.PatchRemove})
	}

	return patches
}

func asSnapshot(v interface{}) (core.Snapshot, bool) {
	m, ok := v.(core.Snapshot)
	if ok {
		return m, true
	}
	m2, ok := v.(map[string]interface{})
	return core.Snapshot(m2), ok
}

func asArray(v interface{}) ([]interface{}, bool) {
	arr, ok := v.([]interface{})
	return arr, ok
}

// valuesEqual compares two snapshot leaf/array/object values structurally.
// Numeric int/double values with the same numeric value compare equal
// regardless of underlying Go type (spec §4.5 rule 6).
func valuesEqual(a, b interface{}) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}

	aMap, aIsMap := asSnapshot(a)
	bMap, bIsMap := asSnapshot(b)
	if aIsMap && bIsMap {
		if len(aMap) != len(bMap) {
			return false
		}
		for k, av := range aMap {
			bv, ok := bMap[k]
			if !ok || !valuesEqual(av, bv) {
				return false
			}
		}
		return true
	}

	aArr, aIsArr := a.([]interface{})
	bArr, bIsArr := b.([]interface{})
	if aIsArr && bIsArr {
		if len(aArr) != len(bArr) {
			return false
		}
		for i := range aArr {
			if !valuesEqual(aArr[i], bArr[i]) {
				return false
			}
		}
		return true
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// ApplyPatches applies patches to a snapshot in place-equivalent fashion,
// returning the resulting snapshot. Used by round-trip tests to confirm
// Diff(a, b) applied to a yields b.
func ApplyPatches(base core.Snapshot, patches []core.StatePatch) core.Snapshot {
	result := cloneSnapshot(base)
	for _, p := range patches {
		applyOne(result, p)
	}
	return result
}

func cloneSnapshot(s core.Snapshot) core.Snapshot {
	out := make(core.Snapshot, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	if nested, ok := asSnapshot(v); ok {
		return cloneSnapshot(nested)
	}
	if arr, ok := asArray(v); ok {
		out := make([]interface{}, len(arr))
		for i, e := range arr {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

// applyOne applies a single patch to root, descending through nested
// objects and arrays alike. A slice segment may need to be replaced
// wholesale (append/delete changes its header), so descent into a
// container returns the container to write back into its parent —
// applyInMap/applyInArray below handle the map and array cases
// symmetrically.
func applyOne(root core.Snapshot, p core.StatePatch) {
	segments := splitJSONPointer(p.Path)
	if len(segments) == 0 {
		return
	}
	applyInMap(root, segments, p)
}

func applyInMap(m core.Snapshot, segments []string, p core.StatePatch) {
	key := segments[0]
	if len(segments) == 1 {
		switch p.Op {
		case core.PatchRemove:
			delete(m, key)
		default:
			m[key] = p.Value
		}
		return
	}
	child, ok := m[key]
	if !ok {
		if _, isIndex := parseIndex(segments[1]); isIndex {
			child = []interface{}{}
		} else {
			child = core.Snapshot{}
		}
	}
	m[key] = applyInContainer(child, segments[1:], p)
}

func applyInContainer(container interface{}, segments []string, p core.StatePatch) interface{} {
	if idx, ok := parseIndex(segments[0]); ok {
		arr, _ := asArray(container)
		return applyInArray(arr, idx, segments, p)
	}
	m, ok := asSnapshot(container)
	if !ok {
		m = core.Snapshot{}
	}
	applyInMap(m, segments, p)
	return m
}

func applyInArray(arr []interface{}, idx int, segments []string, p core.StatePatch) []interface{} {
	if len(segments) == 1 {
		switch p.Op {
		case core.PatchAdd:
			if idx >= len(arr) {
				arr = append(arr, p.Value)
				return arr
			}
			arr = append(arr, nil)
			copy(arr[idx+1:], arr[idx:])
			arr[idx] = p.Value
		case core.PatchRemove:
			if idx < len(arr) {
				arr = append(arr[:idx], arr[idx+1:]...)
			}
		default:
			for len(arr) <= idx {
				arr = append(arr, nil)
			}
			arr[idx] = p.Value
		}
		return arr
	}
	if idx >= len(arr) {
		return arr
	}
	arr[idx] = applyInContainer(arr[idx], segments[1:], p)
	return arr
}

func parseIndex(seg string) (int, bool) {
	n, err := strconv.Atoi(seg)
	if err != nil {
		return 0, false
	}
	return n, true
}

func splitJSONPointer(path string) []string {
	if path == "" || path == "/" {
		return nil
	}
	var segments []string
	cur := ""
	for _, r := range path[1:] {
		if r == '/' {
			segments = append(segments, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	segments = append(segments, cur)
	return segments
}
