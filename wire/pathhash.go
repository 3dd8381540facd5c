package wire

import (
	"strings"
	"sync"
)

// decomposePath tries to express path (a JSON pointer, e.g.
// "/players/alice/position/x") as a registered static pattern
// ("players.*.position.x") plus the ordered list of dynamic segment
// values it abstracted away ("alice").
//
// The spec (§4.1) only says a pattern is "looked up in the supplied
// pathHashes map"; it does not prescribe how a concrete path is reduced
// to a pattern. This implementation tries, in order of increasing wildcard
// count, every way of replacing a subset of path segments with "*" and
// returns the first that matches an entry in patterns — so the most
// specific (fewest-wildcard) registered pattern always wins. Paths deeper
// than maxDecomposeSegments skip the search and fall back to the raw path,
// since the subset search is exponential in segment count.
const maxDecomposeSegments = 8

func decomposePath(path string, patterns map[string]uint32) (pattern string, hash uint32, dynamicKeys []string, found bool) {
	segs := splitPointer(path)
	if len(patterns) == 0 || len(segs) == 0 || len(segs) > maxDecomposeSegments {
		return "", 0, nil, false
	}

	n := len(segs)
	for popcount := 0; popcount <= n; popcount++ {
		for mask := 0; mask < (1 << n); mask++ {
			if bitsSet(mask) != popcount {
				continue
			}
			candidate := make([]string, n)
			var keys []string
			for i := 0; i < n; i++ {
				if mask&(1<<i) != 0 {
					candidate[i] = "*"
					keys = append(keys, segs[i])
				} else {
					candidate[i] = segs[i]
				}
			}
			p := strings.Join(candidate, ".")
			if h, ok := patterns[p]; ok {
				return p, h, keys, true
			}
		}
	}
	return "", 0, nil, false
}

func bitsSet(mask int) int {
	count := 0
	for mask != 0 {
		count += mask & 1
		mask >>= 1
	}
	return count
}

func splitPointer(path string) []string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// dynKeyEntry is the per-key wire encoding: either just a slot (subsequent
// use) or [slot, key] (first use), modeled as a tagged union since JSON
// and MessagePack both need to express "int or 2-tuple".
type dynKeyEntry struct {
	Slot       int
	Key        string
	FirstUse   bool
}

// dynamicKeyDictionary assigns stable integer slots to dynamic path
// segment values, scoped per (land, recipient) (spec §4.1). A firstSync
// forces every key back into "first use" mode via Reset.
type dynamicKeyDictionary struct {
	mu     sync.Mutex
	scopes map[Scope]*scopeDict
}

type scopeDict struct {
	slots map[string]int
	next  int
}

func newDynamicKeyDictionary() *dynamicKeyDictionary {
	return &dynamicKeyDictionary{scopes: make(map[Scope]*scopeDict)}
}

// Reset clears scope's dictionary so every key is taught again from slot 0.
func (d *dynamicKeyDictionary) Reset(scope Scope) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.scopes, scope)
}

// Encode returns the wire entries for keys within scope, allocating and
// recording slots for any key seen for the first time in this scope.
func (d *dynamicKeyDictionary) Encode(scope Scope, keys []string) []dynKeyEntry {
	if len(keys) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	sd, ok := d.scopes[scope]
	if !ok {
		sd = &scopeDict{slots: make(map[string]int)}
		d.scopes[scope] = sd
	}

	entries := make([]dynKeyEntry, len(keys))
	for i, key := range keys {
		slot, known := sd.slots[key]
		if !known {
			slot = sd.next
			sd.next++
			sd.slots[key] = slot
			entries[i] = dynKeyEntry{Slot: slot, Key: key, FirstUse: true}
		} else {
			entries[i] = dynKeyEntry{Slot: slot, FirstUse: false}
		}
	}
	return entries
}
