package core

// Snapshot is the typed value tree that feeds the diff algorithm (spec
// §3). Its leaves are nil, bool, int64, float64, string, []interface{}, or
// map[string]interface{} — the same shape `encoding/json` decodes into,
// deliberately, since every wire codec ultimately reads and writes JSON-
// compatible values even when the bytes on the wire are MessagePack.
type Snapshot = map[string]interface{}

// PatchOp is the operation a StatePatch performs at its Path.
type PatchOp int

const (
	// PatchSet replaces (or creates) the value at Path.
	PatchSet PatchOp = 1
	// PatchRemove deletes the value at Path.
	PatchRemove PatchOp = 2
	// PatchAdd inserts a new value at Path (array append / new object key).
	PatchAdd PatchOp = 3
)

// String renders the patch op the way it appears in JSON frames.
func (p PatchOp) String() string {
	switch p {
	case PatchSet:
		return "set"
	case PatchRemove:
		return "remove"
	case PatchAdd:
		return "add"
	default:
		return "unknown"
	}
}

// StatePatch is one field-level change: a JSON-pointer Path (starting with
// "/"), an Op, and — for set/add — a Value.
type StatePatch struct {
	Path  string
	Op    PatchOp
	Value interface{}
}

// UpdateKind distinguishes the three shapes a StateUpdate may take (spec
// §3).
type UpdateKind int

const (
	UpdateNoChange UpdateKind = 0
	UpdateFirstSync UpdateKind = 1
	UpdateDiff      UpdateKind = 2
)

// StateUpdate is the outcome of a sync computation for one recipient: no
// patches at all (NoChange), the player's first full state (FirstSync), or
// an incremental diff (Diff). Patches is nil for NoChange.
type StateUpdate struct {
	Kind    UpdateKind
	Patches []StatePatch
}

// IsEmpty reports whether this update carries no patches (NoChange, or a
// Diff/FirstSync that happened to compute to zero patches).
func (u StateUpdate) IsEmpty() bool {
	return len(u.Patches) == 0
}
