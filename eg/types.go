package eg

import (
	"errors"

	"github.com/kevinxiao27/reg-walker/cg"
)

// ItemState counts an item's delete multiplicity at the walk's current
// position. The width contribution of an item is 1 iff its state is
// Inserted, which keeps cursor arithmetic trivial.
type ItemState int

const (
	NotYetInserted ItemState = -1
	Inserted       ItemState = 0
	// Deleted and above: deleted, with concurrent-delete multiplicity.
	Deleted ItemState = 1
)

// Item is one element of the CRDT list. Neighbors are referenced by LV,
// never by pointer, so the list stays a flat arena with integer
// back-references.
type Item struct {
	LV cg.LV

	// CurState is the item's state at the walk's current version.
	CurState ItemState
	// EndState is the item's state at the checkout's target version.
	EndState ItemState

	// OriginLeft is the item immediately left of this one when it was
	// inserted, -1 for the document start.
	OriginLeft cg.LV
	// RightParent is the first visible item to the right at insert time, but
	// only when that item shares our OriginLeft; -1 otherwise.
	RightParent cg.LV
}

// EditContext is the auxiliary CRDT state threaded through a replay.
type EditContext struct {
	// Items in document order.
	Items []*Item
	// DelTargets maps each delete op to the item it deleted.
	DelTargets map[cg.LV]cg.LV
	// ItemsByLV maps an insert op (or placeholder LV) to its item.
	ItemsByLV map[cg.LV]*Item
	// CurVersion is the frontier the items' CurState is interpreted at.
	CurVersion []cg.LV
}

// Branch is a materialized snapshot at some version. It does not own any
// operations.
type Branch[T any] struct {
	Snapshot []T
	Version  []cg.LV
}

// ErrCorruptState reports a replay invariant violation. Not recoverable:
// callers must treat it as a data-integrity failure.
var ErrCorruptState = errors.New("corrupt state")
