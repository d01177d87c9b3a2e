package eg

import (
	"fmt"

	"github.com/kevinxiao27/reg-walker/cg"
	"github.com/kevinxiao27/reg-walker/ol"
	"github.com/kevinxiao27/reg-walker/util"
)

func newEditContext(curVersion []cg.LV) *EditContext {
	return &EditContext{
		Items:      []*Item{},
		DelTargets: make(map[cg.LV]cg.LV),
		ItemsByLV:  make(map[cg.LV]*Item),
		CurVersion: append([]cg.LV(nil), curVersion...),
	}
}

func targetOf[T any](ctx *EditContext, oplog *ol.OpLog[T], opLV cg.LV) (*Item, error) {
	op := oplog.Ops[opLV]
	target := opLV
	if op.Type == ol.Delete {
		t, ok := ctx.DelTargets[opLV]
		if !ok {
			return nil, fmt.Errorf("%w: delete %d has no recorded target", ErrCorruptState, opLV)
		}
		target = t
	}
	item, ok := ctx.ItemsByLV[target]
	if !ok {
		return nil, fmt.Errorf("%w: no item for lv %d", ErrCorruptState, target)
	}
	return item, nil
}

// retreat1 unwinds one op from the walk's current interpretation.
// INS -> NYI, D-n -> D-(n-1) -> INS.
func retreat1[T any](ctx *EditContext, oplog *ol.OpLog[T], opLV cg.LV) error {
	item, err := targetOf(ctx, oplog, opLV)
	if err != nil {
		return err
	}
	if oplog.Ops[opLV].Type == ol.Insert {
		if item.CurState != Inserted {
			return fmt.Errorf("%w: retreating insert %d in state %d", ErrCorruptState, opLV, item.CurState)
		}
	} else if item.CurState < Deleted {
		return fmt.Errorf("%w: retreating delete %d in state %d", ErrCorruptState, opLV, item.CurState)
	}
	item.CurState--
	return nil
}

// advance1 re-applies one previously-seen op. NYI -> INS -> D-0 -> D-n.
func advance1[T any](ctx *EditContext, oplog *ol.OpLog[T], opLV cg.LV) error {
	item, err := targetOf(ctx, oplog, opLV)
	if err != nil {
		return err
	}
	if oplog.Ops[opLV].Type == ol.Insert {
		if item.CurState != NotYetInserted {
			return fmt.Errorf("%w: advancing insert %d in state %d", ErrCorruptState, opLV, item.CurState)
		}
	} else if item.CurState < Inserted {
		return fmt.Errorf("%w: advancing delete %d in state %d", ErrCorruptState, opLV, item.CurState)
	}
	item.CurState++
	return nil
}

// findByCurPos walks to the targetPos'th currently-inserted item, tracking
// the corresponding end-state position alongside.
func findByCurPos(ctx *EditContext, targetPos int) (idx, endPos int, err error) {
	curPos := 0
	for curPos < targetPos {
		if idx >= len(ctx.Items) {
			return 0, 0, fmt.Errorf("%w: position %d past end of document", ErrCorruptState, targetPos)
		}
		item := ctx.Items[idx]
		if item.CurState == Inserted {
			curPos++
		}
		if item.EndState == Inserted {
			endPos++
		}
		idx++
	}
	return idx, endPos, nil
}

func findItemIdx(ctx *EditContext, lv cg.LV) (int, error) {
	for i, item := range ctx.Items {
		if item.LV == lv {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: item %d not in list", ErrCorruptState, lv)
}

func spliceIn[T any](s *[]T, idx int, v T) {
	var zero T
	*s = append(*s, zero)
	copy((*s)[idx+1:], (*s)[idx:])
	(*s)[idx] = v
}

func spliceOut[T any](s *[]T, idx int) {
	*s = append((*s)[:idx], (*s)[idx+1:]...)
}

// integrate picks the final index for newItem among concurrent siblings
// using the Fugue/YjsMod rule: the committed cursor only moves while not in
// scanning mode, and ties between items sharing both origins break on
// (agent, seq) order.
func integrate[T any](ctx *EditContext, oplog *ol.OpLog[T], newItem *Item, idx, endPos int, snapshot *[]T, content T) error {
	scanning := false
	scanIdx := idx
	scanEndPos := endPos

	leftIdx := idx - 1
	rightIdx := len(ctx.Items)
	if newItem.RightParent != -1 {
		i, err := findItemIdx(ctx, newItem.RightParent)
		if err != nil {
			return err
		}
		rightIdx = i
	}

	for scanIdx < len(ctx.Items) {
		other := ctx.Items[scanIdx]
		if other.CurState != NotYetInserted {
			break
		}
		if other.LV == newItem.RightParent {
			return fmt.Errorf("%w: reached right parent while integrating %d", ErrCorruptState, newItem.LV)
		}

		oLeftIdx := -1
		if other.OriginLeft != -1 {
			i, err := findItemIdx(ctx, other.OriginLeft)
			if err != nil {
				return err
			}
			oLeftIdx = i
		}
		oRightIdx := len(ctx.Items)
		if other.RightParent != -1 {
			i, err := findItemIdx(ctx, other.RightParent)
			if err != nil {
				return err
			}
			oRightIdx = i
		}

		if oLeftIdx < leftIdx {
			break
		} else if oLeftIdx == leftIdx {
			if oRightIdx < rightIdx {
				scanning = true
			} else if oRightIdx == rightIdx {
				cmp, err := cg.LVCompare(oplog.CG, newItem.LV, other.LV)
				if err != nil {
					return err
				}
				if cmp < 0 {
					break
				}
				scanning = false
			} else {
				scanning = false
			}
		}

		scanEndPos += util.Choose(other.EndState == Inserted, 1, 0)
		scanIdx++

		if !scanning {
			idx = scanIdx
			endPos = scanEndPos
		}
	}

	spliceIn(&ctx.Items, idx, newItem)
	if snapshot != nil {
		spliceIn(snapshot, endPos, content)
	}
	return nil
}

// apply1 applies one fresh op at the walk's current version, mutating the
// item list and (when non-nil) the snapshot.
func apply1[T any](ctx *EditContext, oplog *ol.OpLog[T], snapshot *[]T, opLV cg.LV) error {
	op := oplog.Ops[opLV]

	if op.Type == ol.Delete {
		idx, endPos, err := findByCurPos(ctx, op.Pos)
		if err != nil {
			return err
		}
		for {
			if idx >= len(ctx.Items) {
				return fmt.Errorf("%w: delete at %d past end of document", ErrCorruptState, op.Pos)
			}
			if ctx.Items[idx].CurState == Inserted {
				break
			}
			if ctx.Items[idx].EndState == Inserted {
				endPos++
			}
			idx++
		}

		item := ctx.Items[idx]
		if item.EndState == Inserted {
			if snapshot != nil {
				spliceOut(snapshot, endPos)
			}
			item.EndState = Deleted
		}
		item.CurState = Deleted
		ctx.DelTargets[opLV] = item.LV
		return nil
	}

	// Insert.
	idx, endPos, err := findByCurPos(ctx, op.Pos)
	if err != nil {
		return err
	}

	originLeft := cg.LV(-1)
	if idx > 0 {
		originLeft = ctx.Items[idx-1].LV
	}
	rightParent := cg.LV(-1)
	for i := idx; i < len(ctx.Items); i++ {
		next := ctx.Items[i]
		if next.CurState != NotYetInserted {
			// First item the current version can see to our right.
			if next.OriginLeft == originLeft {
				rightParent = next.LV
			}
			break
		}
	}

	newItem := &Item{
		LV:          opLV,
		CurState:    Inserted,
		EndState:    Inserted,
		OriginLeft:  originLeft,
		RightParent: rightParent,
	}
	ctx.ItemsByLV[opLV] = newItem
	return integrate(ctx, oplog, newItem, idx, endPos, snapshot, op.Content)
}

// traverseAndApply replays the ops in [vStart, vEnd) on top of the context,
// retreating and advancing previously-seen ops so that each entry is applied
// at exactly its parent version.
func traverseAndApply[T any](ctx *EditContext, oplog *ol.OpLog[T], snapshot *[]T, vStart, vEnd cg.LV) error {
	for entry := range cg.IterVersionsBetween(oplog.CG, vStart, vEnd) {
		d, err := cg.Diff(oplog.CG, ctx.CurVersion, entry.Parents)
		if err != nil {
			return err
		}
		for _, r := range d.AOnly {
			for v := r.Start; v < r.End; v++ {
				if err := retreat1(ctx, oplog, v); err != nil {
					return err
				}
			}
		}
		for _, r := range d.BOnly {
			for v := r.Start; v < r.End; v++ {
				if err := advance1(ctx, oplog, v); err != nil {
					return err
				}
			}
		}
		for v := entry.Version; v < entry.VEnd; v++ {
			if err := apply1(ctx, oplog, snapshot, v); err != nil {
				return err
			}
		}
		ctx.CurVersion = []cg.LV{entry.VEnd - 1}
	}
	return nil
}

// Checkout replays the whole log and returns a fresh branch at the log's
// heads.
func Checkout[T any](oplog *ol.OpLog[T]) (*Branch[T], error) {
	ctx := newEditContext(nil)
	snapshot := make([]T, 0)
	if err := traverseAndApply(ctx, oplog, &snapshot, 0, cg.NextLV(oplog.CG)); err != nil {
		return nil, err
	}
	return &Branch[T]{
		Snapshot: snapshot,
		Version:  append([]cg.LV(nil), oplog.CG.Heads...),
	}, nil
}

// CheckoutSimple is Checkout without the version bookkeeping.
func CheckoutSimple[T any](oplog *ol.OpLog[T]) ([]T, error) {
	branch, err := Checkout(oplog)
	if err != nil {
		return nil, err
	}
	return branch.Snapshot, nil
}

// CheckoutAt replays only the history visible from the given frontier.
func CheckoutAt[T any](oplog *ol.OpLog[T], version []cg.LV) (*Branch[T], error) {
	branch := NewEmptyBranch[T]()
	if err := MergeChangesIntoBranch(branch, oplog, version); err != nil {
		return nil, err
	}
	return branch, nil
}
