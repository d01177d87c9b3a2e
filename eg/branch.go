package eg

import (
	"github.com/kevinxiao27/reg-walker/cg"
	"github.com/kevinxiao27/reg-walker/ol"
)

// placeholderOffset is the base LV of fabricated placeholder items. Real LVs
// index the op log, so nothing reachable ever collides with this range.
const placeholderOffset = cg.LV(1) << 40

func NewEmptyBranch[T any]() *Branch[T] {
	return &Branch[T]{
		Snapshot: []T{},
		Version:  []cg.LV{},
	}
}

func pushReversed(list []cg.LVRange, r cg.LVRange) []cg.LVRange {
	if len(list) > 0 && list[len(list)-1].Start == r.End {
		list[len(list)-1].Start = r.Start
		return list
	}
	return append(list, r)
}

// MergeChangesIntoBranch brings the branch up to mergeVersion (the log's
// heads when omitted) without re-replaying the history the branch already
// represents. The context is seeded with a placeholder block standing in for
// everything that existed at the walk's common ancestor, then the
// conflicting ops rebuild the CRDT items without touching the snapshot, and
// finally the new ops are applied against the snapshot itself. On error the
// branch is left unchanged.
func MergeChangesIntoBranch[T any](branch *Branch[T], oplog *ol.OpLog[T], mergeVersion ...[]cg.LV) error {
	mv := oplog.CG.Heads
	if len(mergeVersion) > 0 && mergeVersion[0] != nil {
		mv = mergeVersion[0]
	}

	// The visitor walks ranges in descending order; collect reversed, then
	// flip both lists to ascending.
	var conflictOps, newOps []cg.LVRange
	common, err := cg.FindConflicting(oplog.CG, branch.Version, mv, func(r cg.LVRange, flag cg.DiffFlag) {
		if flag == cg.DiffB {
			newOps = pushReversed(newOps, r)
		} else {
			conflictOps = pushReversed(conflictOps, r)
		}
	})
	if err != nil {
		return err
	}
	for i, j := 0, len(conflictOps)-1; i < j; i, j = i+1, j-1 {
		conflictOps[i], conflictOps[j] = conflictOps[j], conflictOps[i]
	}
	for i, j := 0, len(newOps)-1; i < j; i, j = i+1, j-1 {
		newOps[i], newOps[j] = newOps[j], newOps[i]
	}

	ctx := newEditContext(common)

	// Seed the list with placeholders for the document at the common
	// ancestor. Any over-count past the real document length trails at the
	// end, where no position can reach it.
	placeholderLen := cg.LV(0)
	for _, v := range branch.Version {
		if v+1 > placeholderLen {
			placeholderLen = v + 1
		}
	}
	for i := cg.LV(0); i < placeholderLen; i++ {
		item := &Item{
			LV:          placeholderOffset + i,
			CurState:    Inserted,
			EndState:    Inserted,
			OriginLeft:  -1,
			RightParent: -1,
		}
		ctx.Items = append(ctx.Items, item)
		ctx.ItemsByLV[item.LV] = item
	}

	// Replay the ops the branch already represents to repopulate the CRDT
	// items, without mutating the document.
	for _, r := range conflictOps {
		if err := traverseAndApply[T](ctx, oplog, nil, r.Start, r.End); err != nil {
			return err
		}
	}

	// Then apply the genuinely new ops against a staged snapshot.
	snapshot := append([]T(nil), branch.Snapshot...)
	for _, r := range newOps {
		if err := traverseAndApply(ctx, oplog, &snapshot, r.Start, r.End); err != nil {
			return err
		}
	}

	version, err := cg.FindDominators(oplog.CG, append(append([]cg.LV(nil), branch.Version...), mv...))
	if err != nil {
		return err
	}

	branch.Snapshot = snapshot
	branch.Version = version
	return nil
}
