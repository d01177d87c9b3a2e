package ol

import (
	"fmt"

	"github.com/kevinxiao27/reg-walker/cg"
)

func NewOpLog[T any]() *OpLog[T] {
	return &OpLog[T]{CG: cg.NewCausalGraph()}
}

func appendLocalOp[T any](oplog *OpLog[T], agent string, op Op[T]) error {
	seq := cg.NextSeqForAgent(oplog.CG, agent)
	parents := append([]cg.LV(nil), oplog.CG.Heads...)

	r, err := cg.Add(oplog.CG, agent, seq, seq+1, parents)
	if err != nil {
		return err
	}
	if r.End == r.Start {
		return fmt.Errorf("%w: agent %s seq %d already assigned", cg.ErrInvalidSeq, agent, seq)
	}

	oplog.Ops = append(oplog.Ops, op)
	return nil
}

// LocalInsert appends one insert op per element, starting at pos.
func LocalInsert[T any](oplog *OpLog[T], agent string, pos int, content ...T) error {
	if len(content) == 0 {
		return fmt.Errorf("%w: empty insert", cg.ErrInvalidLength)
	}
	for _, c := range content {
		if err := appendLocalOp(oplog, agent, Op[T]{Type: Insert, Pos: pos, Content: c}); err != nil {
			return err
		}
		pos++
	}
	return nil
}

// LocalDelete appends delLen single-position delete ops at pos.
func LocalDelete[T any](oplog *OpLog[T], agent string, pos int, delLen int) error {
	if delLen <= 0 {
		return fmt.Errorf("%w: delete of %d", cg.ErrInvalidLength, delLen)
	}
	for i := delLen; i > 0; i-- {
		// pos doesn't move: succeeding characters slide left as each one goes.
		if err := appendLocalOp(oplog, agent, Op[T]{Type: Delete, Pos: pos}); err != nil {
			return err
		}
	}
	return nil
}

// PushRemoteOp ingests one op received from a peer. Returns 1 if the op was
// new, 0 if it was already known. All parents must already be present.
func PushRemoteOp[T any](oplog *OpLog[T], id cg.ID, parentIDs []cg.ID, op Op[T]) (int, error) {
	parents := make([]cg.LV, 0, len(parentIDs))
	for _, pid := range parentIDs {
		v, ok := cg.TryIDToLV(oplog.CG, pid.Agent, pid.Seq)
		if !ok {
			return 0, fmt.Errorf("%w: %s:%d", cg.ErrMissingParents, pid.Agent, pid.Seq)
		}
		parents = append(parents, v)
	}

	r, err := cg.Add(oplog.CG, id.Agent, id.Seq, id.Seq+1, parents)
	if err != nil {
		return 0, err
	}
	accepted := int(r.End - r.Start)
	if accepted > 0 {
		oplog.Ops = append(oplog.Ops, op)
	}
	return accepted, nil
}

// GetLatestVersion returns the oplog's frontier as portable IDs.
func GetLatestVersion[T any](oplog *OpLog[T]) ([]cg.ID, error) {
	return cg.LVToIDList(oplog.CG, oplog.CG.Heads)
}

// MergeInto copies into dest every op src knows that dest doesn't.
// The flow mirrors a network sync: summarize dest, intersect on src to find
// the common frontier, diff src against it, ship the serialized graph diff
// and the matching ops. Nothing in dest changes until the whole diff has
// been staged and validated.
func MergeInto[T any](dest, src *OpLog[T]) error {
	summary := cg.SummarizeVersion(dest.CG)
	common, _, err := cg.IntersectWithSummary(src.CG, summary)
	if err != nil {
		return err
	}

	d, err := cg.Diff(src.CG, common, src.CG.Heads)
	if err != nil {
		return err
	}
	ranges := d.BOnly

	cgDiff, err := cg.SerializeDiff(src.CG, ranges)
	if err != nil {
		return err
	}

	// Validate the diff is self-contained w.r.t. dest: each record's parents
	// must resolve in dest or appear earlier in this same diff.
	seen := make(map[cg.ID]struct{})
	for _, e := range cgDiff {
		for _, p := range e.Parents {
			if _, ok := seen[p]; ok {
				continue
			}
			if _, ok := cg.TryIDToLV(dest.CG, p.Agent, p.Seq); !ok {
				return fmt.Errorf("%w: %s:%d", cg.ErrMissingParents, p.Agent, p.Seq)
			}
		}
		for i := 0; i < e.Len; i++ {
			seen[cg.ID{Agent: e.Agent, Seq: e.Seq + i}] = struct{}{}
		}
	}

	ops := make([]Op[T], 0)
	for _, r := range ranges {
		for v := r.Start; v < r.End; v++ {
			ops = append(ops, src.Ops[v])
		}
	}

	if _, err := cg.MergePartialVersions(dest.CG, cgDiff); err != nil {
		return err
	}
	dest.Ops = append(dest.Ops, ops...)
	return nil
}
