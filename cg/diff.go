package cg

import (
	"fmt"

	"github.com/emirpasic/gods/trees/binaryheap"
)

// DiffFlag tags a version with which side(s) of a diff can see it.
type DiffFlag int

const (
	DiffA DiffFlag = iota
	DiffB
	DiffShared
)

type DiffResult struct {
	AOnly []LVRange
	BOnly []LVRange
}

// newMaxLVHeap returns a heap that pops the largest LV first.
func newMaxLVHeap() *binaryheap.Heap {
	return binaryheap.NewWith(func(a, b interface{}) int {
		return int(b.(LV) - a.(LV))
	})
}

func newMaxIntHeap() *binaryheap.Heap {
	return binaryheap.NewWith(func(a, b interface{}) int {
		return b.(int) - a.(int)
	})
}

// pushReversedRLE collects ranges emitted in descending order, merging
// adjacent ones.
func pushReversedRLE(list []LVRange, start, end LV) []LVRange {
	if len(list) > 0 && list[len(list)-1].Start == end {
		list[len(list)-1].Start = start
		return list
	}
	return append(list, LVRange{Start: start, End: end})
}

func reverseRanges(list []LVRange) []LVRange {
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list
}

// Diff walks backwards from both frontiers and splits their combined history
// into the ranges only reachable from a and only reachable from b. Ranges
// come back ascending.
func Diff(g *CausalGraph, a, b []LV) (DiffResult, error) {
	flags := make(map[LV]DiffFlag)
	queue := newMaxLVHeap()
	numShared := 0

	enq := func(v LV, flag DiffFlag) {
		cur, seen := flags[v]
		if !seen {
			queue.Push(v)
			flags[v] = flag
			if flag == DiffShared {
				numShared++
			}
		} else if flag != cur && cur != DiffShared {
			// Reachable from both sides.
			flags[v] = DiffShared
			numShared++
		}
	}

	for _, v := range a {
		enq(v, DiffA)
	}
	for _, v := range b {
		enq(v, DiffB)
	}

	var aOnly, bOnly []LVRange
	markRun := func(start, endInclusive LV, flag DiffFlag) {
		switch flag {
		case DiffA:
			aOnly = pushReversedRLE(aOnly, start, endInclusive+1)
		case DiffB:
			bOnly = pushReversedRLE(bOnly, start, endInclusive+1)
		}
	}

	for queue.Size() > numShared {
		vi, _ := queue.Pop()
		v := vi.(LV)
		flag := flags[v]
		if flag == DiffShared {
			numShared--
		}

		entry, _, ok := findEntryContaining(g, v)
		if !ok {
			return DiffResult{}, fmt.Errorf("%w: lv %d", ErrUnknownVersion, v)
		}

		// Coalesce any other queued versions inside this entry.
		for {
			pi, more := queue.Peek()
			if !more || pi.(LV) < entry.Version {
				break
			}
			v2i, _ := queue.Pop()
			v2 := v2i.(LV)
			flag2 := flags[v2]
			if flag2 == DiffShared {
				numShared--
			}
			if flag2 != flag {
				markRun(v2+1, v, flag)
				v = v2
				flag = DiffShared
			}
		}

		markRun(entry.Version, v, flag)
		for _, p := range entry.Parents {
			enq(p, flag)
		}
	}

	return DiffResult{
		AOnly: reverseRanges(aOnly),
		BOnly: reverseRanges(bOnly),
	}, nil
}

// VersionContainsLV reports whether target is an ancestor of (or member of)
// the frontier.
func VersionContainsLV(g *CausalGraph, frontier []LV, target LV) (bool, error) {
	if target < 0 || target >= NextLV(g) {
		return false, fmt.Errorf("%w: lv %d", ErrUnknownVersion, target)
	}
	for _, v := range frontier {
		if v == target {
			return true, nil
		}
	}

	queue := newMaxLVHeap()
	for _, v := range frontier {
		if v > target {
			queue.Push(v)
		}
	}

	for !queue.Empty() {
		vi, _ := queue.Pop()
		v := vi.(LV)
		entry, _, ok := findEntryContaining(g, v)
		if !ok {
			return false, fmt.Errorf("%w: lv %d", ErrUnknownVersion, v)
		}
		if entry.Version <= target {
			// target sits earlier in the same run.
			return true, nil
		}
		for {
			pi, more := queue.Peek()
			if !more || pi.(LV) < entry.Version {
				break
			}
			queue.Pop()
		}
		for _, p := range entry.Parents {
			if p == target {
				return true, nil
			}
			if p > target {
				queue.Push(p)
			}
		}
	}
	return false, nil
}

func sortLVsAndDedup(lvs []LV) []LV {
	if len(lvs) <= 1 {
		return lvs
	}
	SortFrontier(lvs)
	j := 1
	for i := 1; i < len(lvs); i++ {
		if lvs[i] != lvs[i-1] {
			lvs[j] = lvs[i]
			j++
		}
	}
	return lvs[:j]
}

// FindDominators filters versions down to the ones that are not an ancestor
// of any other member. The result is the frontier of the input set, sorted
// ascending.
func FindDominators(g *CausalGraph, versions []LV) ([]LV, error) {
	vs := sortLVsAndDedup(append([]LV(nil), versions...))
	for _, v := range vs {
		if v < 0 || v >= NextLV(g) {
			return nil, fmt.Errorf("%w: lv %d", ErrUnknownVersion, v)
		}
	}
	if len(vs) <= 1 {
		return vs, nil
	}
	if len(vs) == 2 {
		dominated, err := VersionContainsLV(g, []LV{vs[1]}, vs[0])
		if err != nil {
			return nil, err
		}
		if dominated {
			return []LV{vs[1]}, nil
		}
		return vs, nil
	}

	// General case. Inputs are encoded as v*2, parent references as v*2+1.
	// An input is a dominator iff it pops before any parent reference
	// reaches its entry.
	queue := newMaxIntHeap()
	for _, v := range vs {
		queue.Push(int(v) * 2)
	}
	inputsRemaining := len(vs)

	var result []LV
	for !queue.Empty() && inputsRemaining > 0 {
		ei, _ := queue.Pop()
		enc := ei.(int)
		v := LV(enc >> 1)
		if enc%2 == 0 {
			result = append(result, v)
			inputsRemaining--
		}

		entry, _, ok := findEntryContaining(g, v)
		if !ok {
			return nil, fmt.Errorf("%w: lv %d", ErrUnknownVersion, v)
		}
		// Discard everything else queued within this entry. Inputs found
		// here are ancestors of v, so they lose.
		for {
			pi, more := queue.Peek()
			if !more || pi.(int) < int(entry.Version)*2 {
				break
			}
			e2i, _ := queue.Pop()
			if e2i.(int)%2 == 0 {
				inputsRemaining--
			}
		}
		for _, p := range entry.Parents {
			queue.Push(int(p)*2 + 1)
		}
	}

	return SortFrontier(result), nil
}

// Relation describes how two versions relate causally.
type Relation string

const (
	RelationEqual      Relation = "eq"
	RelationAncestor   Relation = "ancestor"
	RelationDescendant Relation = "descendant"
	RelationConcurrent Relation = "concurrent"
)

func CompareVersions(g *CausalGraph, a, b LV) (Relation, error) {
	if a == b {
		return RelationEqual, nil
	}
	aContained, err := VersionContainsLV(g, []LV{b}, a)
	if err != nil {
		return "", err
	}
	if aContained {
		return RelationAncestor, nil
	}
	bContained, err := VersionContainsLV(g, []LV{a}, b)
	if err != nil {
		return "", err
	}
	if bContained {
		return RelationDescendant, nil
	}
	return RelationConcurrent, nil
}

// timePoint is a frontier tagged with the side that reached it, sorted
// descending so the heap orders points by their highest version.
type timePoint struct {
	v    []LV
	flag DiffFlag
}

func pointFromVersions(v []LV, flag DiffFlag) timePoint {
	p := append([]LV(nil), v...)
	if len(p) > 1 {
		SortFrontier(p)
		for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
			p[i], p[j] = p[j], p[i]
		}
	}
	return timePoint{v: p, flag: flag}
}

func cmpPoint(a, b timePoint) int {
	for i := 0; i < len(a.v) && i < len(b.v); i++ {
		if a.v[i] != b.v[i] {
			return int(a.v[i] - b.v[i])
		}
	}
	return len(a.v) - len(b.v)
}

// FindConflicting walks backwards from both frontiers at once, visiting the
// ranges reachable from a only, b only, or both (above the common ancestor),
// in descending order. It returns the frontier where the two walks join.
// That frontier is a common ancestor of a and b but not always the greatest
// one: when a fork reaches below the greatest common ancestor, the walks join
// lower down and the ranges in between are visited as DiffShared.
func FindConflicting(g *CausalGraph, a, b []LV, visit func(r LVRange, flag DiffFlag)) ([]LV, error) {
	queue := binaryheap.NewWith(func(x, y interface{}) int {
		return -cmpPoint(x.(timePoint), y.(timePoint))
	})
	queue.Push(pointFromVersions(a, DiffA))
	queue.Push(pointFromVersions(b, DiffB))

	for {
		xi, _ := queue.Pop()
		point := xi.(timePoint)
		v, flag := point.v, point.flag
		if len(v) == 0 {
			// Hit the root before the walks joined.
			return []LV{}, nil
		}

		// Merge queued points at the same frontier.
		for {
			yi, more := queue.Peek()
			if !more {
				break
			}
			peek := yi.(timePoint)
			if !FrontierEq(v, peek.v) {
				break
			}
			if peek.flag != flag {
				flag = DiffShared
			}
			queue.Pop()
		}

		if queue.Empty() {
			out := append([]LV(nil), v...)
			return SortFrontier(out), nil
		}

		if len(v) > 1 {
			// Shatter the merge point: walk the highest version now, requeue
			// the rest.
			queue.Push(timePoint{v: v[1:], flag: flag})
			v = v[:1]
		}

		t := v[0]
		entry, _, ok := findEntryContaining(g, t)
		if !ok {
			return nil, fmt.Errorf("%w: lv %d", ErrUnknownVersion, t)
		}
		txnStart := entry.Version
		end := t + 1

		for {
			if queue.Empty() {
				// Everything left merged inside this entry.
				return []LV{end - 1}, nil
			}
			yi, _ := queue.Peek()
			peek := yi.(timePoint)
			if len(peek.v) >= 1 && peek.v[0] >= txnStart {
				// Another point lands inside this entry; emit the part above
				// it and fold it in.
				queue.Pop()
				peekTop := peek.v[0]
				if peekTop+1 < end {
					visit(LVRange{Start: peekTop + 1, End: end}, flag)
					end = peekTop + 1
				}
				if peek.flag != flag {
					flag = DiffShared
				}
				if len(peek.v) > 1 {
					queue.Push(timePoint{v: peek.v[1:], flag: peek.flag})
				}
			} else {
				visit(LVRange{Start: txnStart, End: end}, flag)
				queue.Push(pointFromVersions(entry.Parents, flag))
				break
			}
		}
	}
}
