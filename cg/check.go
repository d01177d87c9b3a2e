package cg

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// CheckCG validates the graph's structural invariants: gapless RLE-maximal
// entries, per-agent seq coverage, and heads matching the set of versions
// with no descendant. Meant for tests and debugging, not hot paths.
func CheckCG(g *CausalGraph) error {
	expect := LV(0)
	for i := range g.Entries {
		e := g.Entries[i]
		if e.Version != expect {
			return fmt.Errorf("entry %d: starts at %d, want %d (gap or overlap)", i, e.Version, expect)
		}
		if e.VEnd <= e.Version {
			return fmt.Errorf("entry %d: empty run", i)
		}
		for _, p := range e.Parents {
			if p < 0 || p >= e.Version {
				return fmt.Errorf("entry %d: parent %d not strictly earlier", i, p)
			}
		}
		if i > 0 {
			prev := g.Entries[i-1]
			if tryAppendEntry(&prev, e) {
				return fmt.Errorf("entry %d: could merge with predecessor (not RLE-maximal)", i)
			}
		}
		expect = e.VEnd
	}

	covered := 0
	for agent, entries := range g.AgentToVersion {
		lastEnd := -1
		for i, ce := range entries {
			if ce.Seq >= ce.SeqEnd {
				return fmt.Errorf("agent %s entry %d: empty seq run", agent, i)
			}
			if ce.Seq < lastEnd {
				return fmt.Errorf("agent %s entry %d: overlaps predecessor", agent, i)
			}
			lastEnd = ce.SeqEnd
			covered += ce.SeqEnd - ce.Seq

			id, err := LVToID(g, ce.Version)
			if err != nil {
				return fmt.Errorf("agent %s entry %d: %w", agent, i, err)
			}
			if id.Agent != agent || id.Seq != ce.Seq {
				return fmt.Errorf("agent %s entry %d: maps to %s:%d", agent, i, id.Agent, id.Seq)
			}
		}
	}
	if covered != int(NextLV(g)) {
		return fmt.Errorf("client entries cover %d versions, graph has %d", covered, NextLV(g))
	}

	all := mapset.NewSet[LV]()
	ancestors := mapset.NewSet[LV]()
	for _, e := range g.Entries {
		for v := e.Version; v < e.VEnd; v++ {
			all.Add(v)
			if v > e.Version {
				ancestors.Add(v - 1)
			}
		}
		for _, p := range e.Parents {
			ancestors.Add(p)
		}
	}
	wantHeads := SortFrontier(all.Difference(ancestors).ToSlice())
	if !FrontierEq(wantHeads, g.Heads) {
		return fmt.Errorf("heads are %v, want %v", g.Heads, wantHeads)
	}
	return nil
}
