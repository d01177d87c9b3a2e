package cg

import (
	"iter"
	"sort"
)

// IterVersionsBetween streams the entries covering [vStart, vEnd) in
// ascending LV order. LV order is a topological order, so consumers can
// apply entries as they arrive. Entries overlapping the boundary are clipped;
// an entry clipped at its front has its predecessor as sole parent.
func IterVersionsBetween(g *CausalGraph, vStart, vEnd LV) iter.Seq[CGEntry] {
	return func(yield func(CGEntry) bool) {
		idx := sort.Search(len(g.Entries), func(i int) bool {
			return g.Entries[i].VEnd > vStart
		})
		for ; idx < len(g.Entries); idx++ {
			entry := g.Entries[idx]
			if entry.Version >= vEnd {
				break
			}
			if entry.Version >= vStart && entry.VEnd <= vEnd {
				if !yield(entry) {
					return
				}
				continue
			}

			start := max(entry.Version, vStart)
			end := min(entry.VEnd, vEnd)
			clipped := CGEntry{
				Version: start,
				VEnd:    end,
				Agent:   entry.Agent,
				Seq:     entry.Seq + int(start-entry.Version),
				Parents: entry.Parents,
			}
			if start > entry.Version {
				clipped.Parents = []LV{start - 1}
			}
			if !yield(clipped) {
				return
			}
		}
	}
}
