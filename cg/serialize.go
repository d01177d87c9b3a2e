package cg

import (
	"fmt"

	"github.com/kevinxiao27/reg-walker/util"
)

// SerializeDiff flattens the given LV ranges into wire records. Parents are
// expressed as IDs; within one diff every parent either precedes its record
// or is assumed known to the receiver.
func SerializeDiff(g *CausalGraph, ranges []LVRange) ([]PartialSerializedEntry, error) {
	var out []PartialSerializedEntry
	for _, r := range ranges {
		start := r.Start
		for start < r.End {
			entry, offset, ok := findEntryContaining(g, start)
			if !ok {
				return nil, fmt.Errorf("%w: lv %d", ErrUnknownVersion, start)
			}
			localEnd := min(r.End, entry.VEnd)
			length := int(localEnd - start)

			var parents []ID
			if offset == 0 {
				ids, err := LVToIDList(g, entry.Parents)
				if err != nil {
					return nil, err
				}
				parents = ids
			} else {
				parents = []ID{{Agent: entry.Agent, Seq: entry.Seq + offset - 1}}
			}

			out = append(out, PartialSerializedEntry{
				Agent:   entry.Agent,
				Seq:     entry.Seq + offset,
				Len:     length,
				Parents: parents,
			})
			start = localEnd
		}
	}
	return out, nil
}

// MergePartialVersions applies wire records in order. Records already known
// are deduplicated (or trimmed to their new suffix). Returns the LV range
// actually inserted.
func MergePartialVersions(g *CausalGraph, entries []PartialSerializedEntry) (LVRange, error) {
	start := NextLV(g)
	for _, e := range entries {
		if _, err := AddRaw(g, ID{Agent: e.Agent, Seq: e.Seq}, e.Len, e.Parents); err != nil {
			return LVRange{}, err
		}
	}
	return LVRange{Start: start, End: NextLV(g)}, nil
}

// SummarizeVersion reports every (agent, seq) span this graph knows about.
func SummarizeVersion(g *CausalGraph) VersionSummary {
	summary := make(VersionSummary)
	for agent, entries := range g.AgentToVersion {
		var ranges [][2]int
		for _, ce := range entries {
			ranges = util.PushRLE(ranges, [2]int{ce.Seq, ce.SeqEnd}, func(a *[2]int, b [2]int) bool {
				if b[0] == a[1] {
					a[1] = b[1]
					return true
				}
				return false
			})
		}
		summary[agent] = ranges
	}
	return summary
}

// IntersectWithSummary splits a remote peer's summary against this graph.
// It returns the frontier of the versions both sides know (in this graph's
// LV space) and the summary remainder this graph has never seen.
func IntersectWithSummary(g *CausalGraph, summary VersionSummary) ([]LV, VersionSummary, error) {
	var versions []LV
	remainder := make(VersionSummary)

	for agent, ranges := range summary {
		clientEntries := g.AgentToVersion[agent]
		for _, r := range ranges {
			startSeq, endSeq := r[0], r[1]
			for startSeq < endSeq {
				ce, offset, ok := findClientEntry(g, agent, startSeq)
				if !ok {
					gapEnd := endSeq
					for _, next := range clientEntries {
						if next.Seq > startSeq {
							gapEnd = min(gapEnd, next.Seq)
							break
						}
					}
					remainder[agent] = append(remainder[agent], [2]int{startSeq, gapEnd})
					startSeq = gapEnd
					continue
				}

				knownEnd := min(endSeq, ce.SeqEnd)
				vStart := ce.Version + LV(offset)
				vEnd := vStart + LV(knownEnd-startSeq)
				// Record the tip of every causally-linear run in the span.
				for v := vStart; v < vEnd; {
					entry, _, found := findEntryContaining(g, v)
					if !found {
						return nil, nil, fmt.Errorf("%w: lv %d", ErrUnknownVersion, v)
					}
					runEnd := min(vEnd, entry.VEnd)
					versions = append(versions, runEnd-1)
					v = runEnd
				}
				startSeq = knownEnd
			}
		}
	}

	common, err := FindDominators(g, versions)
	if err != nil {
		return nil, nil, err
	}
	return common, remainder, nil
}
