package cg

import (
	"fmt"
	"sort"

	"github.com/kevinxiao27/reg-walker/util"
)

func NewCausalGraph() *CausalGraph {
	return &CausalGraph{
		AgentToVersion: make(map[string][]ClientEntry),
	}
}

// NextLV returns the next local version to be assigned.
func NextLV(g *CausalGraph) LV {
	if len(g.Entries) == 0 {
		return 0
	}
	return g.Entries[len(g.Entries)-1].VEnd
}

// NextSeqForAgent returns the smallest seq not yet assigned for agent.
func NextSeqForAgent(g *CausalGraph, agent string) int {
	entries := g.AgentToVersion[agent]
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].SeqEnd
}

func SortFrontier(frontier []LV) []LV {
	sort.Slice(frontier, func(i, j int) bool {
		return frontier[i] < frontier[j]
	})
	return frontier
}

func FrontierEq(a, b []LV) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// AdvanceFrontier removes parents from the frontier, appends lv and resorts.
func AdvanceFrontier(frontier []LV, lv LV, parents []LV) []LV {
	f := util.Filter(frontier, func(v LV) bool {
		return !util.Reduce(parents, func(p LV, exists bool) bool {
			return v == p || exists
		}, false)
	})

	f = append(f, lv)
	return SortFrontier(f)
}

// findEntryContaining locates the entry holding v.
func findEntryContaining(g *CausalGraph, v LV) (*CGEntry, int, bool) {
	if v < 0 || v >= NextLV(g) {
		return nil, -1, false
	}
	idx := sort.Search(len(g.Entries), func(i int) bool {
		return g.Entries[i].VEnd > v
	})
	entry := &g.Entries[idx]
	return entry, int(v - entry.Version), true
}

// findClientEntry locates the agent's run containing seq.
func findClientEntry(g *CausalGraph, agent string, seq int) (*ClientEntry, int, bool) {
	entries := g.AgentToVersion[agent]
	idx := sort.Search(len(entries), func(i int) bool {
		return entries[i].SeqEnd > seq
	})
	if idx == len(entries) || entries[idx].Seq > seq {
		return nil, -1, false
	}
	return &entries[idx], seq - entries[idx].Seq, true
}

// parentsOf returns the parent frontier of a single version. Interior
// versions of a run have their predecessor as sole parent.
func parentsOf(g *CausalGraph, v LV) ([]LV, error) {
	entry, offset, ok := findEntryContaining(g, v)
	if !ok {
		return nil, fmt.Errorf("%w: lv %d", ErrUnknownVersion, v)
	}
	if offset == 0 {
		return entry.Parents, nil
	}
	return []LV{v - 1}, nil
}

// LVToID maps a local version back to its (agent, seq) identity.
func LVToID(g *CausalGraph, v LV) (ID, error) {
	entry, offset, ok := findEntryContaining(g, v)
	if !ok {
		return ID{}, fmt.Errorf("%w: lv %d", ErrUnknownVersion, v)
	}
	return ID{Agent: entry.Agent, Seq: entry.Seq + offset}, nil
}

func LVToIDList(g *CausalGraph, lvs []LV) ([]ID, error) {
	ids := make([]ID, 0, len(lvs))
	for _, v := range lvs {
		id, err := LVToID(g, v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// TryIDToLV maps (agent, seq) to its local version, reporting whether the id
// is known.
func TryIDToLV(g *CausalGraph, agent string, seq int) (LV, bool) {
	entry, offset, ok := findClientEntry(g, agent, seq)
	if !ok {
		return -1, false
	}
	return entry.Version + LV(offset), true
}

func IDToLV(g *CausalGraph, agent string, seq int) (LV, error) {
	v, ok := TryIDToLV(g, agent, seq)
	if !ok {
		return -1, fmt.Errorf("%w: %s:%d", ErrUnknownID, agent, seq)
	}
	return v, nil
}

// LVCompare orders two versions by their (agent, seq) identity. Used as the
// deterministic tie-break for concurrent inserts.
func LVCompare(g *CausalGraph, a, b LV) (int, error) {
	idA, err := LVToID(g, a)
	if err != nil {
		return 0, err
	}
	idB, err := LVToID(g, b)
	if err != nil {
		return 0, err
	}
	if idA.Agent != idB.Agent {
		if idA.Agent < idB.Agent {
			return -1, nil
		}
		return 1, nil
	}
	return idA.Seq - idB.Seq, nil
}

func tryAppendEntry(a *CGEntry, b CGEntry) bool {
	canAppend := b.Version == a.VEnd &&
		a.Agent == b.Agent &&
		a.Seq+a.Len() == b.Seq &&
		len(b.Parents) == 1 && b.Parents[0] == a.VEnd-1
	if canAppend {
		a.VEnd = b.VEnd
	}
	return canAppend
}

func tryAppendClientEntry(a *ClientEntry, b ClientEntry) bool {
	canAppend := b.Seq == a.SeqEnd &&
		b.Version == a.Version+LV(a.SeqEnd-a.Seq)
	if canAppend {
		a.SeqEnd = b.SeqEnd
	}
	return canAppend
}

// Add records seqs [seqStart, seqEnd) for agent with the given parents.
// Spans already present are trimmed away; a fully known span is a no-op.
// Returns the LV range actually inserted.
func Add(g *CausalGraph, agent string, seqStart, seqEnd int, parents []LV) (LVRange, error) {
	version := NextLV(g)

	for {
		if seqStart >= seqEnd {
			return LVRange{Start: version, End: version}, nil
		}
		entry, _, ok := findClientEntry(g, agent, seqStart)
		if !ok {
			break
		}
		if entry.SeqEnd >= seqEnd {
			// The entire span is already known.
			return LVRange{Start: version, End: version}, nil
		}
		// Trim the known prefix and hang the remainder off its last version.
		last := entry.Version + LV(entry.SeqEnd-entry.Seq) - 1
		seqStart = entry.SeqEnd
		parents = []LV{last}
	}

	for _, p := range parents {
		if p < 0 || p >= version {
			return LVRange{}, fmt.Errorf("%w: parent lv %d", ErrUnknownVersion, p)
		}
	}

	vEnd := version + LV(seqEnd-seqStart)
	entry := CGEntry{
		Version: version,
		VEnd:    vEnd,
		Agent:   agent,
		Seq:     seqStart,
		Parents: SortFrontier(append([]LV(nil), parents...)),
	}

	g.Entries = util.PushRLE(g.Entries, entry, tryAppendEntry)
	g.AgentToVersion[agent] = util.InsertRLE(g.AgentToVersion[agent],
		ClientEntry{Seq: seqStart, SeqEnd: seqEnd, Version: version},
		func(c ClientEntry) int { return c.Seq },
		tryAppendClientEntry)
	g.Heads = AdvanceFrontier(g.Heads, vEnd-1, entry.Parents)

	return LVRange{Start: version, End: vEnd}, nil
}

// AddRaw is Add with ID-typed parents.
func AddRaw(g *CausalGraph, id ID, length int, rawParents []ID) (LVRange, error) {
	if length <= 0 {
		return LVRange{}, fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	parents := make([]LV, 0, len(rawParents))
	for _, rp := range rawParents {
		v, ok := TryIDToLV(g, rp.Agent, rp.Seq)
		if !ok {
			return LVRange{}, fmt.Errorf("%w: parent %s:%d", ErrMissingParents, rp.Agent, rp.Seq)
		}
		parents = append(parents, v)
	}
	return Add(g, id.Agent, id.Seq, id.Seq+length, parents)
}
