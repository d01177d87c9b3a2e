package cg

import "errors"

// ID is the globally unique (agent, seq) pair for one operation.
type ID struct {
	Agent string
	Seq   int
}

func (id ID) Unpack() (string, int) {
	return id.Agent, id.Seq
}

// LV is a local version: an index into the op log, assigned in append order.
// LVs are never shared between peers.
type LV int

// LVRange is a half-open [Start, End) range of local versions.
type LVRange struct {
	Start LV
	End   LV
}

// CGEntry is a run of versions by one agent. Covers LVs [Version, VEnd) and
// seqs [Seq, Seq+(VEnd-Version)). Parents applies to the first version in the
// run; every later version's sole parent is its predecessor.
type CGEntry struct {
	Version LV
	VEnd    LV
	Agent   string
	Seq     int
	Parents []LV
}

func (e CGEntry) Len() int {
	return int(e.VEnd - e.Version)
}

// ClientEntry is a per-agent run of seqs [Seq, SeqEnd) starting at LV Version.
type ClientEntry struct {
	Seq     int
	SeqEnd  int
	Version LV
}

// CausalGraph stores the parents of every known version, run-length encoded,
// plus a per-agent index for (agent, seq) lookups.
type CausalGraph struct {
	// Heads is the current frontier: every version with no descendant. Sorted.
	Heads []LV
	// Entries is gapless and sorted by LV.
	Entries []CGEntry
	// AgentToVersion indexes runs by agent, sorted by seq.
	AgentToVersion map[string][]ClientEntry
}

// VersionSummary maps each agent to its known [start, end) seq ranges.
type VersionSummary map[string][][2]int

// PartialSerializedEntry is one record of the wire diff format. Parents are
// expressed as IDs so the receiver can resolve them into its own LV space.
type PartialSerializedEntry struct {
	Agent   string `json:"agent"`
	Seq     int    `json:"seq"`
	Len     int    `json:"len"`
	Parents []ID   `json:"parents"`
}

var (
	ErrUnknownVersion = errors.New("unknown version")
	ErrUnknownID      = errors.New("unknown id")
	ErrMissingParents = errors.New("missing parents")
	ErrInvalidLength  = errors.New("invalid length")
	ErrInvalidSeq     = errors.New("invalid seq")
)
