package ol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinxiao27/reg-walker/cg"
)

func TestLocalOps(t *testing.T) {
	oplog := NewOpLog[rune]()
	require.NoError(t, LocalInsert(oplog, "kev", 0, []rune("Hello")...))
	require.NoError(t, LocalDelete(oplog, "kev", 0, 2))

	assert.Len(t, oplog.Ops, 7)
	assert.Equal(t, cg.LV(7), cg.NextLV(oplog.CG))
	assert.Equal(t, []cg.LV{6}, oplog.CG.Heads)
	assert.Equal(t, 7, cg.NextSeqForAgent(oplog.CG, "kev"))
	require.NoError(t, cg.CheckCG(oplog.CG))

	ids, err := GetLatestVersion(oplog)
	require.NoError(t, err)
	assert.Equal(t, []cg.ID{{Agent: "kev", Seq: 6}}, ids)
}

func TestLocalOpsInvalidLength(t *testing.T) {
	oplog := NewOpLog[rune]()
	assert.ErrorIs(t, LocalInsert(oplog, "kev", 0), cg.ErrInvalidLength)
	assert.ErrorIs(t, LocalDelete(oplog, "kev", 0, 0), cg.ErrInvalidLength)
	assert.ErrorIs(t, LocalDelete(oplog, "kev", 0, -3), cg.ErrInvalidLength)
	assert.Empty(t, oplog.Ops)
}

func TestPushRemoteOp(t *testing.T) {
	oplog := NewOpLog[rune]()

	n, err := PushRemoteOp(oplog, cg.ID{Agent: "u1", Seq: 0}, nil, Op[rune]{Type: Insert, Pos: 0, Content: 'A'})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Same op again: silently deduplicated.
	n, err = PushRemoteOp(oplog, cg.ID{Agent: "u1", Seq: 0}, nil, Op[rune]{Type: Insert, Pos: 0, Content: 'A'})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, oplog.Ops, 1)

	// Parents must already be known.
	_, err = PushRemoteOp(oplog, cg.ID{Agent: "u2", Seq: 0}, []cg.ID{{Agent: "nobody", Seq: 9}},
		Op[rune]{Type: Delete, Pos: 0})
	assert.ErrorIs(t, err, cg.ErrMissingParents)
	assert.Len(t, oplog.Ops, 1)

	n, err = PushRemoteOp(oplog, cg.ID{Agent: "u2", Seq: 0}, []cg.ID{{Agent: "u1", Seq: 0}},
		Op[rune]{Type: Delete, Pos: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, cg.CheckCG(oplog.CG))
}

func TestMergeInto(t *testing.T) {
	a := NewOpLog[rune]()
	b := NewOpLog[rune]()
	require.NoError(t, LocalInsert(a, "a", 0, []rune("hi")...))
	require.NoError(t, LocalInsert(b, "z", 0, []rune("yo")...))

	require.NoError(t, MergeInto(a, b))
	assert.Len(t, a.Ops, 4)
	assert.Equal(t, cg.LV(4), cg.NextLV(a.CG))
	require.NoError(t, cg.CheckCG(a.CG))

	// Idempotent: merging again changes nothing.
	require.NoError(t, MergeInto(a, b))
	assert.Len(t, a.Ops, 4)

	// The other direction converges to the same identity set.
	require.NoError(t, MergeInto(b, a))
	assert.Len(t, b.Ops, 4)

	headsA, err := GetLatestVersion(a)
	require.NoError(t, err)
	headsB, err := GetLatestVersion(b)
	require.NoError(t, err)
	assert.ElementsMatch(t, headsA, headsB)
}

func TestMergeIntoPartialOverlap(t *testing.T) {
	a := NewOpLog[rune]()
	require.NoError(t, LocalInsert(a, "a", 0, []rune("abc")...))

	b := NewOpLog[rune]()
	require.NoError(t, MergeInto(b, a))

	// Divergent continuations on both sides.
	require.NoError(t, LocalInsert(a, "a", 3, 'x'))
	require.NoError(t, LocalInsert(b, "b", 0, 'y'))

	require.NoError(t, MergeInto(a, b))
	require.NoError(t, MergeInto(b, a))

	assert.Len(t, a.Ops, 5)
	assert.Len(t, b.Ops, 5)
	require.NoError(t, cg.CheckCG(a.CG))
	require.NoError(t, cg.CheckCG(b.CG))

	headsA, err := GetLatestVersion(a)
	require.NoError(t, err)
	headsB, err := GetLatestVersion(b)
	require.NoError(t, err)
	assert.ElementsMatch(t, headsA, headsB)
}
