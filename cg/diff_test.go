package cg

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linearGraph is a: 0 <- 1 <- 2 <- 3 chain by one agent.
func linearGraph(t *testing.T) *CausalGraph {
	t.Helper()
	g := NewCausalGraph()
	_, err := Add(g, "a", 0, 4, nil)
	require.NoError(t, err)
	return g
}

// forkGraph is two concurrent root ops: a:0 (lv 0) and b:0 (lv 1).
func forkGraph(t *testing.T) *CausalGraph {
	t.Helper()
	g := NewCausalGraph()
	_, err := Add(g, "a", 0, 1, nil)
	require.NoError(t, err)
	_, err = Add(g, "b", 0, 1, nil)
	require.NoError(t, err)
	return g
}

func TestDiffLinear(t *testing.T) {
	g := linearGraph(t)

	d, err := Diff(g, []LV{1}, []LV{3})
	require.NoError(t, err)
	assert.Empty(t, d.AOnly)
	assert.Equal(t, []LVRange{{2, 4}}, d.BOnly)

	d, err = Diff(g, []LV{3}, []LV{1})
	require.NoError(t, err)
	assert.Equal(t, []LVRange{{2, 4}}, d.AOnly)
	assert.Empty(t, d.BOnly)

	d, err = Diff(g, []LV{3}, []LV{3})
	require.NoError(t, err)
	assert.Empty(t, d.AOnly)
	assert.Empty(t, d.BOnly)
}

func TestDiffEmptyFrontier(t *testing.T) {
	g := forkGraph(t)

	// Every version lands on exactly one side.
	d, err := Diff(g, nil, []LV{0, 1})
	require.NoError(t, err)
	assert.Empty(t, d.AOnly)
	assert.Equal(t, []LVRange{{0, 2}}, d.BOnly)
}

func TestDiffConcurrent(t *testing.T) {
	g := forkGraph(t)

	d, err := Diff(g, []LV{0}, []LV{1})
	require.NoError(t, err)
	if diff := cmp.Diff(DiffResult{AOnly: []LVRange{{0, 1}}, BOnly: []LVRange{{1, 2}}}, d); diff != "" {
		t.Errorf("diff mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffMergedHistory(t *testing.T) {
	g := forkGraph(t)
	// c:0 merges both roots.
	_, err := Add(g, "c", 0, 1, []LV{0, 1})
	require.NoError(t, err)

	d, err := Diff(g, []LV{0}, []LV{2})
	require.NoError(t, err)
	assert.Empty(t, d.AOnly)
	assert.Equal(t, []LVRange{{1, 3}}, d.BOnly)
}

func TestVersionContainsLV(t *testing.T) {
	g := forkGraph(t)
	_, err := Add(g, "c", 0, 1, []LV{0, 1})
	require.NoError(t, err)

	for _, tc := range []struct {
		frontier []LV
		target   LV
		want     bool
	}{
		{[]LV{2}, 0, true},
		{[]LV{2}, 1, true},
		{[]LV{2}, 2, true},
		{[]LV{0}, 1, false},
		{[]LV{1}, 0, false},
		{[]LV{0, 1}, 1, true},
		{nil, 0, false},
	} {
		got, err := VersionContainsLV(g, tc.frontier, tc.target)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "frontier %v target %d", tc.frontier, tc.target)
	}

	_, err = VersionContainsLV(g, []LV{0}, 99)
	assert.ErrorIs(t, err, ErrUnknownVersion)
}

func TestFindDominators(t *testing.T) {
	g := forkGraph(t)
	_, err := Add(g, "c", 0, 1, []LV{0, 1})
	require.NoError(t, err)
	// One more on top so the general (>2 input) path has depth.
	_, err = Add(g, "c", 1, 2, []LV{2})
	require.NoError(t, err)

	doms, err := FindDominators(g, []LV{0, 1})
	require.NoError(t, err)
	assert.Equal(t, []LV{0, 1}, doms)

	doms, err = FindDominators(g, []LV{0, 2})
	require.NoError(t, err)
	assert.Equal(t, []LV{2}, doms)

	doms, err = FindDominators(g, []LV{0, 1, 3})
	require.NoError(t, err)
	assert.Equal(t, []LV{3}, doms)

	doms, err = FindDominators(g, []LV{3})
	require.NoError(t, err)
	assert.Equal(t, []LV{3}, doms)

	doms, err = FindDominators(g, nil)
	require.NoError(t, err)
	assert.Empty(t, doms)
}

func TestCompareVersions(t *testing.T) {
	g := forkGraph(t)
	_, err := Add(g, "c", 0, 1, []LV{0, 1})
	require.NoError(t, err)

	for _, tc := range []struct {
		a, b LV
		want Relation
	}{
		{0, 0, RelationEqual},
		{0, 2, RelationAncestor},
		{2, 0, RelationDescendant},
		{0, 1, RelationConcurrent},
	} {
		got, err := CompareVersions(g, tc.a, tc.b)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%d vs %d", tc.a, tc.b)
	}
}

type visited struct {
	r    LVRange
	flag DiffFlag
}

func TestFindConflictingForks(t *testing.T) {
	g := forkGraph(t)

	var seen []visited
	common, err := FindConflicting(g, []LV{0}, []LV{1}, func(r LVRange, flag DiffFlag) {
		seen = append(seen, visited{r, flag})
	})
	require.NoError(t, err)
	assert.Empty(t, common)
	assert.Equal(t, []visited{{LVRange{1, 2}, DiffB}, {LVRange{0, 1}, DiffA}}, seen)
}

func TestFindConflictingLinear(t *testing.T) {
	g := linearGraph(t)

	var seen []visited
	common, err := FindConflicting(g, []LV{1}, []LV{3}, func(r LVRange, flag DiffFlag) {
		seen = append(seen, visited{r, flag})
	})
	require.NoError(t, err)
	assert.Equal(t, []LV{1}, common)
	assert.Equal(t, []visited{{LVRange{2, 4}, DiffB}}, seen)
}

func TestFindConflictingSharedAboveCommon(t *testing.T) {
	// 0..3 linear by a; 4 (agent b) forks off 1; 5 (agent c) merges 3 and 4.
	g := NewCausalGraph()
	_, err := Add(g, "a", 0, 4, nil)
	require.NoError(t, err)
	_, err = Add(g, "b", 0, 1, []LV{1})
	require.NoError(t, err)
	_, err = Add(g, "c", 0, 1, []LV{3, 4})
	require.NoError(t, err)

	var seen []visited
	common, err := FindConflicting(g, []LV{3}, []LV{5}, func(r LVRange, flag DiffFlag) {
		seen = append(seen, visited{r, flag})
	})
	require.NoError(t, err)

	// The walk joins at 1, below the plain GCA: ops 2..3 are shared with the
	// b side's fork point and come back flagged Shared.
	assert.Equal(t, []LV{1}, common)
	assert.Equal(t, []visited{
		{LVRange{5, 6}, DiffB},
		{LVRange{4, 5}, DiffB},
		{LVRange{2, 4}, DiffShared},
	}, seen)
}
