package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/sheetengine/pkg/ids"
	"github.com/kasuganosora/sheetengine/pkg/relation"
)

func node(table, col string) ids.Node {
	return ids.Node{Table: ids.TableID(table), Col: ids.ColID(col)}
}

// TestInvalidateSingleRowChain reproduces S2 from the spec: A.xx = rec.link.link.x
// across A->B->C, a single changed row in C should dirty exactly one row in A.xx.
func TestInvalidateSingleRowChain(t *testing.T) {
	g := New()

	aToB := relation.NewReference("A", "link", "B")
	aToB.AddReference(1, 2) // A[1] -> B[2]
	bToC := relation.NewReference("B", "link", "C")
	bToC.AddReference(2, 3) // B[2] -> C[3]

	aXX := node("A", "xx")
	bDummy := node("B", "link") // not directly used as a node here; A.xx depends on C.x via composed relation
	_ = bDummy
	cX := node("C", "x")

	composed := aToB.Compose(bToC)
	g.AddEdge(aXX, cX, composed)

	dirty := DirtyMap{}
	g.Invalidate(cX, ids.NewRows(3), dirty, false)

	rows, ok := dirty[aXX]
	require.True(t, ok)
	assert.False(t, rows.IsAll())
	assert.Equal(t, 1, rows.Len())
	assert.True(t, rows.Contains(1))
}

func TestInvalidateAllRowsClearsOutgoingEdges(t *testing.T) {
	g := New()
	out := node("Students", "StateCount")
	in := node("Students", "State")
	identity := relation.NewIdentity("Students")
	g.AddEdge(out, in, identity)

	dirty := DirtyMap{}
	g.Invalidate(in, ids.AllRows(), dirty, true)

	rows := dirty[in]
	assert.True(t, rows.IsAll())
	// The walk reaches `out` with ALL_ROWS too, so ClearOut must have dropped
	// out's edge (a whole-column recompute rediscovers its own dependencies).
	assert.Empty(t, g.byOutNode[out])
}

func TestInvalidatePrunesWhenNothingNew(t *testing.T) {
	g := New()
	out := node("T", "formula")
	in := node("T", "data")
	g.AddEdge(out, in, relation.NewIdentity("T"))

	dirty := DirtyMap{}
	g.Invalidate(in, ids.NewRows(1, 2), dirty, false)
	require.Equal(t, 2, dirty[out].Len())

	// Invalidating the same rows again should not re-walk (and in
	// particular must not panic from double ClearOut etc.)
	g.Invalidate(in, ids.NewRows(1), dirty, false)
	assert.Equal(t, 2, dirty[out].Len())
}

func TestClearOutCallsResetAllOnDroppedRelations(t *testing.T) {
	g := New()
	out := node("T", "f")
	in := node("T", "g")
	ref := relation.NewReference("T", "g", "U")
	ref.AddReference(1, 100)
	g.AddEdge(out, in, ref)

	g.ClearOut(out)

	// After ResetAll (== Clear), the inverse map is empty so nothing is
	// affected by row 100 changing, even though the edge existed before.
	affected := ref.Affected(ids.NewRows(100))
	assert.Equal(t, 0, affected.Len())
	assert.Empty(t, g.allEdges)
}

func TestRemoveNodeIfUnused(t *testing.T) {
	g := New()
	out := node("T", "f")
	in := node("T", "g")
	g.AddEdge(out, in, relation.NewIdentity("T"))

	// `in` has a dependent (`out`), so it cannot be removed yet.
	assert.False(t, g.RemoveNodeIfUnused(in))

	// `out` has no dependents, so it can be dropped, clearing its own
	// outgoing edges.
	assert.True(t, g.RemoveNodeIfUnused(out))
	assert.Empty(t, g.byOutNode[out])
}
