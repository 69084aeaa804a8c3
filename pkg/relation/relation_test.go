package relation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/sheetengine/pkg/ids"
)

func TestIdentityAffected(t *testing.T) {
	rel := NewIdentity("Students")
	rows := ids.NewRows(1, 2, 3)
	assert.Equal(t, rows, rel.Affected(rows))
	assert.True(t, rel.Affected(ids.AllRows()).IsAll())
}

func TestSingleRowIdentityDropsAllRows(t *testing.T) {
	rel := NewSingleRowIdentity("Triggers")
	assert.Equal(t, 0, rel.Affected(ids.AllRows()).Len())
	rows := ids.NewRows(5)
	assert.Equal(t, rows, rel.Affected(rows))
}

func TestReferenceAffectedUnionsInverseMap(t *testing.T) {
	rel := NewReference("Students", "school", "Schools")
	rel.AddReference(1, 10)
	rel.AddReference(2, 10)
	rel.AddReference(3, 20)

	affected := rel.Affected(ids.NewRows(10))
	assert.True(t, affected.Contains(1))
	assert.True(t, affected.Contains(2))
	assert.False(t, affected.Contains(3))

	assert.True(t, rel.Affected(ids.AllRows()).IsAll())

	rel.RemoveReference(1, 10)
	affected = rel.Affected(ids.NewRows(10))
	assert.False(t, affected.Contains(1))
	assert.True(t, affected.Contains(2))
}

func TestComposeMemoizesSameInstance(t *testing.T) {
	a := NewReference("Students", "school", "Schools")
	b := NewReference("Schools", "address", "Addresses")

	c1 := a.Compose(b)
	c2 := a.Compose(b)
	assert.Same(t, c1, c2, "composing the same pair twice must return the identical instance")

	composed, ok := c1.(*Composed)
	require.True(t, ok)
	assert.Equal(t, ids.TableID("Students"), composed.ReferringTable())
	assert.Equal(t, ids.TableID("Addresses"), composed.TargetTable())
}

func TestComposedAffectedChainsThroughBothSides(t *testing.T) {
	studentsToSchools := NewReference("Students", "school", "Schools")
	studentsToSchools.AddReference(1, 100) // student 1 -> school 100

	schoolsToAddresses := NewReference("Schools", "address", "Addresses")
	schoolsToAddresses.AddReference(100, 9000) // school 100 -> address 9000

	composed := studentsToSchools.Compose(schoolsToAddresses)
	affected := composed.Affected(ids.NewRows(9000))
	assert.True(t, affected.Contains(1))
	assert.Equal(t, 1, affected.Len())
}

func TestComposedResetRowsOnlyForwardsToSource(t *testing.T) {
	// ComposedRelation.reset_rows must only forward to the source
	// (referring) side; never to the target side. We can't observe
	// Reference.ResetRows directly since it's a no-op, so this test pins
	// the documented behavior via Identity, whose ResetRows is
	// distinguishable through a wrapping type.
	src := &countingRelation{Identity: *NewIdentity("A")}
	tgt := &countingRelation{Identity: *NewIdentity("B")}
	composed := NewComposed(src, tgt)

	composed.ResetRows(ids.NewRows(1))
	assert.Equal(t, 1, src.resetCalls)
	assert.Equal(t, 0, tgt.resetCalls)
}

// countingRelation wraps Identity to count ResetRows calls, used only to
// observe which side of a Composed relation gets reset.
type countingRelation struct {
	Identity
	resetCalls int
}

func (c *countingRelation) ResetRows(rows ids.Rows) {
	c.resetCalls++
	c.Identity.ResetRows(rows)
}
