package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeString(t *testing.T) {
	n := Node{Table: "Students", Col: "name"}
	assert.Equal(t, "[Students.name]", n.String())
}

func TestNewRowsDropsNoRow(t *testing.T) {
	rows := NewRows(1, 0, 2, 0, 3)
	assert.Equal(t, 3, rows.Len())
	assert.False(t, rows.Contains(0))
	assert.True(t, rows.Contains(1))
	assert.True(t, rows.Contains(2))
	assert.True(t, rows.Contains(3))
}

func TestAllRowsContainsEverythingButSentinel(t *testing.T) {
	rows := AllRows()
	assert.True(t, rows.IsAll())
	assert.True(t, rows.Contains(42))
	assert.False(t, rows.Contains(NoRow))
}

func TestNoRowsIsEmpty(t *testing.T) {
	rows := NoRows()
	assert.False(t, rows.IsAll())
	assert.Equal(t, 0, rows.Len())
	assert.False(t, rows.Contains(1))
}

func TestSortedAscending(t *testing.T) {
	rows := NewRows(5, 1, 3, 2, 4)
	assert.Equal(t, []RowID{1, 2, 3, 4, 5}, rows.Sorted())
}

func TestSortedOfAllRowsIsNil(t *testing.T) {
	assert.Nil(t, AllRows().Sorted())
}

func TestEachVisitsInOrder(t *testing.T) {
	rows := NewRows(3, 1, 2)
	var seen []RowID
	rows.Each(func(id RowID) { seen = append(seen, id) })
	assert.Equal(t, []RowID{1, 2, 3}, seen)
}

func TestEachPanicsOnAllRows(t *testing.T) {
	assert.Panics(t, func() {
		AllRows().Each(func(RowID) {})
	})
}

func TestUnion(t *testing.T) {
	a := NewRows(1, 2)
	b := NewRows(2, 3)
	u := a.Union(b)
	assert.Equal(t, 3, u.Len())
	assert.True(t, u.Contains(1))
	assert.True(t, u.Contains(2))
	assert.True(t, u.Contains(3))
}

func TestUnionWithAllRowsAbsorbs(t *testing.T) {
	assert.True(t, NewRows(1).Union(AllRows()).IsAll())
	assert.True(t, AllRows().Union(NewRows(1)).IsAll())
}

func TestUnionInPlaceReportsAdded(t *testing.T) {
	r := NewRows(1, 2)
	added := r.UnionInPlace(NewRows(2, 3, 4))
	assert.Equal(t, 2, added)
	assert.Equal(t, 4, r.Len())
}

func TestUnionInPlaceOnAllRowsIsNoop(t *testing.T) {
	r := AllRows()
	added := r.UnionInPlace(NewRows(1))
	assert.Equal(t, 0, added)
	assert.True(t, r.IsAll())
}

func TestUnionInPlacePanicsWithAllRowsArg(t *testing.T) {
	r := NewRows(1)
	assert.Panics(t, func() {
		r.UnionInPlace(AllRows())
	})
}

func TestAddAndDiscard(t *testing.T) {
	r := NoRows()
	r.Add(5)
	assert.True(t, r.Contains(5))
	r.Add(0)
	assert.False(t, r.Contains(0))
	r.Discard(5)
	assert.False(t, r.Contains(5))
}

func TestRowsFromSlice(t *testing.T) {
	r := RowsFromSlice([]RowID{7, 8, 9})
	assert.Equal(t, 3, r.Len())
	assert.True(t, r.Contains(8))
}
