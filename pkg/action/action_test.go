package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/sheetengine/pkg/column"
	"github.com/kasuganosora/sheetengine/pkg/ids"
)

type memRegistry struct {
	tables map[ids.TableID]*column.Table
}

func newMemRegistry() *memRegistry { return &memRegistry{tables: make(map[ids.TableID]*column.Table)} }

func (r *memRegistry) Table(id ids.TableID) (*column.Table, error) {
	t, ok := r.tables[id]
	if !ok {
		return nil, &column.ErrTableNotFound{TableID: id}
	}
	return t, nil
}

func (r *memRegistry) AddTable(id ids.TableID) (*column.Table, error) {
	if _, ok := r.tables[id]; ok {
		return nil, &column.ErrTableExists{TableID: id}
	}
	t := column.NewTable(id)
	r.tables[id] = t
	return t, nil
}

func (r *memRegistry) RemoveTable(id ids.TableID) error {
	if _, ok := r.tables[id]; !ok {
		return &column.ErrTableNotFound{TableID: id}
	}
	delete(r.tables, id)
	return nil
}

func (r *memRegistry) RenameTable(oldID, newID ids.TableID) error {
	t, ok := r.tables[oldID]
	if !ok {
		return &column.ErrTableNotFound{TableID: oldID}
	}
	delete(r.tables, oldID)
	t.ID = newID
	r.tables[newID] = t
	return nil
}

func TestApplyAddRemoveRecordInverse(t *testing.T) {
	reg := newMemRegistry()
	tbl, err := reg.AddTable("Students")
	require.NoError(t, err)
	_, err = tbl.AddColumn("Name", column.Text, column.KindData)
	require.NoError(t, err)

	add := DocAction{Name: AddRecord, Table: "Students", RowID: 1, Fields: map[ids.ColID]interface{}{"Name": "Al"}}
	require.NoError(t, Apply(reg, add))
	assert.True(t, tbl.HasRow(1))

	inv := add.Inverse()
	require.NoError(t, Apply(reg, inv))
	assert.False(t, tbl.HasRow(1))
}

func TestBundleAppendStoredUndoOrder(t *testing.T) {
	reg := newMemRegistry()
	tbl, _ := reg.AddTable("T")
	_, _ = tbl.AddColumn("X", column.Int, column.KindData)

	var b Bundle
	a1 := DocAction{Name: AddRecord, Table: "T", RowID: 1}
	a2 := DocAction{Name: AddRecord, Table: "T", RowID: 2}
	require.NoError(t, Apply(reg, a1))
	b.AppendStored(a1, true)
	require.NoError(t, Apply(reg, a2))
	b.AppendStored(a2, true)

	require.Len(t, b.Undo, 2)
	assert.Equal(t, RemoveRecord, b.Undo[0].Name)
	assert.Equal(t, ids.RowID(2), b.Undo[0].RowID)
	assert.Equal(t, ids.RowID(1), b.Undo[1].RowID)

	// Applying undo in order restores the pre-bundle state.
	for _, u := range b.Undo {
		require.NoError(t, Apply(reg, u))
	}
	assert.False(t, tbl.HasRow(1))
	assert.False(t, tbl.HasRow(2))
}

func TestSummaryCoalescesRepeatedUpdates(t *testing.T) {
	s := NewSummary()
	s.Record("T", "X", 1, int64(0), int64(1))
	s.Record("T", "X", 1, int64(1), int64(2))
	s.Record("T", "Y", 1, "a", "b")

	actions := s.FlushByColumn()
	require.Len(t, actions, 2)

	var xAction, yAction *DocAction
	for i := range actions {
		if _, ok := actions[i].ColValues["X"]; ok {
			xAction = &actions[i]
		}
		if _, ok := actions[i].ColValues["Y"]; ok {
			yAction = &actions[i]
		}
	}
	require.NotNil(t, xAction)
	require.NotNil(t, yAction)
	assert.Equal(t, []interface{}{int64(2)}, xAction.ColValues["X"])
}

func TestSummarySkipsNoOpRoundTrip(t *testing.T) {
	s := NewSummary()
	s.Record("T", "X", 1, int64(5), int64(6))
	s.Record("T", "X", 1, int64(6), int64(5))
	actions := s.FlushByColumn()
	assert.Empty(t, actions)
}

func TestSubBundleRollback(t *testing.T) {
	reg := newMemRegistry()
	tbl, _ := reg.AddTable("Derived")
	_, _ = tbl.AddColumn("City", column.Text, column.KindData)

	sub := NewSubBundle()
	a := DocAction{Name: AddRecord, Table: "Derived", RowID: 1, Fields: map[ids.ColID]interface{}{"City": "NYC"}}
	require.NoError(t, Apply(reg, a))
	sub.Record(a)

	assert.True(t, tbl.HasRow(1))

	for _, inv := range sub.Rollback() {
		require.NoError(t, Apply(reg, inv))
	}
	assert.False(t, tbl.HasRow(1))
}

func TestModifyColumnInverseRoundTrip(t *testing.T) {
	reg := newMemRegistry()
	tbl, _ := reg.AddTable("T")
	_, _ = tbl.AddColumn("X", column.Text, column.KindData)

	modify := DocAction{
		Name: ModifyColumnAction, Table: "T", Col: "X",
		Type: column.Int, Kind: column.KindData,
		PriorType: column.Text, PriorKind: column.KindData,
	}
	require.NoError(t, Apply(reg, modify))
	col, err := tbl.Column("X")
	require.NoError(t, err)
	assert.Equal(t, column.Int, col.Type)

	require.NoError(t, Apply(reg, modify.Inverse()))
	col, _ = tbl.Column("X")
	assert.Equal(t, column.Text, col.Type)
}
