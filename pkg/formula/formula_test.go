package formula

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/sheetengine/pkg/column"
	"github.com/kasuganosora/sheetengine/pkg/depgraph"
	"github.com/kasuganosora/sheetengine/pkg/ids"
	"github.com/kasuganosora/sheetengine/pkg/relation"
)

type tables map[ids.TableID]*column.Table

func (t tables) Table(id ids.TableID) (*column.Table, error) {
	tbl, ok := t[id]
	if !ok {
		return nil, &column.ErrTableNotFound{TableID: id}
	}
	return tbl, nil
}

func setupStudents(t *testing.T) tables {
	tbl := column.NewTable("Students")
	_, err := tbl.AddColumn("Name", column.Text, column.KindData)
	require.NoError(t, err)
	tbl.AddRecord(1)
	require.NoError(t, tbl.Set("Name", 1, "Al"))
	return tables{"Students": tbl}
}

func TestRecordAttrRecordsEdge(t *testing.T) {
	ts := setupStudents(t)
	g := depgraph.New()
	node := ids.Node{Table: "Students", Col: "Greeting"}
	ctx := NewEvalContext(g, ts, node, 1, relation.NewIdentity("Students"))

	rec := NewRecord(ctx, "Students", 1, relation.NewIdentity("Students"))
	v, err := rec.Attr("Name")
	require.NoError(t, err)
	assert.Equal(t, "Al", v)

	// Recompute is now wired from Greeting to Students.Name.
	var invalidated depgraph.DirtyMap = make(depgraph.DirtyMap)
	g.Invalidate(ids.Node{Table: "Students", Col: "Name"}, ids.NewRows(1), invalidated, false)
	rows, ok := invalidated[node]
	require.True(t, ok)
	assert.True(t, rows.Contains(1))
}

func TestRecordAttrPropagatesRaisedException(t *testing.T) {
	ts := setupStudents(t)
	tbl, _ := ts.Table("Students")
	require.NoError(t, tbl.Set("Name", 1, column.RaisedException{Kind: "FormulaError", Message: "boom"}))

	g := depgraph.New()
	node := ids.Node{Table: "Students", Col: "Greeting"}
	ctx := NewEvalContext(g, ts, node, 1, relation.NewIdentity("Students"))
	rec := NewRecord(ctx, "Students", 1, relation.NewIdentity("Students"))

	_, err := rec.Attr("Name")
	require.Error(t, err)
	var exc column.RaisedException
	assert.True(t, errors.As(err, &exc))
}

func TestEvalRecoversPanic(t *testing.T) {
	ts := setupStudents(t)
	g := depgraph.New()
	node := ids.Node{Table: "Students", Col: "Greeting"}
	ctx := NewEvalContext(g, ts, node, 1, relation.NewIdentity("Students"))

	_, err := Eval(ctx, func(ctx *EvalContext) (interface{}, error) {
		panic("boom")
	})
	require.Error(t, err)
}

func TestSetAutoRemoveQueuesRequest(t *testing.T) {
	ts := setupStudents(t)
	g := depgraph.New()
	node := ids.Node{Table: "Students", Col: "Greeting"}
	ctx := NewEvalContext(g, ts, node, 1, relation.NewIdentity("Students"))

	ctx.SetAutoRemove(false)
	assert.Empty(t, ctx.AutoRemoveRequests())
	ctx.SetAutoRemove(true)
	require.Len(t, ctx.AutoRemoveRequests(), 1)
	assert.Equal(t, ids.RowID(1), ctx.AutoRemoveRequests()[0].Row)
}

func TestRecordSetIterIsRestartable(t *testing.T) {
	ts := setupStudents(t)
	tbl, _ := ts.Table("Students")
	tbl.AddRecord(2)
	require.NoError(t, tbl.Set("Name", 2, "Bo"))

	g := depgraph.New()
	node := ids.Node{Table: "Students", Col: "Count"}
	ctx := NewEvalContext(g, ts, node, 0, relation.NewIdentity("Students"))
	rs := NewRecordSet(ctx, "Students", []ids.RowID{1, 2}, relation.NewIdentity("Students"))

	var names []string
	require.NoError(t, rs.Iter(func(r *Record) error {
		v, err := r.Attr("Name")
		if err != nil {
			return err
		}
		names = append(names, v.(string))
		return nil
	}))
	assert.Equal(t, []string{"Al", "Bo"}, names)

	// Second Iter call re-walks from scratch.
	var secondPass []string
	require.NoError(t, rs.Iter(func(r *Record) error {
		v, _ := r.Attr("Name")
		secondPass = append(secondPass, v.(string))
		return nil
	}))
	assert.Equal(t, names, secondPass)
}
