package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/sheetengine/pkg/action"
	"github.com/kasuganosora/sheetengine/pkg/column"
	"github.com/kasuganosora/sheetengine/pkg/formula"
	"github.com/kasuganosora/sheetengine/pkg/ids"
	"github.com/kasuganosora/sheetengine/pkg/relation"
)

// testCompiler resolves a formula column's FormulaText to a hand-written Go
// closure, standing in for the general expression compiler a real host would
// register (the engine itself implements no formula language; see the
// Compiler seam in engine.go).
type testCompiler struct {
	builders map[string]func(e *Engine) FormulaEntry
}

func (c testCompiler) Compile(e *Engine, table ids.TableID, col ids.ColID, kind column.Kind, formulaText string) (FormulaEntry, error) {
	build, ok := c.builders[formulaText]
	if !ok {
		return FormulaEntry{}, &SchemaError{Msg: "no test builder for formula " + formulaText}
	}
	return build(e), nil
}

func newTestEngine(t *testing.T, compiler Compiler) *Engine {
	t.Helper()
	e := New(nil, compiler, nil)
	require.NoError(t, e.LoadEmpty())
	return e
}

// TestEngineReferenceChainRecompute covers spec.md S2: Students.Double reads
// through a Ref column to Schools.Factor, and an edit on the referenced row
// propagates back through the dependency graph to the referring row's
// formula cell.
func TestEngineReferenceChainRecompute(t *testing.T) {
	compiler := testCompiler{builders: map[string]func(e *Engine) FormulaEntry{
		"students_double": func(e *Engine) FormulaEntry {
			return FormulaEntry{
				Rel: relation.NewIdentity("Students"),
				Fn: func(ctx *formula.EvalContext) (interface{}, error) {
					refRel := e.ReferenceRelation("Students", "School", "Schools")
					rec := formula.NewRecord(ctx, "Students", ctx.Row, relation.NewIdentity("Students"))
					school, err := rec.Follow("School", refRel, "Schools")
					if err != nil {
						return nil, err
					}
					if !school.IsValid() {
						return int64(0), nil
					}
					factor, err := school.Attr("Factor")
					if err != nil {
						return nil, err
					}
					return factor.(int64) * 2, nil
				},
			}
		},
	}}
	e := newTestEngine(t, compiler)

	require.NoError(t, e.LoadTable("Schools", []ColumnDef{
		{ID: "Factor", Type: column.Int, Kind: column.KindData},
	}, TableData{}))
	require.NoError(t, e.LoadTable("Students", []ColumnDef{
		{ID: "Name", Type: column.Text, Kind: column.KindData},
		{ID: "School", Type: column.Ref, Kind: column.KindData},
		{ID: "Double", Type: column.Int, Kind: column.KindFormula, FormulaText: "students_double"},
	}, TableData{}))
	require.NoError(t, e.LoadDone())

	_, err := e.ApplyUserActions([]action.DocAction{
		{Name: action.AddRecord, Table: "Schools", RowID: -1, Fields: map[ids.ColID]interface{}{"Factor": int64(5)}},
	})
	require.NoError(t, err)

	schoolTable, err := e.Table("Schools")
	require.NoError(t, err)
	schoolRow := schoolTable.RowIDs()[0]

	_, err = e.ApplyUserActions([]action.DocAction{
		{Name: action.AddRecord, Table: "Students", RowID: -1, Fields: map[ids.ColID]interface{}{
			"Name": "Ada", "School": schoolRow,
		}},
	})
	require.NoError(t, err)

	studentsTable, err := e.Table("Students")
	require.NoError(t, err)
	studentRow := studentsTable.RowIDs()[0]
	v, _ := studentsTable.Get("Double", studentRow)
	assert.Equal(t, int64(10), v)

	_, err = e.ApplyUserActions([]action.DocAction{
		{Name: action.UpdateRecord, Table: "Schools", RowID: schoolRow, Fields: map[ids.ColID]interface{}{"Factor": int64(7)}},
	})
	require.NoError(t, err)
	v, _ = studentsTable.Get("Double", studentRow)
	assert.Equal(t, int64(14), v, "editing the referenced row must recompute the referring formula")
}

// TestEngineLookupBasedSummary covers spec.md S1: States.Count is a lookup
// over Students by State, and both adding and removing a referring row keep
// the summary in sync via the synthetic lookup dependency node.
func TestEngineLookupBasedSummary(t *testing.T) {
	compiler := testCompiler{builders: map[string]func(e *Engine) FormulaEntry{
		"state_count": func(e *Engine) FormulaEntry {
			return FormulaEntry{
				Rel: relation.NewIdentity("States"),
				Fn: func(ctx *formula.EvalContext) (interface{}, error) {
					idx, node := e.LookupIndex("Students", []ids.ColID{"State"}, "")
					qrel := idx.RelationFor("States")
					rec := formula.NewRecord(ctx, "States", ctx.Row, relation.NewIdentity("States"))
					_, err := rec.Attr("Name") // establishes States as the referring table for this node, no-op value use
					if err != nil {
						return nil, err
					}
					key := idx.KeyFor([]interface{}{ctx.Row})
					qrel.Register(ctx.Row, key)
					ctx.Graph.AddEdge(ctx.Node, node, qrel)
					rows := idx.Query([]interface{}{ctx.Row})
					return int64(len(rows)), nil
				},
			}
		},
	}}
	e := newTestEngine(t, compiler)

	require.NoError(t, e.LoadTable("States", []ColumnDef{
		{ID: "Name", Type: column.Text, Kind: column.KindData},
		{ID: "Count", Type: column.Int, Kind: column.KindFormula, FormulaText: "state_count"},
	}, TableData{}))
	require.NoError(t, e.LoadTable("Students", []ColumnDef{
		{ID: "State", Type: column.Ref, Kind: column.KindData},
	}, TableData{}))
	require.NoError(t, e.LoadDone())

	_, err := e.ApplyUserActions([]action.DocAction{
		{Name: action.AddRecord, Table: "States", RowID: -1, Fields: map[ids.ColID]interface{}{"Name": "CA"}},
	})
	require.NoError(t, err)
	statesTable, err := e.Table("States")
	require.NoError(t, err)
	stateRow := statesTable.RowIDs()[0]

	v, _ := statesTable.Get("Count", stateRow)
	assert.Equal(t, int64(0), v)

	_, err = e.ApplyUserActions([]action.DocAction{
		{Name: action.AddRecord, Table: "Students", RowID: -1, Fields: map[ids.ColID]interface{}{"State": stateRow}},
	})
	require.NoError(t, err)
	v, _ = statesTable.Get("Count", stateRow)
	assert.Equal(t, int64(1), v)

	studentsTable, err := e.Table("Students")
	require.NoError(t, err)
	studentRow := studentsTable.RowIDs()[0]

	_, err = e.ApplyUserActions([]action.DocAction{
		{Name: action.RemoveRecord, Table: "Students", RowID: studentRow},
	})
	require.NoError(t, err)
	v, _ = statesTable.Get("Count", stateRow)
	assert.Equal(t, int64(0), v, "removing the referring row must re-sync the lookup summary")
}

// TestEngineCircularReferenceStoresError covers spec.md S3: a mutual-
// recursion formula pair is detected by the scheduler's recompute limit and
// stored as a boxed error, not a fatal ApplyUserActions failure.
func TestEngineCircularReferenceStoresError(t *testing.T) {
	compiler := testCompiler{builders: map[string]func(e *Engine) FormulaEntry{
		"circular_a": func(e *Engine) FormulaEntry {
			return FormulaEntry{Rel: relation.NewIdentity("T"), Fn: func(ctx *formula.EvalContext) (interface{}, error) {
				rec := formula.NewRecord(ctx, "T", ctx.Row, relation.NewIdentity("T"))
				b, err := rec.Attr("B")
				if err != nil {
					return nil, err
				}
				return b.(int64) + 1, nil
			}}
		},
		"circular_b": func(e *Engine) FormulaEntry {
			return FormulaEntry{Rel: relation.NewIdentity("T"), Fn: func(ctx *formula.EvalContext) (interface{}, error) {
				rec := formula.NewRecord(ctx, "T", ctx.Row, relation.NewIdentity("T"))
				a, err := rec.Attr("A")
				if err != nil {
					return nil, err
				}
				return a.(int64) + 1, nil
			}}
		},
	}}
	e := newTestEngine(t, compiler)

	require.NoError(t, e.LoadTable("T", []ColumnDef{
		{ID: "A", Type: column.Int, Kind: column.KindFormula, FormulaText: "circular_a"},
		{ID: "B", Type: column.Int, Kind: column.KindFormula, FormulaText: "circular_b"},
	}, TableData{}))
	require.NoError(t, e.LoadDone())

	_, err := e.ApplyUserActions([]action.DocAction{
		{Name: action.AddRecord, Table: "T", RowID: -1, Fields: map[ids.ColID]interface{}{}},
	})
	require.NoError(t, err, "a circular formula pair is not a fatal ApplyUserActions error")

	tbl, err := e.Table("T")
	require.NoError(t, err)
	row := tbl.RowIDs()[0]

	_, aOK := e.GetFormulaError("T", "A", row)
	_, bOK := e.GetFormulaError("T", "B", row)
	assert.True(t, aOK || bOK, "at least one side of the cycle must carry a stored CircularReference")
}

// TestEngineBulkAddRecordAcrossTempRowIDs covers spec.md S5: a submission
// that adds rows to two tables in one call, using a negative placeholder row
// id to have the second table's rows reference the first table's freshly
// allocated ids.
func TestEngineBulkAddRecordAcrossTempRowIDs(t *testing.T) {
	e := newTestEngine(t, testCompiler{builders: map[string]func(e *Engine) FormulaEntry{}})

	require.NoError(t, e.LoadTable("Schools", []ColumnDef{
		{ID: "Name", Type: column.Text, Kind: column.KindData},
	}, TableData{}))
	require.NoError(t, e.LoadTable("Students", []ColumnDef{
		{ID: "Name", Type: column.Text, Kind: column.KindData},
		{ID: "School", Type: column.Ref, Kind: column.KindData},
	}, TableData{}))
	require.NoError(t, e.LoadDone())

	bundle, err := e.ApplyUserActions([]action.DocAction{
		{Name: action.AddRecord, Table: "Schools", RowID: -1, Fields: map[ids.ColID]interface{}{"Name": "Hall"}},
		{Name: action.BulkAddRecord, Table: "Students", RowIDs: []ids.RowID{-10, -11}, ColValues: map[ids.ColID][]interface{}{
			"Name":   {"Ada", "Grace"},
			"School": {ids.RowID(-1), ids.RowID(-1)},
		}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, bundle.Stored)

	schools, err := e.Table("Schools")
	require.NoError(t, err)
	schoolRow := schools.RowIDs()[0]

	students, err := e.Table("Students")
	require.NoError(t, err)
	require.Len(t, students.RowIDs(), 2)
	for _, row := range students.RowIDs() {
		v, _ := students.Get("School", row)
		assert.Equal(t, schoolRow, v, "the BulkAddRecord's temp reference must resolve to the real allocated school row")
	}
}

// TestEngineSchemaErrorRollsBack covers spec.md §7: a submission that fails
// leaves no partial trace, verified by row count before and after.
func TestEngineSchemaErrorRollsBack(t *testing.T) {
	e := newTestEngine(t, testCompiler{builders: map[string]func(e *Engine) FormulaEntry{}})

	require.NoError(t, e.LoadTable("Students", []ColumnDef{
		{ID: "Name", Type: column.Text, Kind: column.KindData},
	}, TableData{}))
	require.NoError(t, e.LoadDone())

	students, err := e.Table("Students")
	require.NoError(t, err)

	_, err = e.ApplyUserActions([]action.DocAction{
		{Name: action.AddRecord, Table: "Students", RowID: -1, Fields: map[ids.ColID]interface{}{"Name": "Ada"}},
		{Name: action.AddRecord, Table: "NoSuchTable", RowID: -2, Fields: map[ids.ColID]interface{}{}},
	})
	require.Error(t, err)
	assert.Empty(t, students.RowIDs(), "a failing submission must leave the document exactly as it was")
}

// TestEngineSchemaActionBumpsVersion covers spec.md §4.K's version bump rule.
func TestEngineSchemaActionBumpsVersion(t *testing.T) {
	e := newTestEngine(t, testCompiler{builders: map[string]func(e *Engine) FormulaEntry{}})
	require.NoError(t, e.LoadTable("Students", []ColumnDef{
		{ID: "Name", Type: column.Text, Kind: column.KindData},
	}, TableData{}))
	require.NoError(t, e.LoadDone())

	before := e.GetVersion()
	_, err := e.ApplyUserActions([]action.DocAction{
		{Name: action.AddColumnAction, Table: "Students", Col: "Age", Type: column.Int, Kind: column.KindData},
	})
	require.NoError(t, err)
	assert.Equal(t, before+1, e.GetVersion())

	beforeData := e.GetVersion()
	_, err = e.ApplyUserActions([]action.DocAction{
		{Name: action.AddRecord, Table: "Students", RowID: -1, Fields: map[ids.ColID]interface{}{"Name": "Ada", "Age": int64(20)}},
	})
	require.NoError(t, err)
	assert.Equal(t, beforeData, e.GetVersion(), "a plain data edit must not bump the schema version")
}

// TestEngineUndoRestoresPriorState covers spec.md §8 invariant 1: applying a
// bundle's Undo stream (as its own submission) leaves the document
// indistinguishable from the pre-action state, including lookup-backed
// formula cells.
func TestEngineUndoRestoresPriorState(t *testing.T) {
	compiler := testCompiler{builders: map[string]func(e *Engine) FormulaEntry{
		"state_count": func(e *Engine) FormulaEntry {
			return FormulaEntry{
				Rel: relation.NewIdentity("States"),
				Fn: func(ctx *formula.EvalContext) (interface{}, error) {
					idx, node := e.LookupIndex("Students", []ids.ColID{"State"}, "")
					qrel := idx.RelationFor("States")
					qrel.Register(ctx.Row, idx.KeyFor([]interface{}{ctx.Row}))
					ctx.Graph.AddEdge(ctx.Node, node, qrel)
					return int64(len(idx.Query([]interface{}{ctx.Row}))), nil
				},
			}
		},
	}}
	e := newTestEngine(t, compiler)

	require.NoError(t, e.LoadTable("States", []ColumnDef{
		{ID: "Name", Type: column.Text, Kind: column.KindData},
		{ID: "Count", Type: column.Int, Kind: column.KindFormula, FormulaText: "state_count"},
	}, TableData{}))
	require.NoError(t, e.LoadTable("Students", []ColumnDef{
		{ID: "State", Type: column.Ref, Kind: column.KindData},
	}, TableData{}))
	require.NoError(t, e.LoadDone())

	_, err := e.ApplyUserActions([]action.DocAction{
		{Name: action.AddRecord, Table: "States", RowID: -1, Fields: map[ids.ColID]interface{}{"Name": "CA"}},
	})
	require.NoError(t, err)
	states, err := e.Table("States")
	require.NoError(t, err)
	stateRow := states.RowIDs()[0]

	bundle, err := e.ApplyUserActions([]action.DocAction{
		{Name: action.AddRecord, Table: "Students", RowID: -1, Fields: map[ids.ColID]interface{}{"State": stateRow}},
	})
	require.NoError(t, err)
	v, _ := states.Get("Count", stateRow)
	require.Equal(t, int64(1), v)

	_, err = e.ApplyUserActions(bundle.Undo)
	require.NoError(t, err)

	students, err := e.Table("Students")
	require.NoError(t, err)
	assert.Empty(t, students.RowIDs(), "undo must remove the added student")
	v, _ = states.Get("Count", stateRow)
	assert.Equal(t, int64(0), v, "undo must recompute the lookup summary back to its prior value")
}

// TestEngineLookupOrAddDerivedRollsBackOnError covers spec.md S6 and
// invariant 7: a formula that inserts a derived row and then raises leaves
// the derived table untouched, stores the error in every affected cell, and
// the returned bundle carries no trace of the reverted insertion.
func TestEngineLookupOrAddDerivedRollsBackOnError(t *testing.T) {
	compiler := testCompiler{builders: map[string]func(e *Engine) FormulaEntry{
		"derive_school_fail": func(e *Engine) FormulaEntry {
			return FormulaEntry{
				Rel: relation.NewIdentity("Students"),
				Fn: func(ctx *formula.EvalContext) (interface{}, error) {
					rec := formula.NewRecord(ctx, "Students", ctx.Row, relation.NewIdentity("Students"))
					city, err := rec.Attr("City")
					if err != nil {
						return nil, err
					}
					if _, err := e.LookupOrAddDerived(ctx, "Schools", []ids.ColID{"City"}, []interface{}{city}); err != nil {
						return nil, err
					}
					return nil, errors.New("x")
				},
			}
		},
	}}
	e := newTestEngine(t, compiler)

	require.NoError(t, e.LoadTable("Schools", []ColumnDef{
		{ID: "City", Type: column.Text, Kind: column.KindData},
	}, TableData{}))
	require.NoError(t, e.LoadTable("Students", []ColumnDef{
		{ID: "City", Type: column.Text, Kind: column.KindData},
		{ID: "School", Type: column.Any, Kind: column.KindFormula, FormulaText: "derive_school_fail"},
	}, TableData{}))
	require.NoError(t, e.LoadDone())

	bundle, err := e.ApplyUserActions([]action.DocAction{
		{Name: action.AddRecord, Table: "Students", RowID: -1, Fields: map[ids.ColID]interface{}{"City": "Cambridge"}},
		{Name: action.AddRecord, Table: "Students", RowID: -2, Fields: map[ids.ColID]interface{}{"City": "Lund"}},
	})
	require.NoError(t, err, "a raising formula is not a fatal ApplyUserActions error")

	schools, err := e.Table("Schools")
	require.NoError(t, err)
	assert.Empty(t, schools.RowIDs(), "the rolled-back insertion must not survive")
	for _, a := range bundle.Stored {
		assert.NotEqual(t, ids.TableID("Schools"), a.Table, "no returned action may mention the reverted row")
	}

	students, err := e.Table("Students")
	require.NoError(t, err)
	for _, row := range students.RowIDs() {
		_, hasErr := e.GetFormulaError("Students", "School", row)
		assert.True(t, hasErr, "each affected cell must store the raised error")
	}
}

// TestEngineLookupOrAddDerivedSharesOneRow covers the success path: two
// formula cells asking for the same key tuple share a single derived row,
// and the insertion surfaces in the bundle as a calc-attributable action.
func TestEngineLookupOrAddDerivedSharesOneRow(t *testing.T) {
	compiler := testCompiler{builders: map[string]func(e *Engine) FormulaEntry{
		"derive_school": func(e *Engine) FormulaEntry {
			return FormulaEntry{
				Rel: relation.NewIdentity("Students"),
				Fn: func(ctx *formula.EvalContext) (interface{}, error) {
					rec := formula.NewRecord(ctx, "Students", ctx.Row, relation.NewIdentity("Students"))
					city, err := rec.Attr("City")
					if err != nil {
						return nil, err
					}
					row, err := e.LookupOrAddDerived(ctx, "Schools", []ids.ColID{"City"}, []interface{}{city})
					if err != nil {
						return nil, err
					}
					return row, nil
				},
			}
		},
	}}
	e := newTestEngine(t, compiler)

	require.NoError(t, e.LoadTable("Schools", []ColumnDef{
		{ID: "City", Type: column.Text, Kind: column.KindData},
	}, TableData{}))
	require.NoError(t, e.LoadTable("Students", []ColumnDef{
		{ID: "City", Type: column.Text, Kind: column.KindData},
		{ID: "School", Type: column.Ref, Kind: column.KindFormula, FormulaText: "derive_school"},
	}, TableData{}))
	require.NoError(t, e.LoadDone())

	bundle, err := e.ApplyUserActions([]action.DocAction{
		{Name: action.BulkAddRecord, Table: "Students", RowIDs: []ids.RowID{-1, -2}, ColValues: map[ids.ColID][]interface{}{
			"City": {"Cambridge", "Cambridge"},
		}},
	})
	require.NoError(t, err)

	schools, err := e.Table("Schools")
	require.NoError(t, err)
	require.Len(t, schools.RowIDs(), 1, "both cells must share one derived row")
	schoolRow := schools.RowIDs()[0]
	city, _ := schools.Get("City", schoolRow)
	assert.Equal(t, "Cambridge", city)

	students, err := e.Table("Students")
	require.NoError(t, err)
	for _, row := range students.RowIDs() {
		v, _ := students.Get("School", row)
		assert.Equal(t, schoolRow, v)
	}

	foundInsert := false
	for i, a := range bundle.Stored {
		if a.Name == action.AddRecord && a.Table == "Schools" {
			foundInsert = true
			assert.False(t, bundle.Direct[i], "a derived insertion is calc-attributable, not direct")
		}
	}
	assert.True(t, foundInsert, "the surviving insertion must appear in the stored stream")
}

// TestEngineCalculateIsRecomputeOnly covers the Calculate user action: it
// recomputes every formula but emits no actions when nothing changed.
func TestEngineCalculateIsRecomputeOnly(t *testing.T) {
	compiler := testCompiler{builders: map[string]func(e *Engine) FormulaEntry{
		"double_age": func(e *Engine) FormulaEntry {
			return FormulaEntry{
				Rel: relation.NewIdentity("Students"),
				Fn: func(ctx *formula.EvalContext) (interface{}, error) {
					rec := formula.NewRecord(ctx, "Students", ctx.Row, relation.NewIdentity("Students"))
					age, err := rec.Attr("Age")
					if err != nil {
						return nil, err
					}
					return age.(int64) * 2, nil
				},
			}
		},
	}}
	e := newTestEngine(t, compiler)

	require.NoError(t, e.LoadTable("Students", []ColumnDef{
		{ID: "Age", Type: column.Int, Kind: column.KindData},
		{ID: "Double", Type: column.Int, Kind: column.KindFormula, FormulaText: "double_age"},
	}, TableData{}))
	require.NoError(t, e.LoadDone())

	_, err := e.ApplyUserActions([]action.DocAction{
		{Name: action.AddRecord, Table: "Students", RowID: -1, Fields: map[ids.ColID]interface{}{"Age": int64(5)}},
	})
	require.NoError(t, err)

	bundle, err := e.ApplyUserActions([]action.DocAction{{Name: action.Calculate}})
	require.NoError(t, err)
	assert.Empty(t, bundle.Stored, "an unchanged document recomputes to no calc actions")
	require.Len(t, bundle.RetValues, 1)
	assert.Nil(t, bundle.RetValues[0])

	students, err := e.Table("Students")
	require.NoError(t, err)
	v, _ := students.Get("Double", students.RowIDs()[0])
	assert.Equal(t, int64(10), v)
}

// TestEngineRequestStubThenRespond covers spec.md §5's REQUEST() suspension
// contract: the first evaluation stores a PendingValue stub, and the
// follow-up RespondToRequests user action delivers the real result and
// recomputes exactly the waiting cell.
func TestEngineRequestStubThenRespond(t *testing.T) {
	compiler := testCompiler{builders: map[string]func(e *Engine) FormulaEntry{
		"fetch_greeting": func(e *Engine) FormulaEntry {
			return FormulaEntry{
				Rel: relation.NewIdentity("T"),
				Fn: func(ctx *formula.EvalContext) (interface{}, error) {
					return e.Request(ctx, "GET", "https://example.com/greeting", nil)
				},
			}
		},
	}}
	e := newTestEngine(t, compiler)

	require.NoError(t, e.LoadTable("T", []ColumnDef{
		{ID: "Greeting", Type: column.Any, Kind: column.KindFormula, FormulaText: "fetch_greeting"},
	}, TableData{}))
	require.NoError(t, e.LoadDone())

	_, err := e.ApplyUserActions([]action.DocAction{
		{Name: action.AddRecord, Table: "T", RowID: -1, Fields: map[ids.ColID]interface{}{}},
	})
	require.NoError(t, err)

	tbl, err := e.Table("T")
	require.NoError(t, err)
	row := tbl.RowIDs()[0]
	v, _ := tbl.Get("Greeting", row)
	stub, ok := v.(PendingValue)
	require.True(t, ok, "the first evaluation must store a pending stub")
	require.NotEmpty(t, stub.Key)

	key, err := e.RequestKey("GET", "https://example.com/greeting", nil)
	require.NoError(t, err)
	assert.Equal(t, stub.Key, key)

	_, err = e.ApplyUserActions([]action.DocAction{
		{Name: action.RespondToRequests, Fields: map[ids.ColID]interface{}{ids.ColID(key): "hello"}},
	})
	require.NoError(t, err)
	v, _ = tbl.Get("Greeting", row)
	assert.Equal(t, "hello", v, "delivering the response must recompute the waiting cell")
}
