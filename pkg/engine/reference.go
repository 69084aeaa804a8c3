package engine

import (
	"fmt"

	"github.com/kasuganosora/sheetengine/pkg/ids"
	"github.com/kasuganosora/sheetengine/pkg/relation"
)

// referenceEntry is one memoized Reference relation plus the source column
// it tracks, so rebuildReferencesForTable knows which column to rescan.
type referenceEntry struct {
	rel     *relation.Reference
	srcCol  ids.ColID
	dstTable ids.TableID
}

func referenceKey(srcTable ids.TableID, refCol ids.ColID, dstTable ids.TableID) ids.Node {
	return ids.Node{Table: srcTable, Col: ids.ColID(fmt.Sprintf("%s->%s", refCol, dstTable))}
}

// ReferenceRelation returns the (lazily created, memoized) Reference
// relation for srcTable.refCol pointing at dstTable, used by a compiled
// formula's rec.Follow(refCol) edge registration (formula.Record.Follow),
// per spec.md §4.D's reference-column relation.
//
// Unlike the lookup index registry, this engine does not track precise
// AddReference/RemoveReference deltas as individual cells change — doing so
// would require plumbing every Ref/RefList write's old and new value through
// to this layer, which the current action/useraction plumbing does not carry
// end to end. Instead a newly created relation is filled from srcTable's
// current contents, and the whole inverse map is rebuilt from scratch
// (rebuildReferencesForTable) whenever a submission touches srcTable; this
// is simpler and still correct, at the cost of O(row count) work per
// touched table per submission rather than O(rows actually changed).
func (e *Engine) ReferenceRelation(srcTable ids.TableID, refCol ids.ColID, dstTable ids.TableID) *relation.Reference {
	node := referenceKey(srcTable, refCol, dstTable)
	entry, ok := e.references[node]
	if !ok {
		rel := relation.NewReference(srcTable, refCol, dstTable)
		entry = &referenceEntry{rel: rel, srcCol: refCol, dstTable: dstTable}
		e.references[node] = entry
		e.referencesByTable[srcTable] = append(e.referencesByTable[srcTable], entry)
		e.rebuildReferencesForTable(srcTable)
	}
	return entry.rel
}

// rebuildReferencesForTable re-scans every registered Reference relation
// whose source is table and rebuilds its inverse map from the table's
// current cell contents.
func (e *Engine) rebuildReferencesForTable(table ids.TableID) {
	entries := e.referencesByTable[table]
	if len(entries) == 0 {
		return
	}
	t, err := e.model.Table(table)
	if err != nil {
		return
	}
	for _, entry := range entries {
		entry.rel.Clear()
		for _, row := range t.RowIDs() {
			v, _ := t.Get(entry.srcCol, row)
			switch val := v.(type) {
			case ids.RowID:
				entry.rel.AddReference(row, val)
			case []ids.RowID:
				for _, target := range val {
					entry.rel.AddReference(row, target)
				}
			}
		}
	}
}
