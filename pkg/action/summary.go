package action

import (
	"fmt"

	"github.com/kasuganosora/sheetengine/pkg/ids"
)

// cellKey identifies one cell for summary coalescing.
type cellKey struct {
	Table ids.TableID
	Col   ids.ColID
	Row   ids.RowID
}

// Summary coalesces repeated updates to the same cell within one recompute
// pass into a single logical change (first-seen old value, last-seen new
// value), so that a formula recomputing the same cell several times during a
// pass (e.g. once per dirtying edge) still emits one UpdateRecord rather than
// one per intermediate write. This is also what makes a pure recompute-only
// user action (Calculate) cheap: it flushes to at most one action per
// touched cell, not one per dependency-graph step.
type Summary struct {
	order []cellKey
	delta map[cellKey]*cellDelta
}

type cellDelta struct {
	old, new interface{}
}

// NewSummary returns an empty per-pass cell summary.
func NewSummary() *Summary {
	return &Summary{delta: make(map[cellKey]*cellDelta)}
}

// Record notes that (table, col, row) changed from oldVal to newVal. Called
// once per recompute write; repeated calls for the same cell keep the
// earliest old value and the latest new value.
func (s *Summary) Record(table ids.TableID, col ids.ColID, row ids.RowID, oldVal, newVal interface{}) {
	key := cellKey{table, col, row}
	if d, ok := s.delta[key]; ok {
		d.new = newVal
		return
	}
	s.delta[key] = &cellDelta{old: oldVal, new: newVal}
	s.order = append(s.order, key)
}

// Changed reports whether (table, col, row)'s coalesced old/new values
// differ; cells whose value round-tripped back to the original within one
// pass are not emitted.
func (s *Summary) Changed(table ids.TableID, col ids.ColID, row ids.RowID) bool {
	d, ok := s.delta[cellKey{table, col, row}]
	if !ok {
		return false
	}
	return !deltaEqual(d.old, d.new)
}

// deltaEqual compares cell values without tripping over non-comparable kinds
// (reference-list cells hold slices, which == would panic on).
func deltaEqual(a, b interface{}) bool {
	return fmt.Sprintf("%T|%v", a, a) == fmt.Sprintf("%T|%v", b, b)
}

// FlushByColumn groups the summary's net changes into one BulkUpdateRecord
// document action per (table, column), in first-touched row order, and
// clears the summary. Cells whose net change is a no-op are skipped.
func (s *Summary) FlushByColumn() []DocAction {
	type colGroup struct {
		table ids.TableID
		col   ids.ColID
		rows  []ids.RowID
		vals  []interface{}
	}
	order := []cellKey{}
	groups := make(map[ids.Node]*colGroup)
	groupOrder := []ids.Node{}
	for _, key := range s.order {
		d := s.delta[key]
		if deltaEqual(d.old, d.new) {
			continue
		}
		order = append(order, key)
		node := ids.Node{Table: key.Table, Col: key.Col}
		g, ok := groups[node]
		if !ok {
			g = &colGroup{table: key.Table, col: key.Col}
			groups[node] = g
			groupOrder = append(groupOrder, node)
		}
		g.rows = append(g.rows, key.Row)
		g.vals = append(g.vals, d.new)
	}
	out := make([]DocAction, 0, len(groupOrder))
	for _, node := range groupOrder {
		g := groups[node]
		out = append(out, DocAction{
			Name:      BulkUpdateRecord,
			Table:     g.table,
			RowIDs:    g.rows,
			ColValues: map[ids.ColID][]interface{}{g.col: g.vals},
		})
	}
	s.order = nil
	s.delta = make(map[cellKey]*cellDelta)
	return out
}
