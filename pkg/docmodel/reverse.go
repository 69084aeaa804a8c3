package docmodel

import (
	"reflect"

	"github.com/kasuganosora/sheetengine/pkg/ids"
)

// ReverseAdjustment is one target-table row whose reverse-reference column
// must be rewritten to newValue (sorted row ids), per spec.md §4.J.
type ReverseAdjustment struct {
	TargetRow ids.RowID
	NewValue  []ids.RowID
}

// refUpdates accumulates the per-target-row removals/additions implied by a
// change to the source (forward) reference column, mirroring
// reverse_references.py's _RefUpdates.
type refUpdates struct {
	removals  map[ids.RowID]struct{}
	additions map[ids.RowID]struct{}
}

// GetReverseAdjustments computes, for each changed row of a Ref/RefList
// source column, the set of target rows whose reverse column must gain or
// lose the source row, then reads each target row's *current* reverse value
// via currentValue and applies the delta — ported method-for-method from
// get_reverse_adjustments in reverse_references.py.
//
// rowIDs, oldValues, newValues are parallel slices over the rows of the
// source column that changed. valueIterator extracts the target row ids a
// single cell value points at (a Ref cell yields zero-or-one row, a RefList
// cell yields each element). currentValue returns the reverse column's
// present value for one target row, as the set of source rows it currently
// lists (the caller reads it before any adjustment is applied).
func GetReverseAdjustments(
	rowIDs []ids.RowID,
	oldValues, newValues []interface{},
	valueIterator func(interface{}) []ids.RowID,
	currentValue func(targetRow ids.RowID) []ids.RowID,
) []ReverseAdjustment {
	affected := make(map[ids.RowID]*refUpdates)

	touch := func(targetRow ids.RowID) *refUpdates {
		u, ok := affected[targetRow]
		if !ok {
			u = &refUpdates{removals: make(map[ids.RowID]struct{}), additions: make(map[ids.RowID]struct{})}
			affected[targetRow] = u
		}
		return u
	}

	var order []ids.RowID
	seen := make(map[ids.RowID]struct{})
	remember := func(targetRow ids.RowID) {
		if _, ok := seen[targetRow]; !ok {
			seen[targetRow] = struct{}{}
			order = append(order, targetRow)
		}
	}

	for i, sourceRow := range rowIDs {
		oldVal, newVal := oldValues[i], newValues[i]
		if reflect.DeepEqual(oldVal, newVal) {
			continue
		}
		for _, targetRow := range valueIterator(oldVal) {
			touch(targetRow).removals[sourceRow] = struct{}{}
			remember(targetRow)
		}
		for _, targetRow := range valueIterator(newVal) {
			touch(targetRow).additions[sourceRow] = struct{}{}
			remember(targetRow)
		}
	}

	out := make([]ReverseAdjustment, 0, len(order))
	for _, targetRow := range order {
		u := affected[targetRow]
		current := currentValue(targetRow)
		set := make(map[ids.RowID]struct{}, len(current))
		for _, r := range current {
			set[r] = struct{}{}
		}
		for r := range u.removals {
			delete(set, r)
		}
		for r := range u.additions {
			set[r] = struct{}{}
		}
		out = append(out, ReverseAdjustment{TargetRow: targetRow, NewValue: sortRowIDs(set)})
	}
	return out
}

func sortRowIDs(set map[ids.RowID]struct{}) []ids.RowID {
	out := make([]ids.RowID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	for i := 1; i < len(out); i++ {
		v := out[i]
		j := i - 1
		for j >= 0 && out[j] > v {
			out[j+1] = out[j]
			j--
		}
		out[j+1] = v
	}
	return out
}
