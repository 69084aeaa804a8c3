// Package lookup implements the lookup index infrastructure that serves
// lookupRecords/lookupOne: a map from a key tuple (the values of one or more
// "keyed" columns) to the set of row ids sharing that tuple, optionally kept
// in order-by order, plus the dependency bookkeeping that lets a formula
// cell subscribe to "rows with this exact tuple" and get invalidated only
// when a row's before- or after-change tuple matches.
//
// Invalidation keys off a map from tuple to the set of dependents rather
// than scanning every registered query on every change, so cost scales with
// the number of rows actually affected, not the number of queries anyone
// has ever made.
package lookup

import (
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/kasuganosora/sheetengine/pkg/ids"
	"github.com/kasuganosora/sheetengine/pkg/relation"
)

// Key is the hash-normalized representation of a key-tuple.
type Key string

// unhashableKey is the sentinel tuple used for rows whose keyed columns
// hold a value that can't be reduced to a stable key (e.g. a raw slice
// before normalization).
const unhashableKey Key = "\x00unhashable\x00"

// MakeKey builds the normalized Key for a tuple of cell values, in key
// column order. Text values go through Unicode NFC normalization so that
// canonically-equivalent strings (e.g. different combining-character
// sequences for the same glyphs) hash identically.
func MakeKey(values []interface{}) Key {
	parts := make([]string, len(values))
	for i, v := range values {
		switch val := v.(type) {
		case string:
			parts[i] = "s:" + norm.NFC.String(val)
		case []string, []interface{}, map[string]interface{}:
			return unhashableKey
		case nil:
			parts[i] = "n:"
		default:
			parts[i] = fmt.Sprintf("v:%v", val)
		}
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\x1f"
		}
		out += p
	}
	return Key(out)
}

// orderedSet is a set of row ids, optionally kept sorted by an order key
// (falling back to the row id itself as a tiebreak, per spec.md §4.D).
type orderedSet struct {
	ordered   bool
	rows      []ids.RowID
	member    map[ids.RowID]struct{}
	orderKeys map[ids.RowID]interface{}
}

func newOrderedSet(ordered bool) *orderedSet {
	return &orderedSet{ordered: ordered, member: make(map[ids.RowID]struct{})}
}

func (s *orderedSet) less(a, b ids.RowID) bool {
	if s.ordered {
		ka, kb := s.orderKeys[a], s.orderKeys[b]
		if cmp, ok := compareOrderKeys(ka, kb); ok && cmp != 0 {
			return cmp < 0
		}
	}
	return a < b // row id tiebreak
}

func compareOrderKeys(a, b interface{}) (int, bool) {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1, true
			case av > bv:
				return 1, true
			default:
				return 0, true
			}
		}
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1, true
			case av > bv:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	return 0, false
}

func (s *orderedSet) Add(rowID ids.RowID, orderKey interface{}) {
	if _, ok := s.member[rowID]; ok {
		return
	}
	s.member[rowID] = struct{}{}
	if s.ordered {
		if s.orderKeys == nil {
			s.orderKeys = make(map[ids.RowID]interface{})
		}
		s.orderKeys[rowID] = orderKey
		idx := sort.Search(len(s.rows), func(i int) bool { return !s.less(s.rows[i], rowID) })
		s.rows = append(s.rows, 0)
		copy(s.rows[idx+1:], s.rows[idx:])
		s.rows[idx] = rowID
	} else {
		s.rows = append(s.rows, rowID)
	}
}

func (s *orderedSet) Remove(rowID ids.RowID) {
	if _, ok := s.member[rowID]; !ok {
		return
	}
	delete(s.member, rowID)
	if s.orderKeys != nil {
		delete(s.orderKeys, rowID)
	}
	for i, id := range s.rows {
		if id == rowID {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			break
		}
	}
}

func (s *orderedSet) Rows() []ids.RowID {
	out := make([]ids.RowID, len(s.rows))
	copy(out, s.rows)
	return out
}

func (s *orderedSet) Empty() bool { return len(s.rows) == 0 }

// delta records a row's key tuple before and after a change, so that
// QueryRelation.Affected can invalidate dependents of both the old and new
// tuple without rescanning the whole index.
type delta struct {
	old, new Key
}

// Index maintains lookupRecords/lookupOne state for one (table, key
// columns, order-by) combination.
type Index struct {
	TargetTable ids.TableID
	KeyCols     []ids.ColID
	OrderBy     ids.ColID // empty means unordered
	ordered     bool

	primary map[Key]*orderedSet
	rowKey  map[ids.RowID]Key
	pending map[ids.RowID]delta

	relations map[ids.TableID]*QueryRelation
}

// NewIndex returns an empty index over targetTable keyed by keyCols,
// optionally ordered by orderBy (pass "" for unordered).
func NewIndex(targetTable ids.TableID, keyCols []ids.ColID, orderBy ids.ColID) *Index {
	return &Index{
		TargetTable: targetTable,
		KeyCols:     append([]ids.ColID(nil), keyCols...),
		OrderBy:     orderBy,
		ordered:     orderBy != "",
		primary:     make(map[Key]*orderedSet),
		rowKey:      make(map[ids.RowID]Key),
		pending:     make(map[ids.RowID]delta),
		relations:   make(map[ids.TableID]*QueryRelation),
	}
}

// UpdateRow sets the current key tuple for rowID given the current values
// of its keyed columns (keyValues, same order as KeyCols) and, if ordered,
// its current order-by value. Call this whenever a keyed or order-by
// column's cell changes (including when the row is first inserted, with its
// initial values).
func (idx *Index) UpdateRow(rowID ids.RowID, keyValues []interface{}, orderValue interface{}) {
	newKey := MakeKey(keyValues)
	oldKey, hadOld := idx.rowKey[rowID]
	if hadOld && oldKey == newKey {
		return
	}
	if hadOld {
		if set, ok := idx.primary[oldKey]; ok {
			set.Remove(rowID)
			if set.Empty() {
				delete(idx.primary, oldKey)
			}
		}
	}
	set, ok := idx.primary[newKey]
	if !ok {
		set = newOrderedSet(idx.ordered)
		idx.primary[newKey] = set
	}
	set.Add(rowID, orderValue)
	idx.rowKey[rowID] = newKey

	effectiveOld := oldKey
	if !hadOld {
		effectiveOld = unhashableKey // no previous tuple; treat as "was nowhere"
	}
	idx.pending[rowID] = delta{old: effectiveOld, new: newKey}
}

// RemoveRow drops a row from the index entirely (the table row was deleted).
func (idx *Index) RemoveRow(rowID ids.RowID) {
	key, ok := idx.rowKey[rowID]
	if !ok {
		return
	}
	if set, ok := idx.primary[key]; ok {
		set.Remove(rowID)
		if set.Empty() {
			delete(idx.primary, key)
		}
	}
	delete(idx.rowKey, rowID)
	d := idx.pending[rowID]
	d.old = key
	d.new = unhashableKey
	idx.pending[rowID] = d
}

// Query returns the (ordered, if applicable) row ids matching keyValues, for
// lookupRecords. The caller (pkg/formula) is responsible for recording the
// dependency via RelationFor(...).Register.
func (idx *Index) Query(keyValues []interface{}) []ids.RowID {
	key := MakeKey(keyValues)
	set, ok := idx.primary[key]
	if !ok {
		return nil
	}
	return set.Rows()
}

// QueryOne is lookupOne: the first row of Query's result, or NoRow.
func (idx *Index) QueryOne(keyValues []interface{}) ids.RowID {
	rows := idx.Query(keyValues)
	if len(rows) == 0 {
		return ids.NoRow
	}
	return rows[0]
}

// KeyFor exposes MakeKey(keyValues) so formula.go can both query and
// register a dependency against the identical tuple in one round trip.
func (idx *Index) KeyFor(keyValues []interface{}) Key { return MakeKey(keyValues) }

// RelationFor returns the (memoized) QueryRelation for formulas evaluated in
// referringTable, creating it on first use.
func (idx *Index) RelationFor(referringTable ids.TableID) *QueryRelation {
	if r, ok := idx.relations[referringTable]; ok {
		return r
	}
	r := &QueryRelation{
		Base:       relation.NewBase(referringTable, idx.TargetTable),
		index:      idx,
		dependents: make(map[Key]map[ids.RowID]struct{}),
		rowTuples:  make(map[ids.RowID]map[Key]struct{}),
	}
	idx.relations[referringTable] = r
	return r
}

// deltaFor reads the most recent before/after tuple recorded for rowID by
// UpdateRow/RemoveRow. Called by QueryRelation.Affected. The entry is not
// consumed: one Index serves a QueryRelation per referring table, and each
// needs the same delta when its Affected runs. The next key change for the
// row overwrites the entry; a re-read between changes only re-invalidates
// rows the dirty-map union already holds.
func (idx *Index) deltaFor(rowID ids.RowID) (delta, bool) {
	d, ok := idx.pending[rowID]
	return d, ok
}

// QueryRelation is the relation.Relation edges use to connect a formula cell
// to this index's synthetic dependency node. One instance is kept per
// referring table (memoized by Index.RelationFor) so multiple formula cells
// in the same table that query the same tuple share registration bookkeeping
// naturally via the dependents map, which is what keeps invalidation
// amortized O(1) per dependent rather than O(number of registered queries).
type QueryRelation struct {
	relation.Base
	index *Index

	dependents map[Key]map[ids.RowID]struct{} // tuple -> dependent rows (in ReferringTable)
	rowTuples  map[ids.RowID]map[Key]struct{}  // dependent row -> tuples it has registered
}

// Register records that row referringRow (in this relation's ReferringTable)
// depends on the exact tuple keyValues currently returns. Call once per
// lookupRecords/lookupOne call a formula makes, alongside adding the graph
// edge (formulaNode, syntheticLookupNode, thisRelation).
func (r *QueryRelation) Register(referringRow ids.RowID, key Key) {
	set, ok := r.dependents[key]
	if !ok {
		set = make(map[ids.RowID]struct{})
		r.dependents[key] = set
	}
	set[referringRow] = struct{}{}
	tuples, ok := r.rowTuples[referringRow]
	if !ok {
		tuples = make(map[Key]struct{})
		r.rowTuples[referringRow] = tuples
	}
	tuples[key] = struct{}{}
}

// Affected implements relation.Relation: given target-table rows whose
// keyed columns changed, returns the referring-table rows that queried
// either the before- or after-change tuple.
func (r *QueryRelation) Affected(input ids.Rows) ids.Rows {
	if input.IsAll() {
		return ids.AllRows()
	}
	out := ids.NoRows()
	input.Each(func(rowID ids.RowID) {
		d, ok := r.index.deltaFor(rowID)
		if !ok {
			return
		}
		for dep := range r.dependents[d.old] {
			out.Add(dep)
		}
		for dep := range r.dependents[d.new] {
			out.Add(dep)
		}
	})
	return out
}

// ResetRows forgets the registered queries for the given dependent
// (referring-table) rows, since they are about to recompute and will
// re-register whatever they query this time.
func (r *QueryRelation) ResetRows(outputRows ids.Rows) {
	if outputRows.IsAll() {
		r.dependents = make(map[Key]map[ids.RowID]struct{})
		r.rowTuples = make(map[ids.RowID]map[Key]struct{})
		return
	}
	outputRows.Each(func(rowID ids.RowID) {
		for key := range r.rowTuples[rowID] {
			if set, ok := r.dependents[key]; ok {
				delete(set, rowID)
				if len(set) == 0 {
					delete(r.dependents, key)
				}
			}
		}
		delete(r.rowTuples, rowID)
	})
}

// ResetAll is ResetRows(ALL_ROWS).
func (r *QueryRelation) ResetAll() { r.ResetRows(ids.AllRows()) }

// Compose is memoized via the embedded relation.Base, same as every other
// relation variant.
func (r *QueryRelation) Compose(other relation.Relation) relation.Relation {
	return r.Base.ComposeVia(r, other)
}
