// Package relation implements the relation algebra used by the dependency
// graph: a Relation maps rows in a dependency (input) column to the rows in
// a dependent (output) column that must be recomputed when the input rows
// change. Identity relations pass rows through unchanged, reference
// relations follow a foreign-key-like column via an inverse map, and
// composed relations chain two relations end to end, memoized by instance
// identity so repeated compositions of the same pair return the same object.
package relation

import "github.com/kasuganosora/sheetengine/pkg/ids"

// Relation maps input (dependency) rows to output (dependent) rows.
type Relation interface {
	// ReferringTable is the table of the node that depends on something
	// (the out_node's table).
	ReferringTable() ids.TableID
	// TargetTable is the table of the node being depended on (the
	// in_node's table).
	TargetTable() ids.TableID
	// Affected returns, for the given input rows, the set of output rows
	// that must be recomputed. input may be ids.AllRows().
	Affected(input ids.Rows) ids.Rows
	// ResetRows is called immediately before the given output rows are
	// recomputed, telling the relation to forget any state keyed on them.
	ResetRows(outputRows ids.Rows)
	// ResetAll is ResetRows(ids.AllRows()); called when an edge using this
	// relation is dropped entirely.
	ResetAll()
	// Compose returns the composition self-then-other: Affected(x) ==
	// self.Affected(other.Affected(x)).
	Compose(other Relation) Relation
}

// Base provides the identity-keyed composition memo shared by every
// concrete relation, mirroring relation.py's Relation.compose /
// _target_relations.
type Base struct {
	referringTable ids.TableID
	targetTable    ids.TableID
	composedWith   map[Relation]*Composed
}

func NewBase(referringTable, targetTable ids.TableID) Base {
	return Base{referringTable: referringTable, targetTable: targetTable}
}

func (b Base) ReferringTable() ids.TableID { return b.referringTable }
func (b Base) TargetTable() ids.TableID    { return b.targetTable }

// composeVia builds (or returns the memoized) Composed(self, other). self is
// passed in explicitly since base itself doesn't know its own wrapping
// Relation value.
func (b *Base) ComposeVia(self, other Relation) Relation {
	if b.composedWith == nil {
		b.composedWith = make(map[Relation]*Composed)
	}
	if c, ok := b.composedWith[other]; ok {
		return c
	}
	c := &Composed{
		Base:   NewBase(self.ReferringTable(), other.TargetTable()),
		Source: self,
		Target: other,
	}
	b.composedWith[other] = c
	return c
}

// Identity is the trivial same-row mapping within one table.
type Identity struct {
	Base
	table ids.TableID
}

// NewIdentity returns Identity(table).
func NewIdentity(table ids.TableID) *Identity {
	return &Identity{Base: NewBase(table, table), table: table}
}

func (r *Identity) Affected(input ids.Rows) ids.Rows { return input }
func (r *Identity) ResetRows(ids.Rows)                {}
func (r *Identity) ResetAll()                         {}

// Compose is intentionally NOT optimized away (Identity+Rel is not
// equivalent to Rel for ResetRows purposes) — see ComposedRelation's
// ResetRows, which only forwards to the source side.
func (r *Identity) Compose(other Relation) Relation { return r.ComposeVia(r, other) }

// SingleRowIdentity behaves like Identity except that it refuses to
// propagate ALL_ROWS: a whole-column invalidation (e.g. from a rename or
// type change) does not recompute every row of a dependent trigger formula,
// only specific changed rows do.
type SingleRowIdentity struct {
	Identity
}

// NewSingleRowIdentity returns SingleRowIdentity(table).
func NewSingleRowIdentity(table ids.TableID) *SingleRowIdentity {
	return &SingleRowIdentity{Identity: *NewIdentity(table)}
}

func (r *SingleRowIdentity) Affected(input ids.Rows) ids.Rows {
	if input.IsAll() {
		return ids.NoRows()
	}
	return input
}

func (r *SingleRowIdentity) Compose(other Relation) Relation { return r.ComposeVia(r, other) }

// Composed is function composition of two relations: Affected(x) ==
// Source.Affected(Target.Affected(x)). Composition is associative but
// ResetRows only ever forwards to Source (the referring side); the target
// side is independent and has nothing to reset for rows on the referring
// side.
type Composed struct {
	Base
	Source Relation
	Target Relation
}

// NewComposed builds Composed(source, target) directly, bypassing the
// memoization in Compose. Prefer calling source.Compose(target) so equal
// compositions collapse to the same instance (duplicate edges depend on
// this for set membership).
func NewComposed(source, target Relation) *Composed {
	return &Composed{
		Base:   NewBase(source.ReferringTable(), target.TargetTable()),
		Source: source,
		Target: target,
	}
}

func (r *Composed) Affected(input ids.Rows) ids.Rows {
	return r.Source.Affected(r.Target.Affected(input))
}

func (r *Composed) ResetRows(outputRows ids.Rows) {
	// Only the source (referring) side is being recomputed; the target
	// side's state is unrelated to which referring rows are dirty.
	r.Source.ResetRows(outputRows)
}

func (r *Composed) ResetAll() { r.Source.ResetRows(ids.AllRows()) }

func (r *Composed) Compose(other Relation) Relation { return r.ComposeVia(r, other) }

// Reference maintains the inverse index for a reference column: dst_row ->
// set(src_row). A whole-column invalidation (ALL_ROWS) propagates as a
// whole, since every referring row might point anywhere.
type Reference struct {
	Base
	refCol     ids.ColID
	inverseMap map[ids.RowID]map[ids.RowID]struct{}
}

// NewReference returns Reference(srcTable, refCol, dstTable).
func NewReference(srcTable ids.TableID, refCol ids.ColID, dstTable ids.TableID) *Reference {
	return &Reference{
		Base:       NewBase(srcTable, dstTable),
		refCol:     refCol,
		inverseMap: make(map[ids.RowID]map[ids.RowID]struct{}),
	}
}

func (r *Reference) Affected(input ids.Rows) ids.Rows {
	if input.IsAll() {
		return ids.AllRows()
	}
	out := ids.NoRows()
	input.Each(func(targetRow ids.RowID) {
		for srcRow := range r.inverseMap[targetRow] {
			out.Add(srcRow)
		}
	})
	return out
}

func (r *Reference) ResetRows(ids.Rows) {}
func (r *Reference) ResetAll()          { r.Clear() }

func (r *Reference) Compose(other Relation) Relation { return r.ComposeVia(r, other) }

// AddReference records that referring_row_id (in the referring table) points
// at target_row_id (in the target table).
func (r *Reference) AddReference(referringRow, targetRow ids.RowID) {
	if targetRow == ids.NoRow {
		return
	}
	set, ok := r.inverseMap[targetRow]
	if !ok {
		set = make(map[ids.RowID]struct{})
		r.inverseMap[targetRow] = set
	}
	set[referringRow] = struct{}{}
}

// RemoveReference undoes AddReference.
func (r *Reference) RemoveReference(referringRow, targetRow ids.RowID) {
	if set, ok := r.inverseMap[targetRow]; ok {
		delete(set, referringRow)
		if len(set) == 0 {
			delete(r.inverseMap, targetRow)
		}
	}
}

// Clear drops the entire inverse index, e.g. when the edge using this
// relation is removed from the dependency graph.
func (r *Reference) Clear() {
	r.inverseMap = make(map[ids.RowID]map[ids.RowID]struct{})
}
