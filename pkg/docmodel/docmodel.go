// Package docmodel is the engine's table directory and schema layer: the
// live map of column.Tables (both user tables and the _grist_* metadata
// tables that describe them), plus the schema-edit side effects spec.md
// §4.J assigns to docmodel (keeping a table record's denormalized column
// list in sync, maintaining reverse-reference pairs).
package docmodel

import (
	"fmt"
	"sync"

	"github.com/kasuganosora/sheetengine/pkg/column"
	"github.com/kasuganosora/sheetengine/pkg/ids"
)

// Meta table ids, per spec.md §4.J.
const (
	MetaTables       ids.TableID = "_grist_Tables"
	MetaColumns      ids.TableID = "_grist_Tables_column"
	MetaViewSections ids.TableID = "_grist_Views_section"
	MetaACLResources ids.TableID = "_grist_ACLResources"
	MetaACLRules     ids.TableID = "_grist_ACLRules"
	MetaTriggers     ids.TableID = "_grist_Triggers"
)

// Model owns every live table, user and metadata alike, guarded by a mutex
// since entry points (pkg/engine) may in principle be reached from more than
// one goroutine even though only one call is ever in flight at a time (see
// spec.md §5).
type Model struct {
	mu     sync.RWMutex
	tables map[ids.TableID]*column.Table
	order  []ids.TableID

	reversePairs map[ids.Node]ReversePair
}

// New returns an empty model with no tables at all, not even meta tables;
// callers typically follow with LoadEmpty to populate the meta-table schema.
func New() *Model {
	return &Model{
		tables:       make(map[ids.TableID]*column.Table),
		reversePairs: make(map[ids.Node]ReversePair),
	}
}

// ReversePair describes one forward/reverse reference column pairing: editing
// Forward's value on a row of Forward.Table must keep Reverse's value in sync
// on the referenced rows of Reverse.Table, per spec.md §4.J. Declared here
// (rather than in pkg/useraction, which applies the maintenance) since it is
// part of the schema docmodel owns.
type ReversePair struct {
	Forward ids.Node
	Reverse ids.Node
	// ForwardIsList is true when Forward is a RefList column (its cell value
	// is a []ids.RowID); false for a plain Ref (ids.RowID).
	ForwardIsList bool
}

// RegisterReversePair records that forward and reverse are a maintained
// reference/reverse-reference pair. Typically called when an AddColumn
// creates a Ref/RefList column with an explicit reverse-column target, per
// spec.md §4.J.
func (m *Model) RegisterReversePair(pair ReversePair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reversePairs[pair.Forward] = pair
}

// ReversePairFor returns the registered reverse pairing for forward, if any.
// Implements useraction.Schema.
func (m *Model) ReversePairFor(forward ids.Node) (ReversePair, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pair, ok := m.reversePairs[forward]
	return pair, ok
}

// Table returns the named table, or ErrTableNotFound. Implements
// action.Registry.
func (m *Model) Table(id ids.TableID) (*column.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[id]
	if !ok {
		return nil, &column.ErrTableNotFound{TableID: id}
	}
	return t, nil
}

// AddTable creates and registers a new empty table. Implements
// action.Registry.
func (m *Model) AddTable(id ids.TableID) (*column.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tables[id]; exists {
		return nil, &column.ErrTableExists{TableID: id}
	}
	t := column.NewTable(id)
	m.tables[id] = t
	m.order = append(m.order, id)
	return t, nil
}

// RemoveTable drops a table entirely. Implements action.Registry.
func (m *Model) RemoveTable(id ids.TableID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tables[id]; !exists {
		return &column.ErrTableNotFound{TableID: id}
	}
	delete(m.tables, id)
	for i, t := range m.order {
		if t == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// RenameTable changes a table's id in place, keeping its *column.Table
// identity (and therefore anything holding a direct reference to it, e.g. a
// lookup index's TargetTable bookkeeping keyed by pointer rather than name)
// valid across the rename. Implements action.Registry.
func (m *Model) RenameTable(oldID, newID ids.TableID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, exists := m.tables[oldID]
	if !exists {
		return &column.ErrTableNotFound{TableID: oldID}
	}
	if _, taken := m.tables[newID]; taken {
		return &column.ErrTableExists{TableID: newID}
	}
	delete(m.tables, oldID)
	t.ID = newID
	m.tables[newID] = t
	for i, id := range m.order {
		if id == oldID {
			m.order[i] = newID
			break
		}
	}
	return nil
}

// HasTable reports whether a table with this id currently exists.
func (m *Model) HasTable(id ids.TableID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tables[id]
	return ok
}

// TableIDs returns every table id, in creation order (user tables and meta
// tables alike).
func (m *Model) TableIDs() []ids.TableID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ids.TableID, len(m.order))
	copy(out, m.order)
	return out
}

// UserTableIDs returns every table id that is not one of the _grist_*
// metadata tables.
func (m *Model) UserTableIDs() []ids.TableID {
	all := m.TableIDs()
	out := make([]ids.TableID, 0, len(all))
	for _, id := range all {
		if !isMetaTable(id) {
			out = append(out, id)
		}
	}
	return out
}

func isMetaTable(id ids.TableID) bool {
	switch id {
	case MetaTables, MetaColumns, MetaViewSections, MetaACLResources, MetaACLRules, MetaTriggers:
		return true
	default:
		return false
	}
}

// ErrTableNotFound is re-exported for callers that only import docmodel.
type ErrTableNotFound = column.ErrTableNotFound

// LoadEmpty initializes the model with a fresh, empty metadata schema: the
// six _grist_* tables with their conventional columns, and no user tables.
// Mirrors the engine entry point load_empty() in spec.md §6.
func LoadEmpty() *Model {
	m := New()
	mustAddMetaTable(m, MetaTables, map[ids.ColID]column.Type{
		"tableId": column.Text,
		"primaryViewId": column.Ref,
	})
	mustAddMetaTable(m, MetaColumns, map[ids.ColID]column.Type{
		"parentId": column.Ref,
		"colId":    column.Text,
		"type":     column.Text,
		"isFormula": column.Bool,
		"formula":  column.Text,
		"label":    column.Text,
	})
	mustAddMetaTable(m, MetaViewSections, map[ids.ColID]column.Type{
		"tableRef": column.Ref,
		"title":    column.Text,
	})
	mustAddMetaTable(m, MetaACLResources, map[ids.ColID]column.Type{
		"tableId":  column.Text,
		"colIds":   column.Text,
	})
	mustAddMetaTable(m, MetaACLRules, map[ids.ColID]column.Type{
		"resource": column.Ref,
		"aclFormula": column.Text,
		"permissionsText": column.Text,
		// userAttributes holds a JSON blob binding user.<name> to a row of
		// tableId (matched by charId against lookupColId); rename
		// translations rewrite its tableId/lookupColId fields in place.
		"userAttributes": column.Text,
	})
	mustAddMetaTable(m, MetaTriggers, map[ids.ColID]column.Type{
		"tableRef": column.Ref,
		// tableId duplicates tableRef as a plain name, the same way
		// _grist_ACLResources carries tableId directly rather than only a
		// Ref — RenameColumn's translator matches trigger rows against the
		// table being renamed by name, not by resolving a _grist_Tables row.
		"tableId":       column.Text,
		"eventType":     column.Text,
		"isReadyColRef": column.Ref,
		// isReadyFormula holds the trigger condition's source text, so
		// RenameColumn has something to patch (spec.md §4.H: "patch ...
		// trigger-condition JSON through the predicate rewriter").
		"isReadyFormula": column.Text,
	})
	return m
}

func mustAddMetaTable(m *Model, id ids.TableID, cols map[ids.ColID]column.Type) {
	t, err := m.AddTable(id)
	if err != nil {
		panic(fmt.Sprintf("docmodel: duplicate meta table %s: %v", id, err))
	}
	for col, typ := range cols {
		if _, err := t.AddColumn(col, typ, column.KindData); err != nil {
			panic(fmt.Sprintf("docmodel: meta column %s.%s: %v", id, col, err))
		}
	}
}
