// Package useraction translates user-facing intents (spec.md §4.H) into the
// sequence of ground-truth document actions the engine actually applies,
// binding temporary negative row ids to their real allocated values,
// maintaining reverse-reference column pairs, and patching formula/ACL text
// when a column or table is renamed.
package useraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kasuganosora/sheetengine/pkg/action"
	"github.com/kasuganosora/sheetengine/pkg/column"
	"github.com/kasuganosora/sheetengine/pkg/docmodel"
	"github.com/kasuganosora/sheetengine/pkg/ids"
	"github.com/kasuganosora/sheetengine/pkg/predicate"
)

// ReversePair re-exports docmodel's reverse-reference pairing type for
// callers that only import pkg/useraction.
type ReversePair = docmodel.ReversePair

// Schema is the minimal docmodel surface the translator needs: table access
// for mutation and reverse-pair lookup for the one forward column involved
// in an edit, if any.
type Schema interface {
	action.Registry
	ReversePairFor(forward ids.Node) (docmodel.ReversePair, bool)
}

// ErrInvalidRequest reports a user action the translator cannot carry out as
// given (an unresolvable temporary row id, a rename target that collides
// with an existing name, …), matching spec.md §7's InvalidRequest kind.
type ErrInvalidRequest struct{ Msg string }

func (e *ErrInvalidRequest) Error() string { return "invalid request: " + e.Msg }

// Translator expands one submission's user actions into a Bundle of
// document actions, handling temp-row-id binding and reverse-reference
// maintenance along the way. It does not run formula recomputation itself —
// that is pkg/schedule's job, driven by the dirty nodes the caller derives
// from the Bundle's Stored actions.
type Translator struct {
	schema Schema
}

// NewTranslator returns a translator bound to schema.
func NewTranslator(schema Schema) *Translator {
	return &Translator{schema: schema}
}

// Translate applies every action in uas in order, in a single combined
// Bundle, resolving any negative row id in a RowID/RowIDs field (an AddRecord
// "please allocate an id for me and let later actions in this same
// submission refer back to it by this placeholder" per spec.md §4.H) to the
// real id the table assigns, and rewriting all later references to that
// placeholder throughout the rest of the submission.
//
// On error, Translate still returns the partial bundle accumulated before
// the failing action, so the caller (pkg/engine) can walk its Undo stream
// to roll the submission back in-process per spec.md §7 ("errors inside a
// user-action translator abort the entire submission"); Translate itself
// never rolls back, since it has no opinion on whether the caller wants the
// failed attempt's trace for diagnostics first.
func (tr *Translator) Translate(uas []action.DocAction) (*action.Bundle, error) {
	bundle := &action.Bundle{}
	tempToReal := make(map[ids.RowID]ids.RowID)

	for _, ua := range uas {
		resolved, err := tr.bindTempIDs(ua, tempToReal)
		if err != nil {
			return bundle, err
		}
		if err := tr.applyOne(bundle, resolved); err != nil {
			return bundle, err
		}
		bundle.RetValues = append(bundle.RetValues, retValueFor(resolved))
	}
	return bundle, nil
}

// retValueFor is the per-user-action entry in the bundle's RetValues stream:
// row-creating actions return the allocated id(s) (with temp placeholders
// already resolved), everything else has no interesting return.
func retValueFor(ua action.DocAction) interface{} {
	switch ua.Name {
	case action.AddRecord:
		return ua.RowID
	case action.BulkAddRecord:
		return ua.RowIDs
	default:
		return nil
	}
}

// bindTempIDs allocates real row ids for any negative placeholder ids an
// AddRecord/BulkAddRecord carries, records the mapping, and rewrites every
// negative id referenced elsewhere in ua (its own Fields/ColValues, for
// Ref/RefList-typed values pointing at a row added earlier in the same
// submission) to the real id.
func (tr *Translator) bindTempIDs(ua action.DocAction, tempToReal map[ids.RowID]ids.RowID) (action.DocAction, error) {
	switch ua.Name {
	case action.AddRecord:
		if ua.RowID < 0 {
			table, err := tr.schema.Table(ua.Table)
			if err != nil {
				return ua, err
			}
			real := table.AllocateRowID()
			tempToReal[ua.RowID] = real
			ua.RowID = real
		}
	case action.BulkAddRecord:
		table, err := tr.schema.Table(ua.Table)
		if err != nil {
			return ua, err
		}
		for i, row := range ua.RowIDs {
			if row < 0 {
				real := table.AllocateRowID()
				tempToReal[row] = real
				ua.RowIDs[i] = real
			}
		}
	default:
		if real, ok := tempToReal[ua.RowID]; ok {
			ua.RowID = real
		}
		for i, row := range ua.RowIDs {
			if real, ok := tempToReal[row]; ok {
				ua.RowIDs[i] = real
			}
		}
	}
	rewriteTempRefs(ua.Fields, tempToReal)
	for _, vals := range ua.ColValues {
		rewriteTempRefsSlice(vals, tempToReal)
	}
	for _, vals := range ua.TableData {
		rewriteTempRefsSlice(vals, tempToReal)
	}
	return ua, nil
}

func rewriteTempRefs(fields map[ids.ColID]interface{}, tempToReal map[ids.RowID]ids.RowID) {
	for col, v := range fields {
		fields[col] = rewriteTempRef(v, tempToReal)
	}
}

func rewriteTempRefsSlice(vals []interface{}, tempToReal map[ids.RowID]ids.RowID) {
	for i, v := range vals {
		vals[i] = rewriteTempRef(v, tempToReal)
	}
}

func rewriteTempRef(v interface{}, tempToReal map[ids.RowID]ids.RowID) interface{} {
	switch val := v.(type) {
	case ids.RowID:
		if val < 0 {
			if real, ok := tempToReal[val]; ok {
				return real
			}
		}
		return val
	case []ids.RowID:
		out := make([]ids.RowID, len(val))
		for i, r := range val {
			if r < 0 {
				if real, ok := tempToReal[r]; ok {
					out[i] = real
					continue
				}
			}
			out[i] = r
		}
		return out
	default:
		return v
	}
}

// applyOne performs ua's mutation, captures its inverse (reading prior state
// first where Inverse can't derive it from ua alone), and appends it to
// bundle as direct. AddColumn on a table with zero rows downgrades a
// formula column with no body to a plain data column, since an empty
// formula on an empty table is always a data-entry intent.
func (tr *Translator) applyOne(bundle *action.Bundle, ua action.DocAction) error {
	switch ua.Name {
	case action.UpdateRecord, action.BulkUpdateRecord, action.AddRecord, action.BulkAddRecord:
		if err := tr.applyWithReverseMaintenance(bundle, ua); err != nil {
			return err
		}
	case action.RemoveColumnAction, action.ModifyColumnAction:
		if err := tr.captureAndApplyColumnChange(bundle, ua); err != nil {
			return err
		}
	case action.RenameColumnAction:
		if err := tr.renameColumn(bundle, ua); err != nil {
			return err
		}
	case action.RenameTableAction:
		if err := tr.renameTable(bundle, ua); err != nil {
			return err
		}
	case action.AddColumnAction:
		if ua.Kind == column.KindFormula && ua.FormulaText == "" {
			if table, err := tr.schema.Table(ua.Table); err == nil && len(table.RowIDs()) == 0 {
				ua.Kind = column.KindData
			}
		}
		if err := action.Apply(tr.schema, ua); err != nil {
			return err
		}
		bundle.AppendStored(ua, true)
	default:
		if err := action.Apply(tr.schema, ua); err != nil {
			return err
		}
		bundle.AppendStored(ua, true)
	}
	return nil
}

// applyWithReverseMaintenance applies a row add/update and, if the edited
// column is the forward half of a reverse-reference pair, also issues the
// UpdateRecord(s) needed to keep the reverse column's row lists correct.
func (tr *Translator) applyWithReverseMaintenance(bundle *action.Bundle, ua action.DocAction) error {
	table, err := tr.schema.Table(ua.Table)
	if err != nil {
		return err
	}

	type edit struct {
		col       ids.ColID
		rows      []ids.RowID
		oldValues []interface{}
		newValues []interface{}
	}
	var edits []edit
	switch ua.Name {
	case action.AddRecord:
		for col, v := range ua.Fields {
			edits = append(edits, edit{col: col, rows: []ids.RowID{ua.RowID}, oldValues: []interface{}{nil}, newValues: []interface{}{v}})
		}
	case action.UpdateRecord:
		for col, v := range ua.Fields {
			old, _ := table.Get(col, ua.RowID)
			edits = append(edits, edit{col: col, rows: []ids.RowID{ua.RowID}, oldValues: []interface{}{old}, newValues: []interface{}{v}})
		}
	case action.BulkAddRecord:
		for col, vals := range ua.ColValues {
			old := make([]interface{}, len(ua.RowIDs))
			edits = append(edits, edit{col: col, rows: ua.RowIDs, oldValues: old, newValues: vals})
		}
	case action.BulkUpdateRecord:
		for col, vals := range ua.ColValues {
			old := make([]interface{}, len(ua.RowIDs))
			for i, r := range ua.RowIDs {
				old[i], _ = table.Get(col, r)
			}
			edits = append(edits, edit{col: col, rows: ua.RowIDs, oldValues: old, newValues: vals})
		}
	}

	priorInverse, err := tr.captureRecordInverse(table, ua)
	if err != nil {
		return err
	}
	if err := action.Apply(tr.schema, ua); err != nil {
		return err
	}
	bundle.Stored = append(bundle.Stored, ua)
	bundle.Direct = append(bundle.Direct, true)
	bundle.Undo = append([]action.DocAction{priorInverse}, bundle.Undo...)

	for _, e := range edits {
		node := ids.Node{Table: ua.Table, Col: e.col}
		pair, ok := tr.schema.ReversePairFor(node)
		if !ok || pair.Forward != node {
			continue
		}
		reverseTable, err := tr.schema.Table(pair.Reverse.Table)
		if err != nil {
			return err
		}
		adjustments := docmodel.GetReverseAdjustments(e.rows, e.oldValues, e.newValues,
			func(v interface{}) []ids.RowID { return forwardValueRows(v) },
			func(targetRow ids.RowID) []ids.RowID {
				cur, _ := reverseTable.Get(pair.Reverse.Col, targetRow)
				return forwardValueRows(cur)
			})
		for _, adj := range adjustments {
			old, _ := reverseTable.Get(pair.Reverse.Col, adj.TargetRow)
			upd := action.DocAction{
				Name:  action.UpdateRecord,
				Table: pair.Reverse.Table,
				RowID: adj.TargetRow,
				Fields: map[ids.ColID]interface{}{
					pair.Reverse.Col: adj.NewValue,
				},
			}
			if err := action.Apply(tr.schema, upd); err != nil {
				return err
			}
			inv := action.DocAction{
				Name:  action.UpdateRecord,
				Table: pair.Reverse.Table,
				RowID: adj.TargetRow,
				Fields: map[ids.ColID]interface{}{
					pair.Reverse.Col: old,
				},
			}
			bundle.Stored = append(bundle.Stored, upd)
			bundle.Direct = append(bundle.Direct, true)
			bundle.Undo = append([]action.DocAction{inv}, bundle.Undo...)
		}
	}
	return nil
}

func forwardValueRows(v interface{}) []ids.RowID {
	switch val := v.(type) {
	case ids.RowID:
		if val == ids.NoRow {
			return nil
		}
		return []ids.RowID{val}
	case []ids.RowID:
		return val
	default:
		return nil
	}
}

// captureRecordInverse builds the pre-apply inverse for an AddRecord/
// UpdateRecord/Bulk* action, reading whatever prior state Inverse can't
// derive from the forward action's own fields alone (UpdateRecord's old
// field values).
func (tr *Translator) captureRecordInverse(table *column.Table, ua action.DocAction) (action.DocAction, error) {
	switch ua.Name {
	case action.UpdateRecord:
		old := make(map[ids.ColID]interface{}, len(ua.Fields))
		for col := range ua.Fields {
			v, _ := table.Get(col, ua.RowID)
			old[col] = v
		}
		return action.DocAction{Name: action.UpdateRecord, Table: ua.Table, RowID: ua.RowID, Fields: old}, nil
	case action.BulkUpdateRecord:
		old := make(map[ids.ColID][]interface{}, len(ua.ColValues))
		for col := range ua.ColValues {
			vals := make([]interface{}, len(ua.RowIDs))
			for i, r := range ua.RowIDs {
				vals[i], _ = table.Get(col, r)
			}
			old[col] = vals
		}
		return action.DocAction{Name: action.BulkUpdateRecord, Table: ua.Table, RowIDs: ua.RowIDs, ColValues: old}, nil
	default:
		return ua.Inverse(), nil
	}
}

// captureAndApplyColumnChange reads a column's current type/kind/formula
// before RemoveColumn/ModifyColumn discards them, so Inverse can restore the
// exact prior definition.
func (tr *Translator) captureAndApplyColumnChange(bundle *action.Bundle, ua action.DocAction) error {
	table, err := tr.schema.Table(ua.Table)
	if err != nil {
		return err
	}
	col, err := table.Column(ua.Col)
	if err != nil {
		return err
	}
	ua.PriorType = col.Type
	ua.PriorKind = col.Kind
	ua.PriorFormulaText = col.FormulaText
	if err := action.Apply(tr.schema, ua); err != nil {
		return err
	}
	bundle.AppendStored(ua, true)
	return nil
}

// renameColumn renames the column and patches every formula and ACL rule and
// trigger condition that referenced the old name via pkg/predicate.Rename,
// so a rename's text edits are byte-identical to the original except for
// the renamed identifier spans themselves. Dropdown-condition text is not
// yet modeled as a column/table anywhere in docmodel (see DESIGN.md), so
// there is nothing to patch for it.
func (tr *Translator) renameColumn(bundle *action.Bundle, ua action.DocAction) error {
	table, err := tr.schema.Table(ua.Table)
	if err != nil {
		return err
	}
	if _, err := table.Column(ua.Col); err != nil {
		return err
	}
	if err := action.Apply(tr.schema, ua); err != nil {
		return err
	}
	bundle.AppendStored(ua, true)

	cr := colRename{
		table:     ua.Table,
		oldCol:    ua.Col,
		newCol:    ua.NewCol,
		userAttrs: tr.userAttrsForTable(ua.Table),
	}

	for _, col := range table.Columns() {
		if col.FormulaText == "" {
			continue
		}
		patched, changed, err := cr.patch(col.FormulaText, ua.Table)
		if err != nil {
			return err
		}
		if !changed {
			continue
		}
		old := col.FormulaText
		modify := action.DocAction{
			Name: action.ModifyColumnAction, Table: ua.Table, Col: col.ColID,
			Type: col.Type, Kind: col.Kind, FormulaText: patched,
			PriorType: col.Type, PriorKind: col.Kind, PriorFormulaText: old,
		}
		if err := action.Apply(tr.schema, modify); err != nil {
			return err
		}
		bundle.AppendStored(modify, true)
	}

	if err := tr.patchACLRulesForRename(bundle, cr); err != nil {
		return err
	}
	if err := tr.patchTriggersForRename(bundle, cr); err != nil {
		return err
	}
	if err := tr.patchACLResourcesForColumnRename(bundle, ua.Table, ua.Col, ua.NewCol); err != nil {
		return err
	}
	return tr.patchUserAttributesForColumnRename(bundle, ua.Table, ua.Col, ua.NewCol)
}

// patchACLRulesForRename patches aclFormula on every _grist_ACLRules row,
// per spec.md §4.H ("patch every ACL formula ... through the predicate
// rewriter") — the S4 scenario from spec.md §8. rec.Old only changes on
// rules whose resource governs the renamed table (resolved through
// _grist_ACLResources.tableId), but user.<Attr>.Old changes everywhere,
// since a user attribute points at its lookup table no matter which table
// the rule governs. If the meta tables aren't loaded (a document built
// without LoadEmpty's schema), there is nothing to walk and the rename
// still succeeds on the column itself.
func (tr *Translator) patchACLRulesForRename(bundle *action.Bundle, cr colRename) error {
	rules, err := tr.schema.Table(docmodel.MetaACLRules)
	if err != nil {
		return nil
	}
	resources, _ := tr.schema.Table(docmodel.MetaACLResources)
	governedTable := func(resRow ids.RowID) ids.TableID {
		if resources == nil {
			return ""
		}
		tid, _ := resources.Get("tableId", resRow)
		s, _ := tid.(string)
		return ids.TableID(s)
	}
	for _, row := range rules.SortedRowIDs() {
		formulaVal, _ := rules.Get("aclFormula", row)
		formulaText, _ := formulaVal.(string)
		if formulaText == "" {
			continue
		}
		var governed ids.TableID
		if res, _ := rules.Get("resource", row); res != nil {
			if resRow, ok := res.(ids.RowID); ok {
				governed = governedTable(resRow)
			}
		}
		patched, changed, err := cr.patch(formulaText, governed)
		if err != nil {
			return err
		}
		if !changed {
			continue
		}
		if err := tr.applyMetaTextUpdate(bundle, docmodel.MetaACLRules, row, "aclFormula", formulaText, patched); err != nil {
			return err
		}
	}
	return nil
}

// patchTriggersForRename patches isReadyFormula on every _grist_Triggers
// row, per spec.md §4.H ("patch ... trigger-condition JSON through the
// predicate rewriter"). The trigger's own tableId scopes rec.Old matches;
// user.<Attr>.Old matches on every trigger regardless of table.
func (tr *Translator) patchTriggersForRename(bundle *action.Bundle, cr colRename) error {
	triggers, err := tr.schema.Table(docmodel.MetaTriggers)
	if err != nil {
		return nil
	}
	for _, row := range triggers.SortedRowIDs() {
		tid, _ := triggers.Get("tableId", row)
		s, _ := tid.(string)
		formulaVal, _ := triggers.Get("isReadyFormula", row)
		formulaText, _ := formulaVal.(string)
		if formulaText == "" {
			continue
		}
		patched, changed, err := cr.patch(formulaText, ids.TableID(s))
		if err != nil {
			return err
		}
		if !changed {
			continue
		}
		if err := tr.applyMetaTextUpdate(bundle, docmodel.MetaTriggers, row, "isReadyFormula", formulaText, patched); err != nil {
			return err
		}
	}
	return nil
}

// patchACLResourcesForColumnRename rewrites the renamed column inside every
// _grist_ACLResources.colIds comma-separated list scoped to the renamed
// table ('*' wildcards are left alone).
func (tr *Translator) patchACLResourcesForColumnRename(bundle *action.Bundle, table ids.TableID, oldCol, newCol ids.ColID) error {
	resources, err := tr.schema.Table(docmodel.MetaACLResources)
	if err != nil {
		return nil
	}
	for _, row := range resources.SortedRowIDs() {
		tid, _ := resources.Get("tableId", row)
		if s, ok := tid.(string); !ok || ids.TableID(s) != table {
			continue
		}
		raw, _ := resources.Get("colIds", row)
		src, _ := raw.(string)
		if src == "" || src == "*" {
			continue
		}
		parts := strings.Split(src, ",")
		changed := false
		for i, p := range parts {
			if ids.ColID(strings.TrimSpace(p)) == oldCol {
				parts[i] = string(newCol)
				changed = true
			}
		}
		if !changed {
			continue
		}
		if err := tr.applyMetaTextUpdate(bundle, docmodel.MetaACLResources, row, "colIds", src, strings.Join(parts, ",")); err != nil {
			return err
		}
	}
	return nil
}

// patchUserAttributesForColumnRename rewrites the lookupColId field inside
// every userAttributes blob whose lookup table is the renamed table and
// whose lookup column is the renamed column.
func (tr *Translator) patchUserAttributesForColumnRename(bundle *action.Bundle, table ids.TableID, oldCol, newCol ids.ColID) error {
	rules, err := tr.schema.Table(docmodel.MetaACLRules)
	if err != nil {
		return nil
	}
	for _, row := range rules.SortedRowIDs() {
		raw, _ := rules.Get("userAttributes", row)
		src, _ := raw.(string)
		ua, ok := parseUserAttribute(src)
		if !ok {
			continue
		}
		if ids.TableID(ua.TableID) != table || ids.ColID(ua.LookupColID) != oldCol {
			continue
		}
		ua.LookupColID = string(newCol)
		patched, err := json.Marshal(ua)
		if err != nil {
			return err
		}
		if err := tr.applyMetaTextUpdate(bundle, docmodel.MetaACLRules, row, "userAttributes", src, string(patched)); err != nil {
			return err
		}
	}
	return nil
}

// applyMetaTextUpdate applies a single-column UpdateRecord against a meta
// table row and records it (and its inverse) into bundle directly, the same
// manual shape applyWithReverseMaintenance uses for reverse-column
// adjustments: UpdateRecord's generic Inverse() only mirrors Fields back, so
// the prior text has to be captured by the caller before it is overwritten.
func (tr *Translator) applyMetaTextUpdate(bundle *action.Bundle, table ids.TableID, row ids.RowID, col ids.ColID, oldText, newText string) error {
	upd := action.DocAction{
		Name: action.UpdateRecord, Table: table, RowID: row,
		Fields: map[ids.ColID]interface{}{col: newText},
	}
	if err := action.Apply(tr.schema, upd); err != nil {
		return err
	}
	inv := action.DocAction{
		Name: action.UpdateRecord, Table: table, RowID: row,
		Fields: map[ids.ColID]interface{}{col: oldText},
	}
	bundle.Stored = append(bundle.Stored, upd)
	bundle.Direct = append(bundle.Direct, true)
	bundle.Undo = append([]action.DocAction{inv}, bundle.Undo...)
	return nil
}

// colRename describes one column rename for formula patching: rec.Old on
// the renamed table itself, plus user.<Attr>.Old for every user attribute
// whose lookup table is the renamed table.
type colRename struct {
	table     ids.TableID
	oldCol    ids.ColID
	newCol    ids.ColID
	userAttrs map[string]struct{}
}

// patch rewrites the rename's identifier references inside src, a formula
// attached to (or governing) attachedTable, leaving every other byte
// untouched. rec.Old only matches when attachedTable is the renamed table;
// user.<Attr>.Old matches in any formula, since a user attribute resolves
// to its lookup table regardless of where the formula lives.
func (cr colRename) patch(src string, attachedTable ids.TableID) (string, bool, error) {
	f, err := predicate.ParsePredicateFormula(src)
	if err != nil {
		// Formula text the parser can't handle (e.g. a host-specific helper
		// call outside the mini-language grammar) is left untouched rather
		// than failing the whole rename.
		return src, false, nil
	}
	changedAny := false
	patched, err := predicate.Rename(f, func(e predicate.NamedEntity) (string, bool) {
		switch e.Kind {
		case predicate.EntityRecCol:
			if attachedTable == cr.table && e.Col == string(cr.oldCol) {
				changedAny = true
				return string(cr.newCol), true
			}
		case predicate.EntityUserAttrCol:
			if _, ok := cr.userAttrs[e.Attr]; ok && e.Col == string(cr.oldCol) {
				changedAny = true
				return string(cr.newCol), true
			}
		}
		return "", false
	})
	if err != nil {
		return src, false, err
	}
	return patched, changedAny, nil
}

// userAttribute mirrors the JSON blob stored in
// _grist_ACLRules.userAttributes: user.<Name> resolves to the row of
// TableID whose LookupColID cell matches the user's CharID value.
type userAttribute struct {
	Name        string `json:"name"`
	CharID      string `json:"charId"`
	TableID     string `json:"tableId"`
	LookupColID string `json:"lookupColId"`
}

func parseUserAttribute(src string) (userAttribute, bool) {
	if src == "" {
		return userAttribute{}, false
	}
	var ua userAttribute
	if err := json.Unmarshal([]byte(src), &ua); err != nil {
		return userAttribute{}, false
	}
	return ua, true
}

// userAttrsForTable collects the names of user attributes whose lookup
// table is table, from every userAttributes blob in _grist_ACLRules.
func (tr *Translator) userAttrsForTable(table ids.TableID) map[string]struct{} {
	out := make(map[string]struct{})
	rules, err := tr.schema.Table(docmodel.MetaACLRules)
	if err != nil {
		return out
	}
	for _, row := range rules.SortedRowIDs() {
		raw, _ := rules.Get("userAttributes", row)
		src, _ := raw.(string)
		ua, ok := parseUserAttribute(src)
		if !ok {
			continue
		}
		if ids.TableID(ua.TableID) == table {
			out[ua.Name] = struct{}{}
		}
	}
	return out
}

// renameTable applies RenameTable and patches every place that references
// the table by name: _grist_ACLResources.tableId, the tableId inside every
// _grist_ACLRules.userAttributes blob, and _grist_Triggers.tableId. Formula
// bodies here are host-compiled identifiers (see the Compiler seam in
// pkg/engine), so there is no module-level table name inside them to patch.
func (tr *Translator) renameTable(bundle *action.Bundle, ua action.DocAction) error {
	if err := action.Apply(tr.schema, ua); err != nil {
		return err
	}
	bundle.AppendStored(ua, true)
	if err := tr.patchACLResourcesForTableRename(bundle, ua.Table, ua.NewTable); err != nil {
		return err
	}
	if err := tr.patchUserAttributesForTableRename(bundle, ua.Table, ua.NewTable); err != nil {
		return err
	}
	return tr.patchTriggersForTableRename(bundle, ua.Table, ua.NewTable)
}

// patchACLResourcesForTableRename rewrites _grist_ACLResources.tableId on
// every resource row naming the renamed table.
func (tr *Translator) patchACLResourcesForTableRename(bundle *action.Bundle, oldID, newID ids.TableID) error {
	resources, err := tr.schema.Table(docmodel.MetaACLResources)
	if err != nil {
		return nil
	}
	for _, row := range resources.SortedRowIDs() {
		tid, _ := resources.Get("tableId", row)
		s, ok := tid.(string)
		if !ok || ids.TableID(s) != oldID {
			continue
		}
		if err := tr.applyMetaTextUpdate(bundle, docmodel.MetaACLResources, row, "tableId", s, string(newID)); err != nil {
			return err
		}
	}
	return nil
}

// patchUserAttributesForTableRename rewrites the tableId field inside every
// userAttributes blob naming the renamed table.
func (tr *Translator) patchUserAttributesForTableRename(bundle *action.Bundle, oldID, newID ids.TableID) error {
	rules, err := tr.schema.Table(docmodel.MetaACLRules)
	if err != nil {
		return nil
	}
	for _, row := range rules.SortedRowIDs() {
		raw, _ := rules.Get("userAttributes", row)
		src, _ := raw.(string)
		ua, ok := parseUserAttribute(src)
		if !ok || ids.TableID(ua.TableID) != oldID {
			continue
		}
		ua.TableID = string(newID)
		patched, err := json.Marshal(ua)
		if err != nil {
			return err
		}
		if err := tr.applyMetaTextUpdate(bundle, docmodel.MetaACLRules, row, "userAttributes", src, string(patched)); err != nil {
			return err
		}
	}
	return nil
}

// patchTriggersForTableRename rewrites _grist_Triggers.tableId, which this
// schema carries by name (see docmodel.LoadEmpty) so that later column
// renames can still match trigger rows against their table.
func (tr *Translator) patchTriggersForTableRename(bundle *action.Bundle, oldID, newID ids.TableID) error {
	triggers, err := tr.schema.Table(docmodel.MetaTriggers)
	if err != nil {
		return nil
	}
	for _, row := range triggers.SortedRowIDs() {
		tid, _ := triggers.Get("tableId", row)
		s, ok := tid.(string)
		if !ok || ids.TableID(s) != oldID {
			continue
		}
		if err := tr.applyMetaTextUpdate(bundle, docmodel.MetaTriggers, row, "tableId", s, string(newID)); err != nil {
			return err
		}
	}
	return nil
}

// TransformAndFinishImport is a named stub: the file-importer subsystem
// (transform rules, hidden staging tables) is out of scope, but the
// user-action dispatch table stays complete.
func (tr *Translator) TransformAndFinishImport(ua action.DocAction) (*action.Bundle, error) {
	return nil, &ErrInvalidRequest{Msg: fmt.Sprintf("TransformAndFinishImport is not supported (table %s)", ua.Table)}
}
