package predicate

import "sort"

// EntityKind classifies one renamable identifier reference found while
// parsing a predicate formula, mirroring the four reference shapes
// process_renames distinguishes.
type EntityKind int

const (
	// EntityRecCol is rec.ColName: a reference to a column of the table the
	// formula is attached to.
	EntityRecCol EntityKind = iota
	// EntityUserAttr is user.Attr: a reference to a built-in user attribute
	// (Name, Email, ...) with no column of its own to rename.
	EntityUserAttr
	// EntityUserAttrCol is user.Attr.ColName: a reference to ColName on the
	// table a user attribute (e.g. user.Office) resolves into.
	EntityUserAttrCol
	// EntityChoiceAttr is choice.ColName: used in dropdown-condition formulas
	// to reference a column of the row supplying candidate choices.
	EntityChoiceAttr
)

// RawEntity is one entity reference as found during parsing, with its
// position expressed as a byte offset into the rewritten (post $ -> rec.)
// source the parser actually tokenized.
type RawEntity struct {
	Kind EntityKind
	Attr string // the user.Attr name, for EntityUserAttr/EntityUserAttrCol
	Col  string // the column name, for EntityRecCol/EntityUserAttrCol/EntityChoiceAttr
	Pos  int    // byte offset (into rewritten text) of the identifier itself
	Len  int
}

// NamedEntity is a RawEntity translated back to a position in the original
// (pre-rewrite) source text, ready for patch construction.
type NamedEntity struct {
	RawEntity
	OrigPos int
}

// Entities translates f's parsed RawEntity references back into the
// original source's coordinates.
func (f *Formula) Entities() []NamedEntity {
	node, entities, err := ParseWithEntities(f.Rewritten)
	_ = node
	if err != nil {
		return nil
	}
	out := make([]NamedEntity, 0, len(entities))
	for _, e := range entities {
		out = append(out, NamedEntity{RawEntity: e, OrigPos: origPos(f.PosMap, e.Pos)})
	}
	return out
}

// Renamer decides the replacement identifier text for one entity, or
// returns ("", false) to leave it untouched.
type Renamer func(NamedEntity) (string, bool)

// Rename applies renamer to every entity in f's original source and returns
// the patched text. Only the exact identifier bytes of matched entities are
// replaced; everything else — whitespace, comments, string literals,
// operators — is carried over byte for byte, so formulas that match no
// rename come back byte-identical to the input.
func Rename(f *Formula, renamer Renamer) (string, error) {
	entities := f.Entities()
	sort.Slice(entities, func(i, j int) bool { return entities[i].OrigPos < entities[j].OrigPos })

	var patches []Patch
	for _, e := range entities {
		newText, ok := renamer(e)
		if !ok {
			continue
		}
		patches = append(patches, Patch{Start: e.OrigPos, End: e.OrigPos + len(e.identText()), Text: newText})
	}
	return ApplyPatches(f.Source, patches), nil
}

// identText is the identifier substring this entity's rename targets: the
// column name for rec./choice. references, the attribute name itself for a
// bare user.Attr (which has no column component).
func (e NamedEntity) identText() string {
	if e.Kind == EntityUserAttr {
		return e.Attr
	}
	return e.Col
}
