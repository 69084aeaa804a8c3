package predicate

// Formula is a parsed predicate/ACL expression together with the position
// map needed to translate identifier spans in the tree back to byte offsets
// in the original (pre dollar-rewrite) source text, for renaming.
type Formula struct {
	Source    string
	Rewritten string
	PosMap    []int
	Tree      Node
}

// ParsePredicateFormula rewrites $NAME references to rec.NAME and parses the
// result, mirroring parse_predicate_formula. Use ParseACLFormula instead for
// the simpler dialect (no $ rewrite, no Call support) used by access rules
// that never reference the candidate record directly.
func ParsePredicateFormula(src string) (*Formula, error) {
	rewritten, posMap := Rewrite(src)
	tree, err := Parse(rewritten)
	if err != nil {
		return nil, err
	}
	return &Formula{Source: src, Rewritten: rewritten, PosMap: posMap, Tree: tree}, nil
}

// ParseACLFormula parses the source directly with no $ rewrite, for formula
// dialects (ACL resource/permission expressions) that only ever see user.*
// and rec.* written out in full.
func ParseACLFormula(src string) (*Formula, error) {
	tree, err := Parse(src)
	if err != nil {
		return nil, err
	}
	identity := make([]int, len(src))
	for i := range identity {
		identity[i] = i
	}
	return &Formula{Source: src, Rewritten: src, PosMap: identity, Tree: tree}, nil
}
