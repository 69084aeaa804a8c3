package action

// Bundle is the four-stream result of applying one submission of user
// actions, plus the return value of each user action, per spec.md §4.G.
type Bundle struct {
	// Stored is every document action applied, in order.
	Stored []DocAction
	// Direct[i] is true iff Stored[i] was issued by the user-action
	// translator directly, rather than produced as a recompute side effect.
	Direct []bool
	// Calc is the subset of Stored attributable to formula recomputation,
	// in recompute order.
	Calc []DocAction
	// Undo is the inverse of every action in Stored, in reverse order.
	Undo []DocAction
	// RetValues holds one entry per user action in the submission.
	RetValues []interface{}
}

// AppendStored records a document action as applied, tracking whether it was
// direct (translator-issued) or a calc side effect, and pushes its inverse
// onto the front of Undo (since Undo must be the exact reverse order).
func (b *Bundle) AppendStored(a DocAction, direct bool) {
	b.Stored = append(b.Stored, a)
	b.Direct = append(b.Direct, direct)
	if !direct {
		b.Calc = append(b.Calc, a)
	}
	b.Undo = append([]DocAction{a.Inverse()}, b.Undo...)
}

// Merge appends another bundle's stored/direct/calc/undo/retValues onto b,
// preserving stream ordering (other's undo, which is already reversed
// relative to other's stored, is prepended ahead of b's existing undo so the
// combined undo stream still fully reverses the combined stored stream).
func (b *Bundle) Merge(other *Bundle) {
	b.Stored = append(b.Stored, other.Stored...)
	b.Direct = append(b.Direct, other.Direct...)
	b.Calc = append(b.Calc, other.Calc...)
	b.Undo = append(other.Undo, b.Undo...)
	b.RetValues = append(b.RetValues, other.RetValues...)
}

// SubBundle is the tentative record of document actions performed inside a
// single formula evaluation (currently only lookupOrAddDerived can produce
// one). If the formula raises, Rollback applies every recorded inverse in
// reverse order before the error is stored in the cell, so the outer bundle
// retains no trace of the reverted operations — this is the "scoped
// acquisition with guaranteed release on every exit path" pattern from
// spec.md §9, specialized to formula side effects instead of connection
// state.
type SubBundle struct {
	actions []DocAction
}

// NewSubBundle starts a fresh tentative sub-bundle for one formula
// evaluation.
func NewSubBundle() *SubBundle { return &SubBundle{} }

// Record appends an applied document action to the tentative sub-bundle.
func (s *SubBundle) Record(a DocAction) { s.actions = append(s.actions, a) }

// Actions returns the tentative actions recorded so far, in apply order.
func (s *SubBundle) Actions() []DocAction {
	out := make([]DocAction, len(s.actions))
	copy(out, s.actions)
	return out
}

// Rollback returns the inverses of every recorded action, in reverse order,
// ready to be applied to undo them. It does not itself touch engine state;
// the caller (pkg/formula) applies each inverse through the same applier
// used for forward actions.
func (s *SubBundle) Rollback() []DocAction {
	out := make([]DocAction, len(s.actions))
	for i, a := range s.actions {
		out[len(s.actions)-1-i] = a.Inverse()
	}
	return out
}

// Commit folds the tentative actions into an outer bundle as calc actions
// (lookupOrAddDerived side effects are always recompute-attributable, never
// user-direct).
func (s *SubBundle) Commit(b *Bundle) {
	for _, a := range s.actions {
		b.AppendStored(a, false)
	}
}
