package engine

import "fmt"

// Error kinds per spec.md §7, one struct per kind grounded on the teacher's
// pkg/resource/domain/errors.go one-struct-per-kind style.

// SchemaError reports a malformed or self-inconsistent document action
// (e.g. AddColumn on a table that doesn't exist). Fatal for the whole
// submission: the engine rolls back to the state before the submission and
// surfaces this kind to the host.
type SchemaError struct{ Msg string }

func (e *SchemaError) Error() string { return "SchemaError: " + e.Msg }

// CircularReferenceError is returned by GetFormulaError for a cell whose
// stored value is the CircularReference the scheduler wrote; it is never
// itself returned by ApplyUserActions, since schedule.Recompute contains the
// condition locally (stored in the cell, not fatal).
type CircularReferenceError struct{ Msg string }

func (e *CircularReferenceError) Error() string { return "CircularReference: " + e.Msg }

// FormulaErrorKind mirrors a non-circular formula exception stored in a
// cell, surfaced the same way.
type FormulaErrorKind struct{ Msg string }

func (e *FormulaErrorKind) Error() string { return "FormulaError: " + e.Msg }

// TypeConversionError reports that ModifyColumn changed a column's type and
// some cell could not be coerced; the cell becomes an AltText instead.
type TypeConversionError struct {
	Table, Col string
	Msg        string
}

func (e *TypeConversionError) Error() string {
	return fmt.Sprintf("TypeConversionError: %s.%s: %s", e.Table, e.Col, e.Msg)
}

// InvalidRequestError reports an unknown entry point name or a well-formed
// action the translator refuses outright (e.g. RenameColumn onto an
// existing colId).
type InvalidRequestError struct{ Msg string }

func (e *InvalidRequestError) Error() string { return "InvalidRequest: " + e.Msg }

// ErrInconsistentUndo is raised when a submission's computed undo stream,
// replayed, fails to restore every table's pre-submission row count — the
// "internal schema inconsistent after undo" detection spec.md §7 requires.
// Column sets and cell values are not compared. When this fires the engine
// rolls the submission back by applying the bundle's Undo stream; no
// separate snapshot is kept.
type ErrInconsistentUndo struct{ Msg string }

func (e *ErrInconsistentUndo) Error() string { return "internal schema inconsistent after undo: " + e.Msg }

// ClassifyError splits an error returned by a Dispatch call into the
// (kind, message) pair wire.ExcBody expects, per spec.md §7's "ErrorKind
// message" EXC body. Anything not one of the typed kinds above is reported
// as a generic SchemaError, the catch-all for "something about the
// submission or request was wrong" per §7.
func ClassifyError(err error) (kind, message string) {
	switch e := err.(type) {
	case *SchemaError:
		return "SchemaError", e.Msg
	case *CircularReferenceError:
		return "CircularReference", e.Msg
	case *FormulaErrorKind:
		return "FormulaError", e.Msg
	case *TypeConversionError:
		return "TypeConversionError", e.Error()
	case *InvalidRequestError:
		return "InvalidRequest", e.Msg
	case *ErrInconsistentUndo:
		return "InconsistentUndo", e.Msg
	default:
		return "SchemaError", err.Error()
	}
}
