package formula

import "fmt"

// Eval runs fn within ctx, recovering any panic raised by the formula body
// (a programming error inside a user-supplied Func, or an uncaught
// assertion) and turning it into a plain error — a formula's failure must
// never escape as an uncaught panic and take the whole recompute pass down
// with it, per spec.md §4.E/§7 ("errors inside a single formula are local").
//
// Eval itself does not decide whether to commit or roll back ctx's tentative
// sub-bundle; the caller (pkg/schedule) does that based on whether err is
// nil, since only the scheduler knows where the outer bundle lives.
func Eval(ctx *EvalContext, fn Func) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("formula panic: %v", r)
		}
	}()
	return fn(ctx)
}
