package opt

import (
	"runtime"

	"github.com/cockroachdb/errors"
)

// CatchOptimizerError converts a value recovered from a panic into an error.
// The engine reports broken invariants by panicking so that internal code
// does not need error checks everywhere; entry points recover and call this:
//
//	defer func() {
//		if r := recover(); r != nil {
//			err = opt.CatchOptimizerError(r)
//		}
//	}()
//
// This is only possible because an optimization owns all of its state and
// holds no locks.
func CatchOptimizerError(r any) error {
	err, ok := r.(error)
	if !ok {
		// Not an error object. For serious internal errors e.g. in the
		// scheduler, bad goroutine state, allocator problem etc, the go
		// runtime throws a string which does not implement error. So in this
		// case we suspect we are not able to recover, and must crash.
		panic(r)
	}
	if errors.HasInterface(err, (*runtime.Error)(nil)) {
		// Convert runtime errors to assertion failures, which include stacks.
		return errors.HandleAsAssertionFailure(err)
	}
	return err
}
