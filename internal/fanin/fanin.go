// Package fanin joins a batch of independent concurrent tasks into one
// completed result set. Each task writes only to the slot of its own input
// index, so the batch always holds exactly one result per input regardless
// of completion order.
package fanin

import (
	"fmt"

	"github.com/sourcegraph/conc/iter"
)

// Join runs fn once per item, all concurrently, and returns after every call
// has finished. The result slice has len(items) entries in input order.
//
// A panic inside fn is recovered and handed to recoverFn, whose return value
// fills that item's slot; the other tasks are unaffected.
func Join[T, R any](items []T, fn func(T) R, recoverFn func(T, error) R) []R {
	if len(items) == 0 {
		return []R{}
	}

	mapper := iter.Mapper[T, R]{MaxGoroutines: len(items)}

	return mapper.Map(items, func(item *T) (result R) {
		defer func() {
			if r := recover(); r != nil {
				result = recoverFn(*item, fmt.Errorf("panic: %v", r))
			}
		}()

		return fn(*item)
	})
}
