// Package ctxutil provides context utility functions.
package ctxutil

import "context"

// Canceled reports whether the context has been canceled or exceeded its
// deadline, returning the context error (Canceled or DeadlineExceeded) or
// nil. Store, provider, and executor entry points call this before doing
// any work.
//
// ctx.Err() already returns nil while Done is open, so no select with a
// default case is needed.
func Canceled(ctx context.Context) error {
	return ctx.Err()
}
