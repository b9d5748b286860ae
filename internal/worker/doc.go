// Package worker provides the single background goroutine on which
// autocomplete store queries run.
//
//	w := worker.New()
//	defer w.Close()
//
//	var h types.ResultHandle
//	err := w.Do(ctx, func(ctx context.Context) {
//	    h, _ = r.QueryMentionCandidates(ctx, "mar")
//	})
//
// Jobs run in submission order. A job that has started always runs to
// completion before Do returns, so handles it opens can be disposed by the
// caller.
package worker
