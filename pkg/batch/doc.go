// Package batch drives records through VIES in two passes.
//
// A batch is first redistributed so consecutive calls hit different member
// states (Distribute). The Runner then looks up every record sequentially
// behind a throttle. Results rejected for the member state concurrency quota
// are run once more with a longer delay, and the Reconciler merges both
// passes back into input line order.
//
// # Basic Usage
//
//	runner := batch.NewRunner(viesClient, batch.Config{Logger: &logger})
//	rec := batch.NewReconciler(runner, batch.DefaultPolicy())
//
//	results, summary, err := rec.Reconcile(ctx, records)
//	if err != nil {
//		// ctx was cancelled; no partial result is returned
//	}
package batch
