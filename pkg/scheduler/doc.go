// Package scheduler runs independent units of work with bounded concurrency.
//
// Jobs fan out over many (account, token) units. Units are cut into sequential
// batches; each batch runs on a worker pool of at most MaxConcurrency goroutines
// and a fixed BatchDelay separates batches to smooth the request rate upstream.
//
// Example usage:
//
//	tasks := []scheduler.Task[fetch.Outcome]{
//		{ID: "act_1", Run: func(ctx context.Context) (fetch.Outcome, error) {
//			return fetcher.FetchAll(ctx, req), nil
//		}},
//	}
//	results := scheduler.Run(ctx, scheduler.DefaultConfig(), tasks)
//
// The scheduler:
//   - Returns results in completion order, not submission order
//   - Recovers panics into Result.Err
//   - Marks tasks it never started (context done) with ErrNotStarted
package scheduler
