// Package resource holds the shared limits of a database.
//
// A [Controller] carries three independent limits:
//
//   - resident item memory, a soft budget kept in an atomic counter
//   - background workers, a weighted semaphore used while replaying pages
//   - IO bandwidth, a token bucket that paces backup archives
//
// Memory accounting never blocks. Callers check [Controller.Exceeds] before
// admitting more bytes and evict until it reports false or nothing is left
// to evict:
//
//	for rc.Exceeds(incoming) && evictOne() {
//	}
//	rc.AcquireMemory(incoming)
//
// Backups wrap their output so foreground block IO is not starved:
//
//	w := resource.NewRateLimitedWriter(ctx, out, rc)
//
// Every method accepts a nil receiver and then enforces nothing.
package resource
