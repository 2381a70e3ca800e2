// Package download schedules asset acquisition for a batch of items.
//
// # Manager
//
// The Manager drives every item through the same steps:
//
//  1. Wait for an admission permit from the concurrency governor
//  2. Expand the item into asset requests
//  3. Resolve each request from the cache, or fetch/synthesize it with retries
//  4. Record newly acquired files in the cache
//  5. Emit exactly one AssetManifest for the item and release the permit
//
// # Basic Usage
//
//	manager := download.NewManager(settings, func(event download.ProgressEvent) {
//	    fmt.Println(event.Message)
//	})
//
//	manifests, err := manager.Run(ctx, items)
//	if err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
//
// # Concurrency
//
// Admission limits how many items are in flight at once. The limit starts at
// settings.BaselineConcurrency, halves on every rate-limit signal and doubles
// after settings.GrowAfterSuccesses consecutive successes, never exceeding
// settings.MaxConcurrency. The requests of one admitted item run concurrently
// and share its single permit.
//
// # Retry Logic
//
// Each asset gets at most settings.MaxAttempts attempts. Rate-limited and
// transient failures wait out an exponential, jittered backoff before the
// next attempt; permanent failures stop immediately.
//
// # Progress Tracking
//
// Progress is reported via a callback function that receives ProgressEvent:
//
//	type ProgressEvent struct {
//	    Message string
//	    Level   ProgressLevel // Info, Verbose, Warning, Error, Success
//	}
//
// GetProgress returns counters suitable for a progress bar.
package download
