// Package http fetches remote image assets.
//
// Client.Fetch performs exactly one attempt and reports it as a
// model.AttemptOutcome:
//
//	HTTP 429                       -> RateLimited
//	HTTP 5xx, 408, timeouts, resets -> TransientError
//	other non-2xx                  -> PermanentError
//	2xx, body > MinSize            -> Success
//
// Requests carry browser-like headers (User-Agent, Accept, Accept-Language,
// Referer). The body is buffered, optionally transformed, and written to the
// destination atomically, so a failed attempt never leaves a partial file.
//
//	client := http.NewClient(http.Options{Timeout: 90 * time.Second, MinSize: 500})
//	out := client.Fetch(ctx, req)
//	if out.Signal == model.Success { ... }
package http
