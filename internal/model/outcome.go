package model

import "time"

// Signal classifies the result of a single acquisition attempt.
type Signal int

const (
	// Success means the asset is on disk and large enough to be genuine.
	Success Signal = iota

	// RateLimited means the remote side asked us to slow down (HTTP 429).
	RateLimited

	// TransientError covers failures worth retrying: 5xx, timeouts,
	// connection errors, truncated bodies, synthesis failures.
	TransientError

	// PermanentError covers failures no retry can fix.
	PermanentError
)

// String returns the signal name used in logs and summaries.
func (s Signal) String() string {
	switch s {
	case Success:
		return "success"
	case RateLimited:
		return "rate_limited"
	case TransientError:
		return "transient"
	case PermanentError:
		return "permanent"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt may succeed.
func (s Signal) Retryable() bool {
	return s == RateLimited || s == TransientError
}

// AttemptOutcome is the result of one fetch or synthesis attempt.
type AttemptOutcome struct {
	Signal     Signal
	Attempt    int
	StatusCode int
	Bytes      int64
	Elapsed    time.Duration
	Err        error
}

// Succeeded builds a Success outcome.
func Succeeded(bytes int64, elapsed time.Duration) AttemptOutcome {
	return AttemptOutcome{Signal: Success, Bytes: bytes, Elapsed: elapsed}
}

// Failed builds a failed outcome with the given classification.
func Failed(signal Signal, err error, elapsed time.Duration) AttemptOutcome {
	return AttemptOutcome{Signal: signal, Err: err, Elapsed: elapsed}
}
