// Package tts synthesizes spoken audio clips for asset requests.
//
// A Synthesizer cleans the request text, waits out its pacing delay, asks an
// Engine to render the clip into a temporary file and moves the file into
// place once it is large enough to be real audio. Engine failures are
// transient; ErrRateLimited from an engine maps to a rate-limit signal.
//
// Two engines are provided: CommandEngine runs the edge-tts CLI and
// HTTPEngine posts to a JSON speech endpoint.
package tts
