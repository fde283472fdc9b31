// Package metrics computes whole-frame quality statistics (PSNR, SSIM and
// friends) off the calling path.
//
// # Dedup Model
//
// Each metric kind owns a small finite state machine: idle, running, or
// running with a pending rerun. Submitting a kind that is already running
// records the request (latest inputs win) instead of spawning concurrent
// work; the rerun is scheduled when the in-flight computation's result is
// drained. At most one computation per kind is ever running, so results
// within a kind are strictly FIFO.
//
// Results are retrieved by polling Drain, which also reports whether a newer
// request for the same kind is still pending so the caller knows the value it
// got is already superseded.
//
// # Numerical Errors
//
// A computation over degenerate input (missing image, mismatched dimensions,
// empty buffer) produces a NaN result rather than an error: the caller polls
// asynchronously and has no call frame to catch a failure against. PSNR of
// identical images is +Inf; it is not capped.
package metrics
