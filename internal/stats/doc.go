// Package stats implements the windowed mean engine: arbitrary-rectangle mean
// queries over a canonical image, answered in near-constant time once a lazily
// built integral image is available.
//
// # Cache Lifecycle
//
// The engine binds one image at a time. The integral image for the bound image
// is built in a background goroutine, kicked off exactly once by the first
// query; until the build lands, queries are served by direct summation, which
// is slower but always correct. The cache slot is a tagged state (no cache,
// building, ready, failed) guarded by one mutex; the build goroutine is the
// sole producer and delivers its result over a buffered channel that the
// querying goroutine drains without blocking.
//
// Rebinding to an image with a different identifier invalidates the cache
// immediately, whatever state it was in. A build result that arrives for a
// previously bound image is discarded by identifier mismatch. A failed build
// leaves the engine in permanent direct mode for that image; it is not
// retried.
//
// # Query Axes
//
// Three reduction axes are supported: the mean of all pixels in the rectangle
// (one value per channel), the per-column mean profile (one value per pixel
// column, averaged over rows and channels), and the per-row mean profile.
package stats
