// Package pixel defines the engine's canonical image representation and the
// normalizer that produces it.
//
// Every image entering the engine, regardless of origin (file, clipboard,
// socket, URL), is converted to a CanonicalImage: a dense row-major buffer of
// 32-bit float samples, channel-interleaved, normalized to the source numeric
// kind's natural range. All downstream components (the windowed mean engine,
// the quality metrics worker) operate only on this representation.
//
// # Normalization Policy
//
// Integer kinds are divided by the type's maximum representable magnitude
// (uint8 by 255, int16 by 32767, and so on), 32-bit floats pass through
// unchanged, and 64-bit floats are narrowed. The original kind is retained in
// the ImageSpec so normalized samples can be converted back to native display
// units, but it is never used to reinterpret the buffer.
//
// # Identifiers
//
// Each CanonicalImage carries a process-unique, monotonically increasing
// identifier assigned at construction from a package-private atomic counter.
// The identifier is a cache key only; it says nothing about pixel content.
package pixel
