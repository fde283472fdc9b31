// Package ingest accepts image frames from remote peers over a length-prefixed
// TCP protocol and turns them into assets.
//
// # Wire Format
//
// One message per accepted connection, big-endian 32-bit length fields:
//
//	u32 name_len
//	u32 metadata_len
//	u32 payload_len
//	bytes[name_len]      UTF-8 asset name
//	bytes[metadata_len]  UTF-8 JSON metadata
//	bytes[payload_len]   pixel payload, encoding defined by metadata
//
// The metadata declares a compression scheme ("zlib", "png", "exr" or "cv"),
// the decompressed byte count, the array shape, and the sample dtype. For
// "zlib" the payload is a compressed raw sample array reshaped per the
// metadata; the other schemes carry a self-describing encoded image handed to
// the matching codec.
//
// # Robustness
//
// The listener never trusts the wire: zero, oversized, or sign-bit-set length
// fields, truncated segments, unknown compression tags, and missing metadata
// fields all drop the single offending connection and nothing else. The
// accept loop itself only stops on Close.
//
// # Surfaces
//
// All listener surfaces are polled: PollEvents reports connect/disconnect
// transitions, PollAssets hands out decoded assets. SetActive pauses and
// resumes accepting without tearing the socket down.
package ingest
