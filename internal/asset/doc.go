// Package asset models the images the engine works on, polymorphic over
// their origin: files, the clipboard, sockets, URLs, and derived comparison
// images. Every asset exposes a display name, a stable lookup key, its
// canonical image, and its origin kind.
//
// Lookup keys are UUIDs assigned at construction; they are stable for the
// asset's lifetime and independent of image content, so a UI layer can key
// lists and selections on them without caring where the asset came from.
package asset
