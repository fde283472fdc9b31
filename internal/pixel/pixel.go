package pixel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"
	"sync/atomic"

	"github.com/disintegration/imaging"
	goexr "github.com/mokiat/goexr/exr"
)

// NumericKind identifies the per-sample encoding a source image used before
// normalization.
type NumericKind int

const (
	KindInvalid NumericKind = iota
	KindUint8
	KindInt8
	KindUint16
	KindInt16
	KindInt32
	KindFloat32
	KindFloat64
)

var (
	// ErrUnsupportedFormat indicates a channel count the normalizer cannot map
	// to the canonical layout.
	ErrUnsupportedFormat = errors.New("unsupported channel count")

	// ErrUnsupportedDepth indicates a numeric kind outside the closed set.
	ErrUnsupportedDepth = errors.New("unsupported sample depth")
)

// kindNames maps wire dtype names to kinds. The set is closed; anything else
// is a hard decode error at the call site.
var kindNames = map[string]NumericKind{
	"uint8":   KindUint8,
	"int8":    KindInt8,
	"uint16":  KindUint16,
	"int16":   KindInt16,
	"int32":   KindInt32,
	"float32": KindFloat32,
	"float64": KindFloat64,
}

// ParseKind resolves a wire dtype name to a NumericKind.
func ParseKind(name string) (NumericKind, error) {
	if k, ok := kindNames[name]; ok {
		return k, nil
	}
	return KindInvalid, fmt.Errorf("%w: %q", ErrUnsupportedDepth, name)
}

// String returns the wire name of the kind.
func (k NumericKind) String() string {
	for name, kind := range kindNames {
		if kind == k {
			return name
		}
	}
	return "invalid"
}

// ByteSize returns the per-sample width in bytes.
func (k NumericKind) ByteSize() int {
	switch k {
	case KindUint8, KindInt8:
		return 1
	case KindUint16, KindInt16:
		return 2
	case KindInt32, KindFloat32:
		return 4
	case KindFloat64:
		return 8
	}
	return 0
}

// MaxMagnitude returns the divisor that maps the kind to its natural range.
// Float kinds return 1 (they pass through).
func (k NumericKind) MaxMagnitude() float64 {
	switch k {
	case KindUint8:
		return math.MaxUint8
	case KindInt8:
		return math.MaxInt8
	case KindUint16:
		return math.MaxUint16
	case KindInt16:
		return math.MaxInt16
	case KindInt32:
		return math.MaxInt32
	case KindFloat32, KindFloat64:
		return 1
	}
	return 0
}

// ImageSpec is an immutable descriptor of a canonical image: its dimensions
// and the numeric kind the source used before normalization. The kind is used
// only to convert normalized samples back to native display units.
type ImageSpec struct {
	Width    int
	Height   int
	Channels int

	// OriginalKind is the pre-normalization sample encoding.
	OriginalKind NumericKind
}

// NativeValue converts a normalized sample back to the source kind's display
// units (e.g. 0.5 of a uint8 image reads as 127.5).
func (s ImageSpec) NativeValue(sample float32) float64 {
	return float64(sample) * s.OriginalKind.MaxMagnitude()
}

// CanonicalImage is the engine's single internal image representation:
// row-major, channel-interleaved 32-bit float samples normalized to the
// original kind's natural range.
//
// ID is process-unique and monotonically increasing, assigned at construction.
// It is used purely as a cache key by the mean engine and never derived from
// pixel content.
type CanonicalImage struct {
	ID   uint64
	Spec ImageSpec
	Pix  []float32
}

var idCounter atomic.Uint64

func nextID() uint64 {
	return idCounter.Add(1)
}

// New wraps an already-normalized sample buffer in a CanonicalImage and
// assigns it a fresh identifier. The buffer length must match the spec.
func New(width, height, channels int, kind NumericKind, pix []float32) (*CanonicalImage, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	if len(pix) != width*height*channels {
		return nil, fmt.Errorf("pixel buffer has %d samples, spec %dx%dx%d needs %d",
			len(pix), width, height, channels, width*height*channels)
	}
	return &CanonicalImage{
		ID: nextID(),
		Spec: ImageSpec{
			Width:        width,
			Height:       height,
			Channels:     channels,
			OriginalKind: kind,
		},
		Pix: pix,
	}, nil
}

// At returns the sample at pixel (x, y), channel ch. Callers are responsible
// for staying inside the image; this is a hot-path accessor.
func (c *CanonicalImage) At(x, y, ch int) float32 {
	return c.Pix[(y*c.Spec.Width+x)*c.Spec.Channels+ch]
}

// Normalize converts a decoded raw sample buffer into a CanonicalImage.
//
// Channel policy: 1-channel buffers pass through; 3- and 4-channel buffers
// undergo a component-order swap from the source's native ordering (BGR/BGRA)
// to the canonical RGB/RGBA; any other channel count is ErrUnsupportedFormat.
//
// Kind policy: integer kinds are divided by the type's maximum magnitude,
// float32 passes through, float64 is narrowed; anything else is
// ErrUnsupportedDepth.
//
// Multi-byte samples are read little-endian, matching the layout the wire
// protocol's array payloads are serialized in.
//
// The conversion is pure: the same bytes and kind always produce bit-identical
// floats (modulo float64 narrowing).
func Normalize(raw []byte, width, height, channels int, kind NumericKind) (*CanonicalImage, error) {
	switch channels {
	case 1, 3, 4:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, channels)
	}
	size := kind.ByteSize()
	if size == 0 {
		return nil, fmt.Errorf("%w: kind %d", ErrUnsupportedDepth, kind)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	samples := width * height * channels
	if len(raw) != samples*size {
		return nil, fmt.Errorf("raw buffer is %d bytes, %dx%dx%d %s needs %d",
			len(raw), width, height, channels, kind, samples*size)
	}

	pix := make([]float32, samples)
	scale := float32(1 / kind.MaxMagnitude())
	for i := 0; i < samples; i++ {
		off := i * size
		switch kind {
		case KindUint8:
			pix[i] = float32(raw[off]) * scale
		case KindInt8:
			pix[i] = float32(int8(raw[off])) * scale
		case KindUint16:
			pix[i] = float32(binary.LittleEndian.Uint16(raw[off:])) * scale
		case KindInt16:
			pix[i] = float32(int16(binary.LittleEndian.Uint16(raw[off:]))) * scale
		case KindInt32:
			pix[i] = float32(float64(int32(binary.LittleEndian.Uint32(raw[off:]))) / kind.MaxMagnitude())
		case KindFloat32:
			pix[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
		case KindFloat64:
			pix[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[off:])))
		}
	}

	if channels >= 3 {
		swapBGR(pix, channels)
	}
	return New(width, height, channels, kind, pix)
}

// swapBGR exchanges components 0 and 2 of every pixel in place.
func swapBGR(pix []float32, channels int) {
	for i := 0; i < len(pix); i += channels {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}

// FromImage converts a decoded image.Image (the generic codec black box's
// output) into a CanonicalImage. Grayscale images map to a single channel,
// EXR images keep their float samples, and everything else goes through an
// 8-bit NRGBA conversion. Go images already use the canonical component
// order, so no swap is applied.
func FromImage(img image.Image) (*CanonicalImage, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image bounds %v", b)
	}

	switch src := img.(type) {
	case *image.Gray:
		pix := make([]float32, w*h)
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride:]
			for x := 0; x < w; x++ {
				pix[y*w+x] = float32(row[x]) / math.MaxUint8
			}
		}
		return New(w, h, 1, KindUint8, pix)

	case *image.Gray16:
		pix := make([]float32, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				pix[y*w+x] = float32(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y) / math.MaxUint16
			}
		}
		return New(w, h, 1, KindUint16, pix)
	}

	// EXR decodes carry float samples; keep them instead of flattening to 8-bit.
	if _, ok := img.At(b.Min.X, b.Min.Y).(goexr.RGBAColor); ok {
		pix := make([]float32, w*h*4)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := img.At(b.Min.X+x, b.Min.Y+y).(goexr.RGBAColor)
				i := (y*w + x) * 4
				pix[i] = c.R
				pix[i+1] = c.G
				pix[i+2] = c.B
				pix[i+3] = c.A
			}
		}
		return New(w, h, 4, KindFloat32, pix)
	}

	nr := imaging.Clone(img)
	pix := make([]float32, w*h*4)
	for y := 0; y < h; y++ {
		row := nr.Pix[y*nr.Stride : y*nr.Stride+w*4]
		for x := 0; x < w*4; x++ {
			pix[y*w*4+x] = float32(row[x]) / math.MaxUint8
		}
	}
	return New(w, h, 4, KindUint8, pix)
}

// ToNRGBA renders the canonical image as an 8-bit NRGBA for display or
// export. Samples are clamped to [0,1]; a single channel is replicated to
// gray, three channels get an opaque alpha.
func (c *CanonicalImage) ToNRGBA() *image.NRGBA {
	w, h, ch := c.Spec.Width, c.Spec.Height, c.Spec.Channels
	out := image.NewNRGBA(image.Rect(0, 0, w, h))

	to8 := func(v float32) uint8 {
		if v <= 0 {
			return 0
		}
		if v >= 1 {
			return math.MaxUint8
		}
		return uint8(v*math.MaxUint8 + 0.5)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := out.PixOffset(x, y)
			switch ch {
			case 1:
				g := to8(c.At(x, y, 0))
				out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = g, g, g, math.MaxUint8
			case 3:
				out.Pix[i] = to8(c.At(x, y, 0))
				out.Pix[i+1] = to8(c.At(x, y, 1))
				out.Pix[i+2] = to8(c.At(x, y, 2))
				out.Pix[i+3] = math.MaxUint8
			default:
				out.Pix[i] = to8(c.At(x, y, 0))
				out.Pix[i+1] = to8(c.At(x, y, 1))
				out.Pix[i+2] = to8(c.At(x, y, 2))
				out.Pix[i+3] = to8(c.At(x, y, 3))
			}
		}
	}
	return out
}
