package ingest

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	_ "image/gif"  // Register GIF for the generic codec path
	_ "image/jpeg" // Register JPEG for the generic codec path

	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/zlib"
	goexr "github.com/mokiat/goexr/exr"

	_ "golang.org/x/image/bmp"  // Register BMP for the generic codec path
	_ "golang.org/x/image/tiff" // Register TIFF for the generic codec path
	_ "golang.org/x/image/webp" // Register WebP for the generic codec path

	"github.com/evillar/loupe/internal/pixel"
)

// maxSegment caps each declared frame segment. A 32-bit length with the sign
// bit set (a negative length on the original wire) always exceeds this.
const maxSegment = 1 << 30

var (
	// ErrMalformedFrame covers transport-level framing problems: zero or
	// oversized length fields, truncated segments.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrDecode covers everything past framing: bad metadata, unknown
	// compression, codec failures.
	ErrDecode = errors.New("frame decode error")
)

// metadata is the JSON envelope describing a frame payload. All fields are
// required; absence is a hard decode error.
type metadata struct {
	Compression string `json:"compression"`
	NBytes      int64  `json:"nbytes"`
	Shape       []int  `json:"shape"`
	Dtype       string `json:"dtype"`
}

// frame is one decoded wire message.
type frame struct {
	Name    string
	Meta    metadata
	Payload []byte
}

// readFrame reads exactly one framed message from r.
func readFrame(r io.Reader) (*frame, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedFrame, err)
	}

	nameLen := binary.BigEndian.Uint32(hdr[0:4])
	metaLen := binary.BigEndian.Uint32(hdr[4:8])
	payloadLen := binary.BigEndian.Uint32(hdr[8:12])
	for _, l := range []uint32{nameLen, metaLen, payloadLen} {
		if l == 0 || l > maxSegment {
			return nil, fmt.Errorf("%w: declared segment length %d", ErrMalformedFrame, l)
		}
	}

	buf := make([]byte, nameLen+metaLen+payloadLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: body: %v", ErrMalformedFrame, err)
	}

	f := &frame{
		Name:    string(buf[:nameLen]),
		Payload: buf[nameLen+metaLen:],
	}
	if err := json.Unmarshal(buf[nameLen:nameLen+metaLen], &f.Meta); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrDecode, err)
	}
	if err := f.Meta.validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (m *metadata) validate() error {
	switch m.Compression {
	case "zlib", "png", "exr", "cv":
	case "":
		return fmt.Errorf("%w: missing compression", ErrDecode)
	default:
		return fmt.Errorf("%w: unknown compression %q", ErrDecode, m.Compression)
	}
	if m.NBytes <= 0 {
		return fmt.Errorf("%w: nbytes %d", ErrDecode, m.NBytes)
	}
	if len(m.Shape) != 2 && len(m.Shape) != 3 {
		return fmt.Errorf("%w: shape %v", ErrDecode, m.Shape)
	}
	for _, d := range m.Shape {
		if d <= 0 {
			return fmt.Errorf("%w: shape %v", ErrDecode, m.Shape)
		}
	}
	if m.Dtype == "" {
		return fmt.Errorf("%w: missing dtype", ErrDecode)
	}
	if _, err := pixel.ParseKind(m.Dtype); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// dimensions unpacks the shape as (height, width, channels); a 2D shape is a
// single-channel image.
func (m *metadata) dimensions() (w, h, c int) {
	h, w = m.Shape[0], m.Shape[1]
	c = 1
	if len(m.Shape) == 3 {
		c = m.Shape[2]
	}
	return w, h, c
}

// decodeFrame turns a validated frame into a canonical image.
func decodeFrame(f *frame) (*pixel.CanonicalImage, error) {
	switch f.Meta.Compression {
	case "zlib":
		return decodeZlib(f)
	case "png":
		src, err := png.Decode(bytes.NewReader(f.Payload))
		if err != nil {
			return nil, fmt.Errorf("%w: png: %v", ErrDecode, err)
		}
		return fromCodec(src)
	case "exr":
		src, err := goexr.Decode(bytes.NewReader(f.Payload))
		if err != nil {
			return nil, fmt.Errorf("%w: exr: %v", ErrDecode, err)
		}
		return fromCodec(src)
	case "cv":
		src, err := imaging.Decode(bytes.NewReader(f.Payload))
		if err != nil {
			return nil, fmt.Errorf("%w: codec: %v", ErrDecode, err)
		}
		return fromCodec(src)
	}
	return nil, fmt.Errorf("%w: unknown compression %q", ErrDecode, f.Meta.Compression)
}

func fromCodec(src image.Image) (*pixel.CanonicalImage, error) {
	img, err := pixel.FromImage(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

func decodeZlib(f *frame) (*pixel.CanonicalImage, error) {
	w, h, c := f.Meta.dimensions()
	kind, err := pixel.ParseKind(f.Meta.Dtype)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if want := int64(w) * int64(h) * int64(c) * int64(kind.ByteSize()); want != f.Meta.NBytes {
		return nil, fmt.Errorf("%w: nbytes %d does not match shape %v of %s",
			ErrDecode, f.Meta.NBytes, f.Meta.Shape, f.Meta.Dtype)
	}

	zr, err := zlib.NewReader(bytes.NewReader(f.Payload))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %v", ErrDecode, err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(io.LimitReader(zr, f.Meta.NBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %v", ErrDecode, err)
	}
	if int64(len(raw)) != f.Meta.NBytes {
		return nil, fmt.Errorf("%w: inflated %d bytes, metadata declared %d",
			ErrDecode, len(raw), f.Meta.NBytes)
	}

	img, err := pixel.Normalize(raw, w, h, c, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}
