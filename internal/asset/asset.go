package asset

import (
	"fmt"
	"image"
	"net/http"
	"path"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/evillar/loupe/internal/pixel"
)

// Origin identifies where an asset came from.
type Origin int

const (
	OriginFile Origin = iota
	OriginClipboard
	OriginSocket
	OriginURL
	OriginComparison
)

func (o Origin) String() string {
	switch o {
	case OriginFile:
		return "file"
	case OriginClipboard:
		return "clipboard"
	case OriginSocket:
		return "socket"
	case OriginURL:
		return "url"
	case OriginComparison:
		return "comparison"
	}
	return "unknown"
}

// Asset is an image the engine can work on, whatever its origin.
type Asset interface {
	// Name is the human-readable display name.
	Name() string

	// Key is a stable lookup key, unique per asset and constant for its
	// lifetime.
	Key() string

	// Image returns the asset's canonical image.
	Image() *pixel.CanonicalImage

	// Origin reports the asset's origin kind.
	Origin() Origin
}

// meta carries the capability set shared by all variants.
type meta struct {
	name   string
	key    string
	img    *pixel.CanonicalImage
	origin Origin
}

func newMeta(name string, img *pixel.CanonicalImage, origin Origin) meta {
	return meta{name: name, key: uuid.NewString(), img: img, origin: origin}
}

func (m *meta) Name() string                 { return m.name }
func (m *meta) Key() string                  { return m.key }
func (m *meta) Image() *pixel.CanonicalImage { return m.img }
func (m *meta) Origin() Origin               { return m.origin }

// FileAsset is an image loaded from disk.
type FileAsset struct {
	meta
	Path string
}

// NewFileAsset decodes the image at the given path. EXIF orientation is
// applied during decoding.
func NewFileAsset(p string) (*FileAsset, error) {
	src, err := imaging.Open(p, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", p, err)
	}
	img, err := pixel.FromImage(src)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize %s: %w", p, err)
	}
	return &FileAsset{meta: newMeta(filepath.Base(p), img, OriginFile), Path: p}, nil
}

// ClipboardAsset wraps an image the windowing glue pulled off the clipboard.
type ClipboardAsset struct {
	meta
}

// NewClipboardAsset normalizes an already-decoded clipboard image.
func NewClipboardAsset(src image.Image) (*ClipboardAsset, error) {
	img, err := pixel.FromImage(src)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize clipboard image: %w", err)
	}
	return &ClipboardAsset{meta: newMeta("clipboard", img, OriginClipboard)}, nil
}

// SocketAsset is an image received over the ingestion listener.
type SocketAsset struct {
	meta
	Remote string
}

// NewSocketAsset wraps an already-normalized image received from remote.
func NewSocketAsset(name string, img *pixel.CanonicalImage, remote string) *SocketAsset {
	return &SocketAsset{meta: newMeta(name, img, OriginSocket), Remote: remote}
}

// URLAsset is an image fetched over HTTP, typically from a dropped link.
type URLAsset struct {
	meta
	URL string
}

// NewURLAsset fetches and decodes the image at the given URL.
func NewURLAsset(url string) (*URLAsset, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: status %s", url, resp.Status)
	}

	src, err := imaging.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", url, err)
	}
	img, err := pixel.FromImage(src)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize %s: %w", url, err)
	}
	return &URLAsset{meta: newMeta(path.Base(url), img, OriginURL), URL: url}, nil
}

// ComparisonAsset holds the per-pixel signed difference of two assets,
// clipped to the intersection of their rectangles. It does not retain its
// inputs.
type ComparisonAsset struct {
	meta
}

// NewComparisonAsset derives a difference image from a and b. The inputs are
// clipped to their common width, height, and channel count; the result's
// samples are a minus b and may be negative.
func NewComparisonAsset(a, b Asset) (*ComparisonAsset, error) {
	ia, ib := a.Image(), b.Image()
	if ia == nil || ib == nil {
		return nil, fmt.Errorf("comparison inputs must carry images")
	}

	w := min(ia.Spec.Width, ib.Spec.Width)
	h := min(ia.Spec.Height, ib.Spec.Height)
	c := min(ia.Spec.Channels, ib.Spec.Channels)
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("comparison rectangles do not intersect")
	}

	pix := make([]float32, w*h*c)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for ch := 0; ch < c; ch++ {
				pix[(y*w+x)*c+ch] = ia.At(x, y, ch) - ib.At(x, y, ch)
			}
		}
	}
	img, err := pixel.New(w, h, c, pixel.KindFloat32, pix)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s vs %s", a.Name(), b.Name())
	return &ComparisonAsset{meta: newMeta(name, img, OriginComparison)}, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
