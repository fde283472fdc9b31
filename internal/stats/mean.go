package stats

import (
	"errors"
	"fmt"
	"sync"

	"github.com/evillar/loupe/internal/pixel"
)

// Axis selects the reduction applied to a query rectangle.
type Axis int

const (
	// AxisAll reduces the whole rectangle to one mean per channel.
	AxisAll Axis = iota

	// AxisColumns produces one mean per pixel column, averaged over rows and
	// channels.
	AxisColumns

	// AxisRows produces one mean per pixel row, averaged over columns and
	// channels.
	AxisRows
)

// Rect is a query rectangle in pixel coordinates, (X, Y) top-left inclusive,
// W and H in pixels.
type Rect struct {
	X, Y, W, H int
}

// ErrBounds indicates a query rectangle extending outside the image.
var ErrBounds = errors.New("rectangle outside image bounds")

type cacheState int

const (
	cacheNone cacheState = iota
	cacheBuilding
	cacheReady

	// cacheFailed pins the engine to direct summation for the bound image;
	// a failed build is not retried.
	cacheFailed
)

type buildResult struct {
	id       uint64
	integral []float64
	err      error
}

// Engine answers rectangle-mean queries for the currently bound image.
//
// The zero value is not usable; construct with NewEngine. All methods are
// safe for concurrent use, though the intended pattern is a single polling
// caller (e.g. once per UI frame). Queries never block on the background
// integral-image build.
type Engine struct {
	mu       sync.Mutex
	img      *pixel.CanonicalImage
	state    cacheState
	integral []float64 // per-channel (W+1)x(H+1) summed-area table
	building bool      // a build goroutine is running (possibly for a stale image)
	done     chan buildResult
}

// NewEngine returns an engine with no image bound.
func NewEngine() *Engine {
	return &Engine{done: make(chan buildResult, 1)}
}

// Rebind binds a new image and invalidates any cache state belonging to the
// previous one. Rebinding to the already-bound image is a no-op.
func (e *Engine) Rebind(img *pixel.CanonicalImage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rebindLocked(img)
}

func (e *Engine) rebindLocked(img *pixel.CanonicalImage) {
	if img != nil && e.img != nil && img.ID == e.img.ID {
		return
	}
	e.img = img
	e.state = cacheNone
	e.integral = nil
}

// CacheReady reports whether the bound image's integral image has landed.
func (e *Engine) CacheReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == cacheReady
}

// Query returns the mean of the given rectangle of img, reduced along axis.
//
// Querying an image whose identifier differs from the bound one implicitly
// rebinds. The first query for a bound image kicks off the background
// integral-image build; until it completes, the query is answered by direct
// summation. A zero-area rectangle returns an empty slice and no error; a
// rectangle outside the image returns ErrBounds.
func (e *Engine) Query(img *pixel.CanonicalImage, r Rect, axis Axis) ([]float64, error) {
	if img == nil {
		return nil, errors.New("no image")
	}

	e.mu.Lock()
	e.rebindLocked(img)
	e.consumeBuildLocked()

	if r.W < 0 || r.H < 0 {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: negative extent %dx%d", ErrBounds, r.W, r.H)
	}
	if r.W == 0 || r.H == 0 {
		e.mu.Unlock()
		return []float64{}, nil
	}
	if r.X < 0 || r.Y < 0 || r.X+r.W > img.Spec.Width || r.Y+r.H > img.Spec.Height {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: (%d,%d)+%dx%d in %dx%d", ErrBounds,
			r.X, r.Y, r.W, r.H, img.Spec.Width, img.Spec.Height)
	}

	if e.state == cacheNone && !e.building {
		e.state = cacheBuilding
		e.building = true
		go func(img *pixel.CanonicalImage) {
			integral, err := buildIntegral(img)
			e.done <- buildResult{id: img.ID, integral: integral, err: err}
		}(img)
	}

	useCache := e.state == cacheReady
	integral := e.integral
	e.mu.Unlock()

	if useCache {
		return queryIntegral(integral, img.Spec, r, axis), nil
	}
	return queryDirect(img, r, axis), nil
}

// consumeBuildLocked drains a finished build, promoting the cache when the
// result still belongs to the bound image and discarding it otherwise.
func (e *Engine) consumeBuildLocked() {
	select {
	case res := <-e.done:
		e.building = false
		if e.img == nil || res.id != e.img.ID {
			return // stale build for a previously bound image
		}
		if res.err != nil {
			e.state = cacheFailed
			return
		}
		e.integral = res.integral
		e.state = cacheReady
	default:
	}
}

// buildIntegral computes the per-channel summed-area table of img. Row and
// column 0 are zero so rectangle sums need no edge special-casing.
func buildIntegral(img *pixel.CanonicalImage) ([]float64, error) {
	w, h, c := img.Spec.Width, img.Spec.Height, img.Spec.Channels
	if len(img.Pix) != w*h*c {
		return nil, fmt.Errorf("pixel buffer %d does not match spec %dx%dx%d",
			len(img.Pix), w, h, c)
	}

	stride := (w + 1) * c
	integral := make([]float64, (h+1)*stride)
	for y := 0; y < h; y++ {
		rowAbove := integral[y*stride:]
		row := integral[(y+1)*stride:]
		src := img.Pix[y*w*c:]
		for x := 0; x < w; x++ {
			for ch := 0; ch < c; ch++ {
				i := (x+1)*c + ch
				row[i] = float64(src[x*c+ch]) + row[i-c] + rowAbove[i] - rowAbove[i-c]
			}
		}
	}
	return integral, nil
}

func queryDirect(img *pixel.CanonicalImage, r Rect, axis Axis) []float64 {
	w, c := img.Spec.Width, img.Spec.Channels

	switch axis {
	case AxisColumns:
		out := make([]float64, r.W)
		for x := 0; x < r.W; x++ {
			var sum float64
			for y := r.Y; y < r.Y+r.H; y++ {
				base := (y*w + r.X + x) * c
				for ch := 0; ch < c; ch++ {
					sum += float64(img.Pix[base+ch])
				}
			}
			out[x] = sum / float64(r.H*c)
		}
		return out

	case AxisRows:
		out := make([]float64, r.H)
		for y := 0; y < r.H; y++ {
			var sum float64
			base := ((r.Y+y)*w + r.X) * c
			for i := 0; i < r.W*c; i++ {
				sum += float64(img.Pix[base+i])
			}
			out[y] = sum / float64(r.W*c)
		}
		return out

	default: // AxisAll
		out := make([]float64, c)
		for y := r.Y; y < r.Y+r.H; y++ {
			base := (y*w + r.X) * c
			for x := 0; x < r.W; x++ {
				for ch := 0; ch < c; ch++ {
					out[ch] += float64(img.Pix[base+x*c+ch])
				}
			}
		}
		n := float64(r.W * r.H)
		for ch := range out {
			out[ch] /= n
		}
		return out
	}
}

func queryIntegral(integral []float64, spec pixel.ImageSpec, r Rect, axis Axis) []float64 {
	c := spec.Channels
	stride := (spec.Width + 1) * c
	// sum returns the rectangle sum for one channel via four-corner
	// inclusion-exclusion: columns [x1,x2), rows [y1,y2).
	sum := func(x1, y1, x2, y2, ch int) float64 {
		return integral[y2*stride+x2*c+ch] - integral[y1*stride+x2*c+ch] -
			integral[y2*stride+x1*c+ch] + integral[y1*stride+x1*c+ch]
	}

	switch axis {
	case AxisColumns:
		out := make([]float64, r.W)
		for x := 0; x < r.W; x++ {
			var s float64
			for ch := 0; ch < c; ch++ {
				s += sum(r.X+x, r.Y, r.X+x+1, r.Y+r.H, ch)
			}
			out[x] = s / float64(r.H*c)
		}
		return out

	case AxisRows:
		out := make([]float64, r.H)
		for y := 0; y < r.H; y++ {
			var s float64
			for ch := 0; ch < c; ch++ {
				s += sum(r.X, r.Y+y, r.X+r.W, r.Y+y+1, ch)
			}
			out[y] = s / float64(r.W*c)
		}
		return out

	default: // AxisAll
		out := make([]float64, c)
		n := float64(r.W * r.H)
		for ch := 0; ch < c; ch++ {
			out[ch] = sum(r.X, r.Y, r.X+r.W, r.Y+r.H, ch) / n
		}
		return out
	}
}
