package metrics

import (
	"math"

	"github.com/evillar/loupe/internal/pixel"
)

// SSIM stabilization constants for a unit dynamic range (K1=0.01, K2=0.03).
const (
	ssimC1 = 0.0001
	ssimC2 = 0.0009

	ssimWindow = 11
	ssimSigma  = 1.5
)

// msSSIMWeights are the standard per-scale exponents (Wang et al.).
var msSSIMWeights = [5]float64{0.0448, 0.2856, 0.3001, 0.2363, 0.1333}

// compute runs one metric. Degenerate input never errors; it yields NaN so
// the polling caller can tell "computed but undefined" from "not computed".
func compute(k Kind, req request, dataRange float64) Result {
	res := Result{Kind: k, Value: math.NaN(), Min: math.NaN(), Max: math.NaN()}

	a, b := req.a, req.b
	if a == nil || len(a.Pix) == 0 {
		return res
	}
	if k.comparison() {
		if b == nil || len(b.Pix) == 0 {
			return res
		}
		if a.Spec.Width != b.Spec.Width || a.Spec.Height != b.Spec.Height ||
			a.Spec.Channels != b.Spec.Channels {
			return res
		}
	}

	switch k {
	case MinMax:
		res.Min, res.Max = minMax(a.Pix)
		res.Value = res.Max - res.Min
	case StdDev:
		res.Value = stdDev(a.Pix)
	case MSE:
		res.Value = meanSquaredError(a.Pix, b.Pix)
	case MAE:
		res.Value = meanAbsoluteError(a.Pix, b.Pix)
	case PSNR:
		res.Value = peakSignalNoiseRatio(a.Pix, b.Pix, dataRange)
	case SSIM:
		res.Value = structuralSimilarity(a, b)
	case MSSSIM:
		res.Value = multiScaleSSIM(a, b)
	case FSIM:
		res.Value = featureSimilarity(a, b)
	}
	return res
}

func minMax(pix []float32) (mn, mx float64) {
	mn, mx = float64(pix[0]), float64(pix[0])
	for _, v := range pix[1:] {
		f := float64(v)
		if f < mn {
			mn = f
		}
		if f > mx {
			mx = f
		}
	}
	return mn, mx
}

func stdDev(pix []float32) float64 {
	var sum float64
	for _, v := range pix {
		sum += float64(v)
	}
	mean := sum / float64(len(pix))

	var acc float64
	for _, v := range pix {
		d := float64(v) - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(pix)))
}

func meanSquaredError(a, b []float32) float64 {
	var acc float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		acc += d * d
	}
	return acc / float64(len(a))
}

func meanAbsoluteError(a, b []float32) float64 {
	var acc float64
	for i := range a {
		acc += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return acc / float64(len(a))
}

// peakSignalNoiseRatio returns +Inf for identical inputs (MSE of zero).
func peakSignalNoiseRatio(a, b []float32, dataRange float64) float64 {
	mse := meanSquaredError(a, b)
	if mse == 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(dataRange*dataRange/mse)
}

// structuralSimilarity is the reference SSIM formulation: Gaussian-weighted
// local statistics (11x11 window, sigma 1.5), per-pixel quality map
// ((2·mu1mu2+C1)(2·sigma12+C2)) / ((mu1²+mu2²+C1)(sigma1²+sigma2²+C2)),
// averaged across the map and the channels.
func structuralSimilarity(a, b *pixel.CanonicalImage) float64 {
	w, h, c := a.Spec.Width, a.Spec.Height, a.Spec.Channels
	var total float64
	for ch := 0; ch < c; ch++ {
		s, _ := ssimPlane(channelPlane(a, ch), channelPlane(b, ch), w, h)
		total += s
	}
	return total / float64(c)
}

// multiScaleSSIM evaluates SSIM over up to five dyadic scales, combining the
// contrast-structure terms of the coarse scales and the full SSIM of the last
// with the standard exponents. Scales the image is too small for are skipped
// and the remaining exponents renormalized.
func multiScaleSSIM(a, b *pixel.CanonicalImage) float64 {
	w, h, c := a.Spec.Width, a.Spec.Height, a.Spec.Channels
	var total float64
	for ch := 0; ch < c; ch++ {
		total += msSSIMPlane(channelPlane(a, ch), channelPlane(b, ch), w, h)
	}
	return total / float64(c)
}

func msSSIMPlane(p1, p2 []float64, w, h int) float64 {
	levels := 0
	for lw, lh := w, h; levels < len(msSSIMWeights) && lw >= ssimWindow && lh >= ssimWindow; levels++ {
		lw, lh = lw/2, lh/2
	}
	if levels == 0 {
		return math.NaN()
	}

	var logSum, weightSum float64
	for l := 0; l < levels; l++ {
		s, cs := ssimPlane(p1, p2, w, h)
		v := cs
		if l == levels-1 {
			v = s
		}
		if v < 1e-10 {
			v = 1e-10
		}
		logSum += msSSIMWeights[l] * math.Log(v)
		weightSum += msSSIMWeights[l]
		if l < levels-1 {
			p1, _, _ = downsample2(p1, w, h)
			p2, w, h = downsample2(p2, w, h)
		}
	}
	return math.Exp(logSum / weightSum)
}

// featureSimilarity is the gradient-magnitude formulation of FSIM: a Scharr
// gradient similarity map over the channel-averaged plane, weighted by the
// stronger of the two local gradients.
func featureSimilarity(a, b *pixel.CanonicalImage) float64 {
	const t = 0.0026 // gradient stabilization for unit range

	w, h := a.Spec.Width, a.Spec.Height
	g1 := gradientMagnitude(meanPlane(a), w, h)
	g2 := gradientMagnitude(meanPlane(b), w, h)

	var simSum, weightSum float64
	for i := range g1 {
		sim := (2*g1[i]*g2[i] + t) / (g1[i]*g1[i] + g2[i]*g2[i] + t)
		wgt := math.Max(g1[i], g2[i])
		simSum += sim * wgt
		weightSum += wgt
	}
	if weightSum == 0 {
		return 1 // both images flat
	}
	return simSum / weightSum
}

// channelPlane extracts channel ch as a dense float64 plane.
func channelPlane(img *pixel.CanonicalImage, ch int) []float64 {
	w, h, c := img.Spec.Width, img.Spec.Height, img.Spec.Channels
	out := make([]float64, w*h)
	for i := range out {
		out[i] = float64(img.Pix[i*c+ch])
	}
	return out
}

// meanPlane averages the channels into one plane.
func meanPlane(img *pixel.CanonicalImage) []float64 {
	w, h, c := img.Spec.Width, img.Spec.Height, img.Spec.Channels
	out := make([]float64, w*h)
	if c == 1 {
		for i := range out {
			out[i] = float64(img.Pix[i])
		}
		return out
	}
	for i := range out {
		var s float64
		for ch := 0; ch < c; ch++ {
			s += float64(img.Pix[i*c+ch])
		}
		out[i] = s / float64(c)
	}
	return out
}

// ssimPlane returns the mean SSIM and mean contrast-structure term of one
// channel plane pair.
func ssimPlane(p1, p2 []float64, w, h int) (ssim, cs float64) {
	kernel := gaussianKernel(ssimWindow, ssimSigma)

	sq1 := make([]float64, len(p1))
	sq2 := make([]float64, len(p1))
	prod := make([]float64, len(p1))
	for i := range p1 {
		sq1[i] = p1[i] * p1[i]
		sq2[i] = p2[i] * p2[i]
		prod[i] = p1[i] * p2[i]
	}

	mu1 := blurPlane(p1, w, h, kernel)
	mu2 := blurPlane(p2, w, h, kernel)
	s11 := blurPlane(sq1, w, h, kernel)
	s22 := blurPlane(sq2, w, h, kernel)
	s12 := blurPlane(prod, w, h, kernel)

	var ssimSum, csSum float64
	for i := range mu1 {
		m1, m2 := mu1[i], mu2[i]
		sigma1 := s11[i] - m1*m1
		sigma2 := s22[i] - m2*m2
		sigma12 := s12[i] - m1*m2

		csTerm := (2*sigma12 + ssimC2) / (sigma1 + sigma2 + ssimC2)
		ssimSum += (2*m1*m2 + ssimC1) / (m1*m1 + m2*m2 + ssimC1) * csTerm
		csSum += csTerm
	}
	n := float64(len(mu1))
	return ssimSum / n, csSum / n
}

func gaussianKernel(size int, sigma float64) []float64 {
	k := make([]float64, size)
	half := size / 2
	var sum float64
	for i := range k {
		d := float64(i - half)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// blurPlane applies the kernel separably with clamped edges.
func blurPlane(src []float64, w, h int, kernel []float64) []float64 {
	half := len(kernel) / 2
	tmp := make([]float64, len(src))
	for y := 0; y < h; y++ {
		row := src[y*w:]
		for x := 0; x < w; x++ {
			var s float64
			for i, kv := range kernel {
				xx := clampIndex(x+i-half, w)
				s += kv * row[xx]
			}
			tmp[y*w+x] = s
		}
	}
	dst := make([]float64, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s float64
			for i, kv := range kernel {
				yy := clampIndex(y+i-half, h)
				s += kv * tmp[yy*w+x]
			}
			dst[y*w+x] = s
		}
	}
	return dst
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// downsample2 halves a plane with 2x2 box averaging.
func downsample2(src []float64, w, h int) ([]float64, int, int) {
	nw, nh := w/2, h/2
	out := make([]float64, nw*nh)
	for y := 0; y < nh; y++ {
		for x := 0; x < nw; x++ {
			out[y*nw+x] = (src[2*y*w+2*x] + src[2*y*w+2*x+1] +
				src[(2*y+1)*w+2*x] + src[(2*y+1)*w+2*x+1]) / 4
		}
	}
	return out, nw, nh
}

// gradientMagnitude computes Scharr gradient magnitudes with clamped edges.
func gradientMagnitude(p []float64, w, h int) []float64 {
	out := make([]float64, len(p))
	at := func(x, y int) float64 {
		return p[clampIndex(y, h)*w+clampIndex(x, w)]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := (3*at(x+1, y-1) + 10*at(x+1, y) + 3*at(x+1, y+1) -
				3*at(x-1, y-1) - 10*at(x-1, y) - 3*at(x-1, y+1)) / 16
			gy := (3*at(x-1, y+1) + 10*at(x, y+1) + 3*at(x+1, y+1) -
				3*at(x-1, y-1) - 10*at(x, y-1) - 3*at(x+1, y-1)) / 16
			out[y*w+x] = math.Sqrt(gx*gx + gy*gy)
		}
	}
	return out
}
