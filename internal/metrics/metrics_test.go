package metrics

import (
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evillar/loupe/internal/pixel"
)

func createUniformImage(t *testing.T, w, h, c int, v float32) *pixel.CanonicalImage {
	t.Helper()
	pix := make([]float32, w*h*c)
	for i := range pix {
		pix[i] = v
	}
	img, err := pixel.New(w, h, c, pixel.KindFloat32, pix)
	if err != nil {
		t.Fatalf("pixel.New failed: %v", err)
	}
	return img
}

func createGradientImage(t *testing.T, w, h, c int) *pixel.CanonicalImage {
	t.Helper()
	pix := make([]float32, w*h*c)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for ch := 0; ch < c; ch++ {
				pix[(y*w+x)*c+ch] = float32((x*13+y*29+ch*7)%101) / 100
			}
		}
	}
	img, err := pixel.New(w, h, c, pixel.KindFloat32, pix)
	if err != nil {
		t.Fatalf("pixel.New failed: %v", err)
	}
	return img
}

func drainOne(t *testing.T, w *Worker) Result {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rs := w.Drain(); len(rs) > 0 {
			if len(rs) != 1 {
				t.Fatalf("drained %d results, want 1", len(rs))
			}
			return rs[0]
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no result drained before deadline")
	return Result{}
}

func TestSubmit_DedupSchedulesExactlyOneRerun(t *testing.T) {
	w := NewWorker()

	started := make(chan struct{}, 8)
	release := make(chan struct{})
	var calls atomic.Int32
	w.computeFn = func(k Kind, req request, dataRange float64) Result {
		calls.Add(1)
		started <- struct{}{}
		<-release
		return Result{Kind: k, Value: float64(calls.Load())}
	}

	img := createUniformImage(t, 4, 4, 1, 1)
	w.Submit(SSIM, img, img)
	<-started

	// Two more submissions while the first runs: recorded as one pending
	// rerun, no concurrent work.
	w.Submit(SSIM, img, img)
	w.Submit(SSIM, img, img)
	select {
	case <-started:
		t.Fatal("a second computation ran concurrently with the first")
	case <-time.After(50 * time.Millisecond):
	}

	release <- struct{}{}
	first := drainOne(t, w)
	if !first.StillPending {
		t.Error("first result not marked StillPending despite queued rerun")
	}

	// Exactly one rerun is scheduled on drain.
	<-started
	release <- struct{}{}
	second := drainOne(t, w)
	if second.StillPending {
		t.Error("second result marked StillPending with nothing queued")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("computations run: %d, want exactly 2", got)
	}
}

func TestSubmit_KindsAreIndependent(t *testing.T) {
	w := NewWorker()

	started := make(chan Kind, 8)
	release := make(chan struct{})
	w.computeFn = func(k Kind, req request, dataRange float64) Result {
		started <- k
		<-release
		return Result{Kind: k}
	}

	img := createUniformImage(t, 4, 4, 1, 1)
	w.Submit(MSE, img, img)
	w.Submit(MAE, img, img)

	seen := map[Kind]bool{}
	for i := 0; i < 2; i++ {
		select {
		case k := <-started:
			seen[k] = true
		case <-time.After(2 * time.Second):
			t.Fatal("second kind did not start while first was running")
		}
	}
	if !seen[MSE] || !seen[MAE] {
		t.Errorf("started kinds: %v, want MSE and MAE", seen)
	}
	release <- struct{}{}
	release <- struct{}{}
}

func TestWorker_EndToEnd(t *testing.T) {
	w := NewWorker()
	img := createGradientImage(t, 8, 8, 1)

	w.Submit(MinMax, img, nil)
	res := drainOne(t, w)
	if res.Kind != MinMax {
		t.Fatalf("kind: got %v, want minmax", res.Kind)
	}
	if math.IsNaN(res.Value) || res.Max < res.Min {
		t.Errorf("implausible minmax result: %+v", res)
	}
}

func TestDrain_EmptyWhenIdle(t *testing.T) {
	w := NewWorker()
	if rs := w.Drain(); len(rs) != 0 {
		t.Errorf("Drain on idle worker = %v, want empty", rs)
	}
}
