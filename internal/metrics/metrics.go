package metrics

import (
	"sync"

	"github.com/evillar/loupe/internal/pixel"
)

// Kind identifies one whole-frame statistic. The set is closed.
type Kind int

const (
	MinMax Kind = iota
	StdDev
	MSE
	MAE
	PSNR
	SSIM
	MSSSIM
	FSIM

	numKinds
)

var kindNames = [numKinds]string{
	"minmax", "stddev", "mse", "mae", "psnr", "ssim", "ms-ssim", "fsim",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "unknown"
	}
	return kindNames[k]
}

// comparison reports whether the kind needs a second image.
func (k Kind) comparison() bool {
	return k != MinMax && k != StdDev
}

// Result is one finished metric computation.
type Result struct {
	Kind  Kind
	Value float64

	// Min and Max are populated for the MinMax kind only; its Value is the
	// dynamic range Max-Min.
	Min, Max float64

	// StillPending reports that a newer request for the same kind was
	// submitted while this one ran; the value is already superseded and a
	// fresh computation has been scheduled.
	StillPending bool
}

type kindState int

const (
	stateIdle kindState = iota
	stateRunning
	stateRunningPending
)

type request struct {
	a, b *pixel.CanonicalImage
}

// Worker runs metric computations in background goroutines, one per kind at
// most. Submit and Drain never block; results travel over a buffered channel
// drained only by the polling caller.
type Worker struct {
	mu        sync.Mutex
	states    [numKinds]kindState
	pending   [numKinds]request
	dataRange float64
	results   chan Result

	// computeFn is swapped out by tests to control completion timing.
	computeFn func(k Kind, req request, dataRange float64) Result
}

// NewWorker returns a worker with an assumed unit data range for PSNR.
func NewWorker() *Worker {
	return &Worker{
		dataRange: 1,
		results:   make(chan Result, numKinds),
		computeFn: compute,
	}
}

// SetDataRange sets the peak-signal range PSNR is computed against.
func (w *Worker) SetDataRange(r float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dataRange = r
}

// Submit requests a computation of kind over a (and b, for comparison kinds;
// pass nil otherwise). If the kind is already running, the request is recorded
// as pending and answered by a fresh computation after the in-flight one
// completes; it is never dropped and never run concurrently with itself.
func (w *Worker) Submit(kind Kind, a, b *pixel.CanonicalImage) {
	if kind < 0 || kind >= numKinds {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.states[kind] {
	case stateIdle:
		w.states[kind] = stateRunning
		go w.run(kind, request{a: a, b: b}, w.dataRange)
	case stateRunning:
		w.states[kind] = stateRunningPending
		w.pending[kind] = request{a: a, b: b}
	case stateRunningPending:
		w.pending[kind] = request{a: a, b: b} // latest inputs win
	}
}

func (w *Worker) run(kind Kind, req request, dataRange float64) {
	w.results <- w.computeFn(kind, req, dataRange)
}

// Drain returns every metric finished since the last call. Draining a result
// whose kind has a pending rerun marks it StillPending and schedules the
// rerun with the most recently submitted inputs.
func (w *Worker) Drain() []Result {
	var out []Result
	for {
		select {
		case res := <-w.results:
			w.mu.Lock()
			if w.states[res.Kind] == stateRunningPending {
				res.StillPending = true
				req := w.pending[res.Kind]
				w.pending[res.Kind] = request{}
				w.states[res.Kind] = stateRunning
				go w.run(res.Kind, req, w.dataRange)
			} else {
				w.states[res.Kind] = stateIdle
			}
			w.mu.Unlock()
			out = append(out, res)
		default:
			return out
		}
	}
}
