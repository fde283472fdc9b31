package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/evillar/loupe/internal/ingest"
	"github.com/evillar/loupe/internal/metrics"
	"github.com/evillar/loupe/internal/pixel"
	"github.com/evillar/loupe/internal/stats"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const defaultPort = 52511

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("loupe %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("loupe - image ingestion and statistics daemon")
			fmt.Println()
			fmt.Println("Usage: loupe [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Printf("  LOUPE_PORT=<n>           First port to try (default %d)\n", defaultPort)
			fmt.Println("  LOUPE_LOG_LEVEL=debug    Enable debug logging")
			fmt.Println("  LOUPE_DUMP_DIR=<dir>     Save received frames as PNG")
			fmt.Println()
			fmt.Println("The daemon accepts framed image messages over TCP and reports")
			fmt.Println("per-frame statistics on stderr.")
			return
		}
	}

	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	debug := os.Getenv("LOUPE_LOG_LEVEL") == "debug"

	port := defaultPort
	if v := os.Getenv("LOUPE_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 0 || p > 65535 {
			log.Fatalf("invalid LOUPE_PORT %q", v)
		}
		port = p
	}
	dumpDir := os.Getenv("LOUPE_DUMP_DIR")

	listener, err := ingest.Listen(ingest.Config{Port: port, PortRange: 16})
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer listener.Close()
	listener.SetActive(true)
	log.Printf("loupe %s listening on %s", Version, listener.Addr())

	engine := stats.NewEngine()
	worker := metrics.NewWorker()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var previous *pixel.CanonicalImage
	frames := 0
	for {
		select {
		case <-stop:
			log.Printf("shutting down after %d frames", frames)
			return
		case <-ticker.C:
		}

		for _, ev := range listener.PollEvents() {
			if debug {
				log.Printf("peer %s %s", ev.Remote, ev.Kind)
			}
		}

		for _, a := range listener.PollAssets() {
			frames++
			img := a.Image()
			spec := img.Spec
			full := stats.Rect{W: spec.Width, H: spec.Height}

			mean, err := engine.Query(img, full, stats.AxisAll)
			if err != nil {
				log.Printf("%s: mean query: %v", a.Name(), err)
				continue
			}
			log.Printf("%s [%s]: %dx%dx%d %s mean=%s", a.Name(), a.Key(),
				spec.Width, spec.Height, spec.Channels, spec.OriginalKind, describeMean(mean))

			worker.Submit(metrics.MinMax, img, nil)
			worker.Submit(metrics.StdDev, img, nil)
			if previous != nil && previous.Spec == spec {
				worker.Submit(metrics.PSNR, img, previous)
				worker.Submit(metrics.SSIM, img, previous)
			}
			previous = img

			if dumpDir != "" {
				name := fmt.Sprintf("%s-%d.png", a.Key(), frames)
				if err := imgio.Save(filepath.Join(dumpDir, name), img.ToNRGBA(), imgio.PNGEncoder()); err != nil {
					log.Printf("dump %s: %v", name, err)
				}
			}
		}

		for _, res := range worker.Drain() {
			suffix := ""
			if res.StillPending {
				suffix = " (superseded)"
			}
			switch res.Kind {
			case metrics.MinMax:
				log.Printf("metric %s: [%g, %g]%s", res.Kind, res.Min, res.Max, suffix)
			default:
				log.Printf("metric %s: %g%s", res.Kind, res.Value, suffix)
			}
		}
	}
}

// describeMean renders a per-channel mean vector, with a hex swatch when the
// channels form a color.
func describeMean(mean []float64) string {
	if len(mean) < 3 {
		return fmt.Sprintf("%.4g", mean)
	}
	c := colorful.Color{R: clamp01(mean[0]), G: clamp01(mean[1]), B: clamp01(mean[2])}
	return fmt.Sprintf("%.4g %s", mean, c.Hex())
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
