// Package governor implements the speed governor: per-direction smoothed
// throughput tracking and two caps (downloads, uploads), each either
// unlimited, a fixed byte/sec ceiling, or auto-shaped to whatever the
// network currently sustains.
package governor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Cap values for MaxDownloadSpeed / MaxUploadSpeed.
const (
	Unlimited = -1
	Auto      = 0
)

// Auto-shape tuning constants for uploads: dynUploadSpeed grows by IncPct
// whenever a cycle hits its budget cleanly, shrinks by DecPct when the
// socket isn't writable (a soft signal that the network is the bottleneck,
// not the shaper), and never drops below Min.
const (
	autoIncPct          = 1.10
	autoDecPct          = 0.90
	autoMinBytesPerSec  = 16 * 1024
	autoInitBytesPerSec = 256 * 1024
)

// ring is a fixed-length (second, bytes) sample buffer used to compute a
// smoothed bytes/sec rate over the configured averaging window.
type ring struct {
	mu      sync.Mutex
	samples []int64 // bytes transferred during second[i]
	seconds []int64 // unix second each sample belongs to
	size    int
}

func newRing(size int) *ring {
	return &ring{samples: make([]int64, size), seconds: make([]int64, size), size: size}
}

func (r *ring) add(now int64, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := int(now % int64(r.size))

	if r.seconds[idx] != now {
		r.seconds[idx] = now
		r.samples[idx] = 0
	}

	r.samples[idx] += n
}

// smoothedRate returns the average bytes/sec over the window of seconds
// ending at now, counting only slots that actually recorded that second
// (a slot whose stale second value doesn't match is treated as zero,
// rather than stale data leaking into the average).
func (r *ring) smoothedRate(now int64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64

	for i := 0; i < r.size; i++ {
		sec := now - int64(i)
		idx := int(sec % int64(r.size))

		if r.seconds[idx] == sec {
			total += r.samples[idx]
		}
	}

	return float64(total) / float64(r.size)
}

func (r *ring) currentSecondBytes(now int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := int(now % int64(r.size))
	if r.seconds[idx] != now {
		return 0
	}

	return r.samples[idx]
}

// direction holds the per-direction state: its ring buffer, configured
// cap, and (for uploads only) the auto-shape dynamic rate.
type direction struct {
	ring           *ring
	cap            int64 // Unlimited, Auto, or a positive bytes/sec ceiling
	limiter        *rate.Limiter
	dynBytesPerSec float64 // auto-shape state, uploads only
	mu             sync.Mutex
}

// Governor tracks and caps both transfer directions.
type Governor struct {
	download *direction
	upload   *direction
	nowFunc  func() time.Time
}

// New creates a Governor whose ring buffers span averageSeconds samples.
func New(averageSeconds int) *Governor {
	return &Governor{
		download: &direction{ring: newRing(averageSeconds), cap: Unlimited},
		upload:   &direction{ring: newRing(averageSeconds), cap: Unlimited, dynBytesPerSec: autoInitBytesPerSec},
		nowFunc:  time.Now,
	}
}

// SetDownloadCap configures the download direction's cap (Unlimited, Auto,
// or a positive bytes/sec ceiling).
func (g *Governor) SetDownloadCap(bytesPerSec int64) {
	g.download.mu.Lock()
	defer g.download.mu.Unlock()

	g.download.cap = bytesPerSec
	g.download.limiter = newLimiterFor(bytesPerSec)
}

// SetUploadCap configures the upload direction's cap.
func (g *Governor) SetUploadCap(bytesPerSec int64) {
	g.upload.mu.Lock()
	defer g.upload.mu.Unlock()

	g.upload.cap = bytesPerSec
	g.upload.limiter = newLimiterFor(bytesPerSec)
}

func newLimiterFor(bytesPerSec int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}

	return rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec))
}

// RecordDownload / RecordUpload append a completed transfer of n bytes to
// the corresponding ring buffer, for smoothed-rate reporting.
func (g *Governor) RecordDownload(n int64) { g.download.ring.add(g.nowFunc().Unix(), n) }
func (g *Governor) RecordUpload(n int64)   { g.upload.ring.add(g.nowFunc().Unix(), n) }

// DownloadRate / UploadRate return the current smoothed bytes/sec.
func (g *Governor) DownloadRate() float64 { return g.download.ring.smoothedRate(g.nowFunc().Unix()) }
func (g *Governor) UploadRate() float64   { return g.upload.ring.smoothedRate(g.nowFunc().Unix()) }

// AllowUpload blocks (respecting ctx) until up to n bytes may be sent
// without exceeding the configured upload cap, then returns the number of
// bytes the caller may actually send this call (never more than
// cap − already-sent-this-second). With Unlimited it is a pass-through;
// with Auto it uses the dynamic auto-shape rate instead of a fixed cap.
func (g *Governor) AllowUpload(ctx context.Context, n int) (int, error) {
	return g.allow(ctx, g.upload, n, true)
}

// AllowDownload is AllowUpload's read-side counterpart.
func (g *Governor) AllowDownload(ctx context.Context, n int) (int, error) {
	return g.allow(ctx, g.download, n, false)
}

func (g *Governor) allow(ctx context.Context, d *direction, n int, isUpload bool) (int, error) {
	d.mu.Lock()
	capVal := d.cap
	d.mu.Unlock()

	if capVal == Unlimited {
		return n, nil
	}

	effectiveCap := capVal
	if capVal == Auto && isUpload {
		d.mu.Lock()
		effectiveCap = int64(d.dynBytesPerSec)
		d.mu.Unlock()
	} else if capVal == Auto {
		// Download auto-shape reads in small slices with a sleep
		// proportional to the smoothed rate rather than a token bucket;
		// the caller (the transfer loop) owns slicing, so here we only
		// cap this call to a conservative slice size.
		return minInt(n, 32*1024), nil
	}

	already := d.ring.currentSecondBytes(g.nowFunc().Unix())
	remaining := effectiveCap - already

	if remaining <= 0 {
		if err := sleepUntilNextSecond(ctx, g.nowFunc); err != nil {
			return 0, err
		}

		if isUpload && capVal == Auto {
			g.growAutoUpload(d)
		}

		remaining = effectiveCap
	}

	allowed := minInt(n, int(remaining))
	if d.limiter != nil {
		if err := d.limiter.WaitN(ctx, allowed); err != nil {
			return 0, err
		}
	}

	return allowed, nil
}

// growAutoUpload multiplies the dynamic upload rate by IncPct after a
// per-second budget is hit cleanly — the signal that more throughput is
// available.
func (g *Governor) growAutoUpload(d *direction) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dynBytesPerSec *= autoIncPct
}

// NotifyUploadBlocked should be called when a write to the upload socket
// would block (the OS send buffer is full) — auto-shape treats this as a
// sign the network, not the shaper, is the bottleneck and backs off.
func (g *Governor) NotifyUploadBlocked() {
	g.upload.mu.Lock()
	defer g.upload.mu.Unlock()

	g.upload.dynBytesPerSec *= autoDecPct
	if g.upload.dynBytesPerSec < autoMinBytesPerSec {
		g.upload.dynBytesPerSec = autoMinBytesPerSec
	}
}

func sleepUntilNextSecond(ctx context.Context, nowFunc func() time.Time) error {
	now := nowFunc()
	next := now.Truncate(time.Second).Add(time.Second)

	timer := time.NewTimer(next.Sub(now))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}

	return b
}
