package queue

import (
	"context"
	"sync"
)

// uploadGate admits up to maxParallel concurrent UPLOAD_FILE tasks, subject
// to a total-bytes-outstanding ceiling (PSYNC_START_NEW_UPLOADS_TRESHOLD)
// that bounds RAM committed to in-flight transfers. New admissions block on
// a condition variable signaled whenever an upload completes, per spec.md
// §4.6's "new tasks block on a condition variable" contract.
type uploadGate struct {
	mu          sync.Mutex
	cond        *sync.Cond
	active      int
	outstanding int64
	maxParallel int
	threshold   int64
}

func newUploadGate(maxParallel int, threshold int64) *uploadGate {
	if maxParallel < 1 {
		maxParallel = 1
	}

	g := &uploadGate{maxParallel: maxParallel, threshold: threshold}
	g.cond = sync.NewCond(&g.mu)

	return g
}

// acquire blocks until a slot is available for an upload estimated at size
// bytes, then reserves it. A single upload larger than threshold is still
// admitted once no other upload is outstanding (otherwise a file larger
// than the threshold would starve forever).
func (g *uploadGate) acquire(ctx context.Context, size int64) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			g.cond.Broadcast()
		case <-stop:
		}
	}()

	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fits := g.outstanding+size <= g.threshold || g.active == 0
		if g.active < g.maxParallel && fits {
			g.active++
			g.outstanding += size

			return nil
		}

		g.cond.Wait()
	}
}

// drainZero blocks until no upload is in progress, per spec.md §4.6's
// rename/delete precondition ("the worker first waits until no uploads are
// in progress" — a moved item's old parent could otherwise be referenced by
// a concurrent upload already under way).
func (g *uploadGate) drainZero(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			g.cond.Broadcast()
		case <-stop:
		}
	}()

	g.mu.Lock()
	defer g.mu.Unlock()

	for g.active > 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		g.cond.Wait()
	}

	return ctx.Err()
}

// release frees size bytes and one parallelism slot, waking any admission
// waiting on the condition variable.
func (g *uploadGate) release(size int64) {
	g.mu.Lock()
	g.active--
	g.outstanding -= size
	g.mu.Unlock()

	g.cond.Broadcast()
}
