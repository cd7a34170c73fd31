// Package scanner implements the local scanner (component E): periodic,
// interruptible, idempotent reconciliation of an on-disk tree against the
// catalog's shadow of it.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brennanwright/syncd/internal/catalog"
	"github.com/brennanwright/syncd/internal/ignore"
)

// errRestart is returned internally by a walk aborted mid-pass by
// Restart(); Run treats it as a signal to back off and start over, not
// as a failure to report to the caller.
var errRestart = errors.New("scanner: restart requested")

// State is the scanner's current phase.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateApplying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateApplying:
		return "applying"
	default:
		return "unknown"
	}
}

const (
	restartBackoffInitial = time.Second
	restartBackoffMax     = 16 * time.Second
)

// Engine drives one sync-root's scan/apply cycle. It is safe for
// concurrent use: Wake/Restart/Pause/Resume may be called from any
// goroutine while Run is executing.
type Engine struct {
	cat          *catalog.Catalog
	ignoreEngine *ignore.Engine
	logger       *slog.Logger
	root         catalog.SyncRoot
	fullscanTick time.Duration

	state atomic.Int32

	wakeCh    chan struct{}
	restart   atomic.Bool
	pauseN    atomic.Int32
	resumeSig chan struct{}
	resumeMu  sync.Mutex
}

// New creates an Engine for one sync-root.
func New(cat *catalog.Catalog, ignoreEngine *ignore.Engine, logger *slog.Logger, root catalog.SyncRoot, fullscanTick time.Duration) *Engine {
	return &Engine{
		cat: cat, ignoreEngine: ignoreEngine, logger: logger, root: root, fullscanTick: fullscanTick,
		wakeCh:    make(chan struct{}, 1),
		resumeSig: make(chan struct{}),
	}
}

// State returns the scanner's current phase.
func (e *Engine) State() State { return State(e.state.Load()) }

// Wake requests an immediate scan pass. Non-blocking: a pending wake that
// hasn't been consumed yet is not duplicated.
func (e *Engine) Wake() {
	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}

// Restart aborts the current pass (if one is running) and starts a fresh
// one, discarding any in-memory bags accumulated so far.
func (e *Engine) Restart() {
	e.restart.Store(true)
	e.Wake()
}

// Pause increments the stopper count; Run will not begin a new SCANNING
// phase while it is above zero. A scan already in APPLYING is allowed to
// finish (applying a partial pass would leave the catalog consistent with
// an incomplete view of the tree, which is strictly worse than finishing
// the commit that was already staged).
func (e *Engine) Pause() {
	if e.pauseN.Add(1) == 1 {
		e.resumeMu.Lock()
		e.resumeSig = make(chan struct{})
		e.resumeMu.Unlock()
	}
}

// Resume decrements the stopper count; once it reaches zero, Run's wait
// for resume unblocks.
func (e *Engine) Resume() {
	if e.pauseN.Add(-1) <= 0 {
		e.resumeMu.Lock()
		select {
		case <-e.resumeSig:
		default:
			close(e.resumeSig)
		}
		e.resumeMu.Unlock()
	}
}

func (e *Engine) isPaused() bool { return e.pauseN.Load() > 0 }

// Run executes the IDLE → SCANNING → APPLYING → IDLE loop until ctx is
// canceled. A pass is triggered by Wake(), by the fullscan ticker, or
// immediately on entry.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.fullscanTick)
	defer ticker.Stop()

	e.Wake()

	backoff := restartBackoffInitial

	for {
		e.state.Store(int32(StateIdle))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.wakeCh:
		case <-ticker.C:
		}

		for e.isPaused() {
			e.resumeMu.Lock()
			sig := e.resumeSig
			e.resumeMu.Unlock()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-sig:
			}
		}

		e.restart.Store(false)
		e.state.Store(int32(StateScanning))

		err := Walk(ctx, e.cat, e.ignoreEngine, e.logger, e.root, e.restart.Load)

		if errors.Is(err, errRestart) {
			e.logger.Debug("scanner: pass restarted", "sync_root", e.root.LocalPath, "backoff", backoff)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}

			backoff = minDuration(backoff*2, restartBackoffMax)
			e.Wake()

			continue
		}

		backoff = restartBackoffInitial

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			e.logger.Error("scanner: pass failed", "sync_root", e.root.LocalPath, "error", err)
		}

		e.state.Store(int32(StateApplying))
		// APPLYING is folded into Walk's own transaction commit above;
		// this state value exists for external observers (status CLI)
		// rather than as a separate phase of work here.
		e.state.Store(int32(StateIdle))
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}

	return b
}
