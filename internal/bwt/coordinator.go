package bwt

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/bwt-sh/bwt-go/pkg/logging"
)

// debounceWindow is the fixed debounce window spec.md §5/§9 mandates for
// the coordinator's trigger input.
const debounceWindow = 7 * time.Second

// Debouncer collapses bursts of Trigger calls into at most one emission
// per window on C(), while guaranteeing the last trigger in a window is
// never lost: a trigger arriving mid-window schedules one more emission
// right as the window closes.
type Debouncer struct {
	mu      sync.Mutex
	pending bool
	timer   *time.Timer
	window  time.Duration
	out     chan struct{}
}

// NewDebouncer returns a Debouncer with the given collapse window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window, out: make(chan struct{}, 1)}
}

// Trigger requests an emission. If no window is currently open, it fires
// immediately and opens one; otherwise it marks the window as having a
// pending trailing emission.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.pending = true
		return
	}
	d.emit()
	d.timer = time.AfterFunc(d.window, d.windowElapsed)
}

func (d *Debouncer) emit() {
	select {
	case d.out <- struct{}{}:
	default:
	}
}

func (d *Debouncer) windowElapsed() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending {
		d.pending = false
		d.emit()
		d.timer = time.AfterFunc(d.window, d.windowElapsed)
		return
	}
	d.timer = nil
}

// C returns the channel an emission is delivered on.
func (d *Debouncer) C() <-chan struct{} { return d.out }

// Subscriber receives fanned-out IndexUpdate batches. SendUpdates must be
// non-blocking from the coordinator's perspective; implementations queue
// internally (spec.md §4.5).
type Subscriber interface {
	SendUpdates(updates []IndexUpdate)
}

// SyncCoordinator is the single-threaded loop owning the only write-side
// reference to the Indexer: debounced tick loop, shutdown plumbing,
// update fan-out.
type SyncCoordinator struct {
	indexer      *Indexer
	pollInterval time.Duration
	debouncer    *Debouncer
	log          *logging.Logger

	subMu       sync.RWMutex
	subscribers map[uuid.UUID]Subscriber

	shuttingDown atomic.Bool
}

// NewSyncCoordinator builds a coordinator driving indexer, polling at
// pollInterval absent an external trigger.
func NewSyncCoordinator(indexer *Indexer, pollInterval time.Duration) *SyncCoordinator {
	return &SyncCoordinator{
		indexer:      indexer,
		pollInterval: pollInterval,
		debouncer:    NewDebouncer(debounceWindow),
		log:          logging.GetDefault().Component("sync"),
		subscribers:  make(map[uuid.UUID]Subscriber),
	}
}

// Trigger requests an out-of-band sync round, debounced to at most one
// per 7-second window. Exposed for external trigger sources such as a
// UNIX socket listener or an HTTP hook handler; none is part of this
// module. Run's shutdown path fires the same debouncer directly.
func (c *SyncCoordinator) Trigger() { c.debouncer.Trigger() }

// Subscribe registers sub to receive future update fan-outs, returning a
// handle for Unsubscribe.
func (c *SyncCoordinator) Subscribe(sub Subscriber) uuid.UUID {
	id := uuid.New()
	c.subMu.Lock()
	c.subscribers[id] = sub
	c.subMu.Unlock()
	return id
}

// Unsubscribe removes a previously registered subscriber.
func (c *SyncCoordinator) Unsubscribe(id uuid.UUID) {
	c.subMu.Lock()
	delete(c.subscribers, id)
	c.subMu.Unlock()
}

// Run executes the sync loop until shutdown is signaled, either via the
// caller-supplied shutdown channel or the default OS SIGINT/SIGTERM
// handler. Either source fires a synthetic trigger through the
// debouncer: with no debounce window open the loop's wait returns
// immediately; inside an open window it returns when the window closes
// or the poll interval elapses, whichever comes first.
func (c *SyncCoordinator) Run(ctx context.Context, shutdown <-chan struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-shutdown:
		case <-sigCh:
		case <-ctx.Done():
		}
		c.shuttingDown.Store(true)
		c.debouncer.Trigger()
	}()

	for {
		if c.shuttingDown.Load() {
			c.log.Info("shutdown observed, exiting sync loop")
			return
		}

		updates, err := c.indexer.Sync(ctx)
		switch {
		case err != nil:
			c.log.Warn("sync round failed, will retry", "error", err)
		case len(updates) > 0:
			c.fanOut(updates)
		}

		select {
		case <-c.debouncer.C():
		case <-time.After(c.pollInterval):
		}
	}
}

// fanOut delivers updates to every subscriber. A panicking subscriber is
// logged and otherwise ignored; it must not stall the coordinator.
func (c *SyncCoordinator) fanOut(updates []IndexUpdate) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for id, sub := range c.subscribers {
		c.deliver(id, sub, updates)
	}
}

func (c *SyncCoordinator) deliver(id uuid.UUID, sub Subscriber, updates []IndexUpdate) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn("subscriber panicked delivering updates", "subscriber", id, "panic", r)
		}
	}()
	sub.SendUpdates(updates)
}
