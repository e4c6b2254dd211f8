package resilience

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Outcome is the result of an admission request.
type Outcome int

const (
	// OutcomeAdmit means a permit was available at arrival.
	OutcomeAdmit Outcome = iota
	// OutcomeQueuedThenAdmit means the request waited in the queue and was
	// released by a window rotation.
	OutcomeQueuedThenAdmit
	// OutcomeReject means the request was not admitted.
	OutcomeReject
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeAdmit:
		return "admit"
	case OutcomeQueuedThenAdmit:
		return "queue"
	case OutcomeReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Decision describes how a request was handled by the AdmissionGate.
type Decision struct {
	Outcome   Outcome
	Partition string

	// RetryAfter is the time until the partition's next window when the
	// request was rejected because the queue was full.
	RetryAfter time.Duration

	// Waited is the time spent queued.
	Waited time.Duration

	// Err is the error Acquire returned with this decision.
	Err error
}

// Admitted reports whether the request may proceed.
func (d Decision) Admitted() bool {
	return d.Outcome == OutcomeAdmit || d.Outcome == OutcomeQueuedThenAdmit
}

// Label names the decision for metrics: admit, queue, reject, timeout or
// cancel.
func (d Decision) Label() string {
	switch {
	case d.Admitted():
		return d.Outcome.String()
	case errors.Is(d.Err, ErrAdmissionTimeout):
		return "timeout"
	case errors.Is(d.Err, context.Canceled), errors.Is(d.Err, context.DeadlineExceeded):
		return "cancel"
	default:
		return "reject"
	}
}

// AdmissionConfig configures the admission gate.
type AdmissionConfig struct {
	// PermitLimit is the number of requests admitted per window per partition.
	// Default: 100
	PermitLimit int

	// Window is the fixed window length.
	// Default: 1 minute
	Window time.Duration

	// QueueLimit is the number of requests that may wait for the next window.
	// Zero disables queueing.
	QueueLimit int

	// MaxWait is the longest a queued request waits before giving up with
	// ErrAdmissionTimeout.
	// Default: 30 seconds
	MaxWait time.Duration

	// MaxPartitions caps the number of tracked partitions. Idle partitions
	// are evicted least recently used first. A partition is idle when nobody
	// is queued and it has used no permit of its current window, so eviction
	// never hands out a second budget within one window.
	// Default: 10000
	MaxPartitions int

	// Clock is the time source.
	// Default: the wall clock
	Clock clock.Clock

	// OnDecision is called with every final decision.
	OnDecision func(Decision)
}

// DefaultAdmissionConfig returns the gate defaults.
func DefaultAdmissionConfig() AdmissionConfig {
	return AdmissionConfig{
		PermitLimit:   100,
		Window:        time.Minute,
		QueueLimit:    10,
		MaxWait:       30 * time.Second,
		MaxPartitions: 10000,
	}
}

// Validate rejects non-positive limits.
func (c AdmissionConfig) Validate() error {
	switch {
	case c.PermitLimit <= 0:
		return fmt.Errorf("%w: permit limit must be positive", ErrInvalidConfig)
	case c.Window <= 0:
		return fmt.Errorf("%w: window must be positive", ErrInvalidConfig)
	case c.QueueLimit < 0:
		return fmt.Errorf("%w: queue limit must not be negative", ErrInvalidConfig)
	case c.MaxWait <= 0:
		return fmt.Errorf("%w: max wait must be positive", ErrInvalidConfig)
	case c.MaxPartitions <= 0:
		return fmt.Errorf("%w: max partitions must be positive", ErrInvalidConfig)
	}
	return nil
}

// AdmissionStats contains admission gate counters.
type AdmissionStats struct {
	Partitions int
	Admitted   int64
	Queued     int64
	Rejected   int64
	TimedOut   int64
	Cancelled  int64
}

// AdmissionGate is a per-partition fixed-window limiter with a bounded FIFO
// wait queue.
//
// Each partition gets PermitLimit permits per Window. Windows rotate lazily
// when the partition is next touched; no timer runs for idle partitions.
// When permits run out, up to QueueLimit requests wait in arrival order and
// are released head first at the next rotation. Beyond that, requests are
// rejected at once with a retry-after hint.
type AdmissionGate struct {
	config AdmissionConfig
	clock  clock.Clock

	mu         sync.Mutex
	partitions map[string]*list.Element // of *admissionWindow
	lru        *list.List

	admitted  atomic.Int64
	queued    atomic.Int64
	rejected  atomic.Int64
	timedOut  atomic.Int64
	cancelled atomic.Int64
}

type admissionWindow struct {
	key string

	mu      sync.Mutex
	start   time.Time
	permits int
	queue   list.List // of *admissionWaiter
	evicted bool
}

type admissionWaiter struct {
	ready    chan struct{}
	admitted bool
	elem     *list.Element
}

// NewAdmissionGate creates a new admission gate. Zero values take defaults,
// except QueueLimit where zero means no queue.
func NewAdmissionGate(config AdmissionConfig) (*AdmissionGate, error) {
	def := DefaultAdmissionConfig()
	if config.PermitLimit == 0 {
		config.PermitLimit = def.PermitLimit
	}
	if config.Window == 0 {
		config.Window = def.Window
	}
	if config.MaxWait == 0 {
		config.MaxWait = def.MaxWait
	}
	if config.MaxPartitions == 0 {
		config.MaxPartitions = def.MaxPartitions
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &AdmissionGate{
		config:     config,
		clock:      config.Clock,
		partitions: make(map[string]*list.Element),
		lru:        list.New(),
	}, nil
}

// Acquire asks for a permit for partition.
//
// It returns immediately with OutcomeAdmit when a permit is free, and with
// OutcomeReject and ErrAdmissionRejected when the queue is full. Otherwise
// the caller waits in the queue until a rotation releases it
// (OutcomeQueuedThenAdmit), MaxWait elapses (ErrAdmissionTimeout) or ctx
// ends (ctx.Err()).
func (g *AdmissionGate) Acquire(ctx context.Context, partition string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		g.cancelled.Add(1)
		return g.decide(Decision{Outcome: OutcomeReject, Partition: partition, Err: err}), err
	}

	w, now := g.lockWindow(partition)

	if w.permits > 0 && w.queue.Len() == 0 {
		w.permits--
		w.mu.Unlock()
		g.admitted.Add(1)
		return g.decide(Decision{Outcome: OutcomeAdmit, Partition: partition}), nil
	}

	if w.queue.Len() >= g.config.QueueLimit {
		retryAfter := w.start.Add(g.config.Window).Sub(now)
		w.mu.Unlock()
		g.rejected.Add(1)
		return g.decide(Decision{
			Outcome:    OutcomeReject,
			Partition:  partition,
			RetryAfter: retryAfter,
			Err:        ErrAdmissionRejected,
		}), ErrAdmissionRejected
	}

	wt := &admissionWaiter{ready: make(chan struct{})}
	wt.elem = w.queue.PushBack(wt)
	next := w.start.Add(g.config.Window)
	w.mu.Unlock()
	g.queued.Add(1)

	return g.wait(ctx, w, wt, now, next)
}

func (g *AdmissionGate) wait(ctx context.Context, w *admissionWindow, wt *admissionWaiter, enqueued, next time.Time) (Decision, error) {
	rotation := g.clock.Timer(positive(next.Sub(g.clock.Now())))
	defer rotation.Stop()
	deadline := g.clock.Timer(g.config.MaxWait)
	defer deadline.Stop()

	admitted := func() (Decision, error) {
		g.admitted.Add(1)
		return g.decide(Decision{
			Outcome:   OutcomeQueuedThenAdmit,
			Partition: w.key,
			Waited:    g.clock.Since(enqueued),
		}), nil
	}

	// leave removes the waiter unless a rotation admitted it first; the
	// permit is never lost either way.
	leave := func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		if wt.admitted {
			return false
		}
		w.queue.Remove(wt.elem)
		return true
	}

	for {
		select {
		case <-wt.ready:
			return admitted()

		case <-rotation.C:
			now := g.clock.Now()
			w.mu.Lock()
			g.rotateLocked(w, now)
			ok := wt.admitted
			next = w.start.Add(g.config.Window)
			w.mu.Unlock()
			if ok {
				return admitted()
			}
			rotation.Reset(positive(next.Sub(now)))

		case <-deadline.C:
			if !leave() {
				return admitted()
			}
			g.timedOut.Add(1)
			return g.decide(Decision{
				Outcome:   OutcomeReject,
				Partition: w.key,
				Waited:    g.clock.Since(enqueued),
				Err:       ErrAdmissionTimeout,
			}), ErrAdmissionTimeout

		case <-ctx.Done():
			if !leave() {
				return admitted()
			}
			g.cancelled.Add(1)
			return g.decide(Decision{
				Outcome:   OutcomeReject,
				Partition: w.key,
				Waited:    g.clock.Since(enqueued),
				Err:       ctx.Err(),
			}), ctx.Err()
		}
	}
}

// rotateLocked advances w to the window containing now, refills permits and
// releases waiters head first. w.mu must be held.
func (g *AdmissionGate) rotateLocked(w *admissionWindow, now time.Time) {
	size := g.config.Window
	if now.Before(w.start.Add(size)) {
		return
	}
	elapsed := now.Sub(w.start)
	w.start = w.start.Add(elapsed / size * size)
	w.permits = g.config.PermitLimit

	for w.permits > 0 && w.queue.Len() > 0 {
		front := w.queue.Front()
		wt := front.Value.(*admissionWaiter)
		w.queue.Remove(front)
		wt.admitted = true
		close(wt.ready)
		w.permits--
	}
}

// lockWindow returns the partition's live window, rotated to now, with w.mu
// held. A window evicted between lookup and lock is discarded and looked up
// again, so a partition never draws from two windows.
func (g *AdmissionGate) lockWindow(partition string) (*admissionWindow, time.Time) {
	for {
		w := g.window(partition)
		w.mu.Lock()
		if w.evicted {
			w.mu.Unlock()
			continue
		}
		now := g.clock.Now()
		g.rotateLocked(w, now)
		return w, now
	}
}

// window returns the partition's window, creating it on first use.
func (g *AdmissionGate) window(partition string) *admissionWindow {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.partitions[partition]; ok {
		g.lru.MoveToFront(e)
		return e.Value.(*admissionWindow)
	}

	w := &admissionWindow{
		key:     partition,
		start:   g.clock.Now(),
		permits: g.config.PermitLimit,
	}
	g.partitions[partition] = g.lru.PushFront(w)
	g.evictLocked()
	return w
}

// evictLocked drops idle partitions from the cold end until the cap holds.
// Partitions with queued requests or spent permits in an unexpired window
// are kept, so the cap can be exceeded while every partition is busy.
// g.mu must be held.
func (g *AdmissionGate) evictLocked() {
	now := g.clock.Now()
	front := g.lru.Front()
	for e := g.lru.Back(); e != nil && e != front && len(g.partitions) > g.config.MaxPartitions; {
		prev := e.Prev()
		w := e.Value.(*admissionWindow)

		w.mu.Lock()
		idle := g.idleLocked(w, now)
		if idle {
			w.evicted = true
		}
		w.mu.Unlock()

		if idle {
			g.lru.Remove(e)
			delete(g.partitions, w.key)
		}
		e = prev
	}
}

// idleLocked reports whether dropping w loses no state: nothing is queued
// and a fresh window would grant the same permits. w.mu must be held.
func (g *AdmissionGate) idleLocked(w *admissionWindow, now time.Time) bool {
	if w.queue.Len() > 0 {
		return false
	}
	return w.permits == g.config.PermitLimit || !now.Before(w.start.Add(g.config.Window))
}

func (g *AdmissionGate) decide(d Decision) Decision {
	if g.config.OnDecision != nil {
		g.config.OnDecision(d)
	}
	return d
}

// QueueLen returns the number of requests waiting for partition.
func (g *AdmissionGate) QueueLen(partition string) int {
	g.mu.Lock()
	e, ok := g.partitions[partition]
	g.mu.Unlock()
	if !ok {
		return 0
	}
	w := e.Value.(*admissionWindow)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queue.Len()
}

// Stats returns current admission gate counters.
func (g *AdmissionGate) Stats() AdmissionStats {
	g.mu.Lock()
	n := len(g.partitions)
	g.mu.Unlock()

	return AdmissionStats{
		Partitions: n,
		Admitted:   g.admitted.Load(),
		Queued:     g.queued.Load(),
		Rejected:   g.rejected.Load(),
		TimedOut:   g.timedOut.Load(),
		Cancelled:  g.cancelled.Load(),
	}
}

// Config returns the admission gate configuration.
func (g *AdmissionGate) Config() AdmissionConfig {
	return g.config
}

func positive(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Nanosecond
	}
	return d
}
