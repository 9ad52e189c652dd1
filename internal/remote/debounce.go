package remote

import (
	"context"
	"sync"
	"time"
)

// PublishFunc delivers one coalesced payload for a key.
type PublishFunc func(ctx context.Context, kind string, payload []byte) error

// Debouncer defers and coalesces settings writes. Local state updates
// immediately elsewhere; the durable write happens once per burst of
// edits, carrying only the latest payload for each kind.
type Debouncer struct {
	delay   time.Duration
	publish PublishFunc

	mu      sync.Mutex
	pending map[string]*pendingWrite
	closed  bool
}

type pendingWrite struct {
	timer   *time.Timer
	payload []byte
}

// NewDebouncer creates a debouncer that flushes each key delay after its
// most recent Enqueue.
func NewDebouncer(delay time.Duration, publish PublishFunc) *Debouncer {
	return &Debouncer{
		delay:   delay,
		publish: publish,
		pending: make(map[string]*pendingWrite),
	}
}

// Enqueue records the latest payload for a kind and (re)starts its flush
// timer. A rapid sequence of calls for the same kind produces exactly one
// eventual publish with the final payload.
func (d *Debouncer) Enqueue(kind string, payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	if p, ok := d.pending[kind]; ok {
		p.payload = payload
		p.timer.Reset(d.delay)
		return
	}

	p := &pendingWrite{payload: payload}
	p.timer = time.AfterFunc(d.delay, func() { d.fire(kind) })
	d.pending[kind] = p
}

func (d *Debouncer) fire(kind string) {
	d.mu.Lock()
	p, ok := d.pending[kind]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, kind)
	payload := p.payload
	d.mu.Unlock()

	// Errors are swallowed: the mirror is best-effort and local state is
	// the read path. The next edit re-enqueues anyway.
	_ = d.publish(context.Background(), kind, payload)
}

// Flush publishes every pending payload immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	kinds := make([]string, 0, len(d.pending))
	for kind, p := range d.pending {
		p.timer.Stop()
		kinds = append(kinds, kind)
	}
	d.mu.Unlock()

	for _, kind := range kinds {
		d.fire(kind)
	}
}

// Close stops all timers and drops pending writes without flushing them.
// Callers that need durability should Flush first.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for kind, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, kind)
	}
}
