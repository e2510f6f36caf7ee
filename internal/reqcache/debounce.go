package reqcache

import (
	"sync"
	"time"

	"github.com/whistle-data/refzone.report/internal/timeutil"
)

// DefaultQuietWindow is how long a key must stay quiet before its
// pending value is flushed.
const DefaultQuietWindow = 250 * time.Millisecond

// Debouncer coalesces bursts of triggers per key. Each Trigger restarts
// the key's quiet window and replaces its pending value; only after the
// window elapses with no further triggers does the flush function run,
// and it runs with the newest value of the burst. Distinct keys debounce
// independently.
type Debouncer[V any] struct {
	clock timeutil.Clock
	quiet time.Duration
	flush func(Key, V)

	mu      sync.Mutex
	gen     uint64
	pending map[Key]*pendingTrigger[V]
}

type pendingTrigger[V any] struct {
	gen   uint64
	value V
}

// NewDebouncer creates a debouncer that calls flush after quiet elapses
// without a newer trigger for the same key. A zero or negative quiet
// falls back to DefaultQuietWindow. flush runs on the timer goroutine;
// it must not call back into the debouncer for the same key.
func NewDebouncer[V any](clock timeutil.Clock, quiet time.Duration, flush func(Key, V)) *Debouncer[V] {
	if quiet <= 0 {
		quiet = DefaultQuietWindow
	}
	return &Debouncer[V]{
		clock:   clock,
		quiet:   quiet,
		flush:   flush,
		pending: make(map[Key]*pendingTrigger[V]),
	}
}

// Trigger records v as the newest value for k and restarts k's quiet
// window. Any previously pending value for k is discarded.
func (d *Debouncer[V]) Trigger(k Key, v V) {
	d.mu.Lock()

	// Superseded timers are not stopped; they fire on schedule and are
	// dropped by the generation check in await.
	p, ok := d.pending[k]
	if !ok {
		p = &pendingTrigger[V]{}
		d.pending[k] = p
	}
	d.gen++
	p.gen = d.gen
	p.value = v
	gen := p.gen
	timer := d.clock.NewTimer(d.quiet)
	d.mu.Unlock()

	go d.await(k, gen, timer)
}

// await waits for one timer to fire and flushes the key's pending value
// if no newer trigger superseded it in the meantime.
func (d *Debouncer[V]) await(k Key, gen uint64, timer timeutil.Timer) {
	<-timer.C()

	d.mu.Lock()
	p, ok := d.pending[k]
	if !ok || p.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, k)
	v := p.value
	d.mu.Unlock()

	d.flush(k, v)
}

// Cancel discards any pending value for k without flushing it.
func (d *Debouncer[V]) Cancel(k Key) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, k)
}

// Pending reports whether k has an unflushed value.
func (d *Debouncer[V]) Pending(k Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[k]
	return ok
}
