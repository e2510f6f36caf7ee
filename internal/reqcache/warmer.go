package reqcache

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/whistle-data/refzone.report/internal/monitoring"
	"github.com/whistle-data/refzone.report/internal/timeutil"
)

// Warmer periodically sweeps expired cache entries and re-primes a set
// of pinned keys so the heatmaps an analyst keeps open never go cold.
// The schedule is a standard 5-field cron expression
// (minute hour day-of-month month day-of-week), e.g. "*/5 * * * *".
type Warmer[V any] struct {
	cache   *Cache[V]
	clock   timeutil.Clock
	refresh func(Key) (V, error)
	stop    chan struct{}
	once    sync.Once

	mu     sync.Mutex
	pinned map[Key]bool
}

// NewWarmer creates a warmer over cache. refresh recomputes the value
// for a pinned key; a nil refresh disables re-priming and the warmer
// only sweeps.
func NewWarmer[V any](cache *Cache[V], clock timeutil.Clock, refresh func(Key) (V, error)) *Warmer[V] {
	return &Warmer[V]{
		cache:   cache,
		clock:   clock,
		refresh: refresh,
		stop:    make(chan struct{}),
		pinned:  make(map[Key]bool),
	}
}

// Pin marks k for refresh on every warmer cycle.
func (w *Warmer[V]) Pin(k Key) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pinned[k] = true
}

// Unpin stops refreshing k.
func (w *Warmer[V]) Unpin(k Key) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pinned, k)
}

// Start parses the cron schedule and launches the warm loop. It returns
// an error without starting anything if the expression is invalid.
func (w *Warmer[V]) Start(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid warmer schedule %q: %w", schedule, err)
	}
	go w.loop(sched)
	return nil
}

func (w *Warmer[V]) loop(sched cron.Schedule) {
	for {
		now := w.clock.Now()
		timer := w.clock.NewTimer(sched.Next(now).Sub(now))
		select {
		case <-timer.C():
		case <-w.stop:
			timer.Stop()
			return
		}
		w.RunOnce()
	}
}

// RunOnce performs a single sweep-and-refresh cycle.
func (w *Warmer[V]) RunOnce() {
	if dropped := w.cache.Sweep(); dropped > 0 {
		monitoring.Logf("cache warmer: swept %d expired entries", dropped)
	}
	if w.refresh == nil {
		return
	}

	w.mu.Lock()
	keys := make([]Key, 0, len(w.pinned))
	for k := range w.pinned {
		keys = append(keys, k)
	}
	w.mu.Unlock()

	for _, k := range keys {
		v, err := w.refresh(k)
		if err != nil {
			monitoring.Logf("cache warmer: refresh %s/%s failed: %v", k.OfficialID, k.Season, err)
			continue
		}
		w.cache.Put(k, v)
	}
}

// Stop shuts the warm loop down. Safe to call more than once.
func (w *Warmer[V]) Stop() {
	w.once.Do(func() { close(w.stop) })
}
