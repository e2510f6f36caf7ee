// Package analysis wires the session store, the debouncer, the result
// cache and the prediction engine into one interactive coordinator.
//
// Every session mutation bumps a generation counter and retriggers the
// debouncer; once the quiet window elapses the coordinator serves the
// newest request from cache or computes it. Results are applied in
// generation order: a slow computation from an older generation is
// silently dropped when a newer generation's result has already been
// applied, so the published view never moves backwards.
package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/whistle-data/refzone.report/internal/features"
	"github.com/whistle-data/refzone.report/internal/monitoring"
	"github.com/whistle-data/refzone.report/internal/predict"
	"github.com/whistle-data/refzone.report/internal/reqcache"
	"github.com/whistle-data/refzone.report/internal/session"
	"github.com/whistle-data/refzone.report/internal/timeutil"
	"github.com/whistle-data/refzone.report/internal/zones"
)

type generationRequest struct {
	gen uint64
	req predict.Request
}

// View is the latest applied prediction together with the generation
// that produced it.
type View struct {
	Generation uint64
	Request    predict.Request
	Result     *predict.Result
	Err        error
}

// Coordinator drives slider-speed recomputation for one analysis
// session.
type Coordinator struct {
	engine   *predict.Engine
	sessions *session.Store
	cache    *reqcache.Cache[*predict.Result]
	debounce *reqcache.Debouncer[generationRequest]

	mu         sync.Mutex
	gen        uint64
	appliedGen uint64
	view       View
	watchers   map[int]func(View)
	nextWatch  int

	unsubscribe func()
}

// NewCoordinator builds the session → debounce → cache → engine chain.
// quiet and ttl take the package defaults when zero.
func NewCoordinator(engine *predict.Engine, sessions *session.Store, clock timeutil.Clock, opts Options) *Coordinator {
	c := &Coordinator{
		engine:   engine,
		sessions: sessions,
		cache:    reqcache.NewCache[*predict.Result](clock, opts.CacheTTL),
		watchers: make(map[int]func(View)),
	}
	c.debounce = reqcache.NewDebouncer(clock, opts.QuietWindow, c.compute)
	c.unsubscribe = sessions.Subscribe(c.onSession)
	return c
}

// Options tunes the coordinator's cache and debounce behaviour.
type Options struct {
	CacheTTL    time.Duration
	QuietWindow time.Duration
}

// Cache exposes the underlying result cache, used by the warmer.
func (c *Coordinator) Cache() *reqcache.Cache[*predict.Result] { return c.cache }

// View returns the latest applied prediction view.
func (c *Coordinator) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Watch registers fn to receive every applied view. The returned
// function unregisters it.
func (c *Coordinator) Watch(fn func(View)) func() {
	c.mu.Lock()
	id := c.nextWatch
	c.nextWatch++
	c.watchers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// Close detaches the coordinator from the session store.
func (c *Coordinator) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// onSession converts a session snapshot into a debounced prediction
// trigger. Sessions without a selected official have nothing to predict.
func (c *Coordinator) onSession(st session.State) {
	if st.Selection.OfficialID == "" {
		return
	}
	grid, err := zones.ParseGrid(st.Filters.Grid)
	if err != nil {
		monitoring.Logf("analysis: ignoring session with bad grid %q: %v", st.Filters.Grid, err)
		return
	}

	req := predict.Request{
		OfficialID: st.Selection.OfficialID,
		Season:     st.Filters.Season,
		Exposure:   st.Filters.Exposure,
		Grid:       grid,
		Overrides:  st.Overrides,
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	// Debounce on the logical target, not the full cache key: a slider
	// burst varies the overrides and must still coalesce to one compute.
	c.debounce.Trigger(logicalKey(req), generationRequest{gen: gen, req: req})
}

// compute runs after the quiet window. It serves from cache when
// possible and applies the result in generation order.
func (c *Coordinator) compute(_ reqcache.Key, gr generationRequest) {
	key := cacheKey(gr.req)
	if res, ok := c.cache.Get(key); ok {
		c.apply(View{Generation: gr.gen, Request: gr.req, Result: res})
		return
	}

	res, err := c.engine.Heatmap(context.Background(), gr.req)
	if err != nil {
		c.apply(View{Generation: gr.gen, Request: gr.req, Err: err})
		return
	}
	c.cache.Put(key, res)
	c.apply(View{Generation: gr.gen, Request: gr.req, Result: res})
}

// apply publishes v unless a newer generation has already been applied.
func (c *Coordinator) apply(v View) {
	c.mu.Lock()
	if v.Generation <= c.appliedGen {
		c.mu.Unlock()
		return
	}
	c.appliedGen = v.Generation
	c.view = v
	watchers := make([]func(View), 0, len(c.watchers))
	for _, w := range c.watchers {
		watchers = append(watchers, w)
	}
	c.mu.Unlock()

	for _, w := range watchers {
		w(v)
	}
}

// Invalidate drops the cached result for the current session state,
// forcing the next trigger to recompute. Used by explicit refresh.
func (c *Coordinator) Invalidate() {
	st := c.sessions.Get()
	if st.Selection.OfficialID == "" {
		return
	}
	grid, err := zones.ParseGrid(st.Filters.Grid)
	if err != nil {
		return
	}
	c.cache.Invalidate(cacheKey(predict.Request{
		OfficialID: st.Selection.OfficialID,
		Season:     st.Filters.Season,
		Exposure:   st.Filters.Exposure,
		Grid:       grid,
		Overrides:  st.Overrides,
	}))
}

// logicalKey identifies the debounce target: everything but the
// override values.
func logicalKey(req predict.Request) reqcache.Key {
	k := cacheKey(req)
	k.Overrides = ""
	return k
}

func cacheKey(req predict.Request) reqcache.Key {
	return reqcache.Key{
		OfficialID: req.OfficialID,
		Season:     req.Season,
		Exposure:   req.Exposure,
		Grid:       req.Grid.String(),
		Overrides:  features.Fingerprint(req.Overrides),
	}
}
