package places

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"sweep/app"
)

var (
	ErrSearchInProgress = errors.New("places: a search is already running")
	ErrInvalidRadius    = errors.New("places: radius must be a positive number")
	ErrInvalidCenter    = errors.New("places: center must be a valid latitude and longitude")
	ErrNoSelection      = errors.New("places: no place selected")
	ErrPlaceNotFound    = errors.New("places: place not found")
)

// saturationWarning is shown once per search when a branch is still
// saturated at the maximum depth.
const saturationWarning = "Maximum limit reached in some areas. Try reducing the radius or zooming in."

func logf(format string, args ...interface{}) {
	app.Log("places", format, args...)
}

// State is the engine's search state.
type State int32

const (
	Idle State = iota
	Searching
	Importing
)

// NoSubdivision as Options.MaxDepth queries only the root disk.
const NoSubdivision = -1

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Importing:
		return "importing"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Options tune the recursion. The zero value of a field means "use the
// default" except where noted.
type Options struct {
	// MaxDepth is the deepest level that may still be subdivided from.
	// NoSubdivision stops at the root.
	MaxDepth int
	// SaturationLimit is the raw result count at which a disk is
	// considered capped by the provider.
	SaturationLimit int
	// MinSplitRadius is the radius in metres at or below which a disk is
	// never subdivided.
	MinSplitRadius float64
	// PageDelay is the wait before requesting the next page of a query.
	PageDelay time.Duration
	// QueryTimeout bounds each provider request; 0 disables it.
	QueryTimeout time.Duration
	// MaxConcurrentQueries caps in-flight provider requests; 0 means no cap.
	MaxConcurrentQueries int
	// Notifier receives events as the search progresses.
	Notifier Notifier
	// Sleep waits between pages. Tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions returns the limits of the legacy Nearby Search API:
// 60 results over three pages of 20, recursion three levels deep.
func DefaultOptions() Options {
	return Options{
		MaxDepth:        3,
		SaturationLimit: 60,
		MinSplitRadius:  100,
		PageDelay:       1000 * time.Millisecond,
		QueryTimeout:    30 * time.Second,
	}
}

// Report summarises one top-level search.
type Report struct {
	RunID           string        `json:"run_id"`
	Center          LatLng        `json:"center"`
	Radius          float64       `json:"radius"`
	Filters         Filters       `json:"filters"`
	Nodes           int           `json:"nodes"`
	Requests        int           `json:"requests"`
	Fetched         int           `json:"fetched"`
	Inserted        int           `json:"inserted"`
	Failures        int           `json:"failures"`
	MaxDepthReached int           `json:"max_depth_reached"`
	Incomplete      bool          `json:"incomplete"`
	Warning         string        `json:"warning,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Engine discovers places by recursively subdividing saturated disks.
// Only one search may run at a time.
type Engine struct {
	provider Provider
	ledger   *Ledger
	opts     Options
	notify   Notifier
	sem      *semaphore.Weighted

	state atomic.Int32

	mu   sync.Mutex
	last *Report
}

// NewEngine returns an engine that queries p and records into l.
func NewEngine(p Provider, l *Ledger, opts Options) *Engine {
	def := DefaultOptions()
	switch {
	case opts.MaxDepth == 0:
		opts.MaxDepth = def.MaxDepth
	case opts.MaxDepth < 0:
		opts.MaxDepth = 0
	}
	if opts.SaturationLimit <= 0 {
		opts.SaturationLimit = def.SaturationLimit
	}
	if opts.MinSplitRadius <= 0 {
		opts.MinSplitRadius = def.MinSplitRadius
	}
	if opts.PageDelay <= 0 {
		opts.PageDelay = def.PageDelay
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}

	e := &Engine{
		provider: p,
		ledger:   l,
		opts:     opts,
	}
	if opts.Notifier != nil {
		e.notify = Notifiers{logNotifier{}, opts.Notifier}
	} else {
		e.notify = logNotifier{}
	}
	if opts.MaxConcurrentQueries > 0 {
		e.sem = semaphore.NewWeighted(int64(opts.MaxConcurrentQueries))
	}
	return e
}

// Ledger returns the ledger the engine records into.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// State returns whether a search is running.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// LastReport returns the report of the most recent completed search.
func (e *Engine) LastReport() *Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Search queries the disk around center and, wherever the provider's result
// cap was hit, the sub-disks of it, until the whole tree has drained.
// Provider failures never fail the search; they end the affected branch.
// The returned error is ErrSearchInProgress, ErrInvalidRadius,
// ErrInvalidCenter, or the context's error if ctx was cancelled.
func (e *Engine) Search(ctx context.Context, center LatLng, radius float64, f Filters) (*Report, error) {
	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius <= 0 {
		return nil, ErrInvalidRadius
	}
	if !center.Valid() {
		return nil, ErrInvalidCenter
	}
	if !e.state.CompareAndSwap(int32(Idle), int32(Searching)) {
		return nil, ErrSearchInProgress
	}
	defer e.state.Store(int32(Idle))

	r := &run{
		report: Report{
			RunID:   uuid.New().String(),
			Center:  center,
			Radius:  radius,
			Filters: f,
		},
	}
	logf("search %s: %s r=%.0fm type=%q keyword=%q", r.report.RunID, center, radius, f.Type, f.Keyword)

	start := time.Now()
	err := e.searchNode(ctx, r, SearchArea{Center: center, Radius: radius}, 0)
	report := r.finish(time.Since(start))

	e.mu.Lock()
	e.last = report
	e.mu.Unlock()
	e.notify.SearchDone(report)

	return report, err
}

// searchNode runs one disk of the recursion tree.
func (e *Engine) searchNode(ctx context.Context, r *run, area SearchArea, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.ledger.AddSearchArea(area)
	e.notify.SearchAreaAdded(area)
	r.visit(depth)

	fetched, ok := e.drain(ctx, r, area)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ok {
		return nil
	}

	saturated := fetched >= e.opts.SaturationLimit
	if saturated && area.Radius > e.opts.MinSplitRadius && depth < e.opts.MaxDepth {
		g, gctx := errgroup.WithContext(ctx)
		for _, child := range subdivide(area.Center, area.Radius) {
			g.Go(func() error {
				return e.searchNode(gctx, r, child, depth+1)
			})
		}
		return g.Wait()
	}

	if saturated && depth >= e.opts.MaxDepth && r.warn() {
		e.notify.Warn(saturationWarning)
	}
	return nil
}

// drain fetches every page of the query for area, recording accepted places.
// It returns the raw result count and false if the provider failed.
func (e *Engine) drain(ctx context.Context, r *run, area SearchArea) (int, bool) {
	q := Query{
		Center:  area.Center,
		Radius:  area.Radius,
		Type:    r.report.Filters.Type,
		Keyword: r.report.Filters.Keyword,
	}

	fetched := 0
	for {
		page, err := e.query(ctx, q)
		r.requests.Add(1)
		if err != nil {
			if ctx.Err() == nil {
				r.failures.Add(1)
				logf("query %s r=%.0fm failed: %v", area.Center, area.Radius, err)
			}
			return fetched, false
		}

		switch page.Status {
		case StatusOK:
		case StatusZeroResults:
			return fetched, true
		default:
			r.failures.Add(1)
			logf("query %s r=%.0fm failed with status %s", area.Center, area.Radius, page.Status)
			return fetched, false
		}

		for _, res := range page.Results {
			if res.PlaceID == "" || !r.report.Filters.Accepts(res) {
				continue
			}
			p := res.Place()
			if e.ledger.InsertIfAbsent(p) {
				r.inserted.Add(1)
				e.notify.PlaceAdded(p)
			}
		}
		fetched += len(page.Results)
		r.fetched.Add(int64(len(page.Results)))

		if !page.HasNext() {
			return fetched, true
		}
		if err := e.opts.Sleep(ctx, e.opts.PageDelay); err != nil {
			return fetched, false
		}
		q.PageToken = page.NextPageToken
	}
}

// query runs a single provider request under the concurrency cap and the
// per-request timeout.
func (e *Engine) query(ctx context.Context, q Query) (*Page, error) {
	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer e.sem.Release(1)
	}
	if e.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.QueryTimeout)
		defer cancel()
	}

	page, err := e.provider.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, errors.New("provider returned no page")
	}
	return page, nil
}

// Import replaces the ledger with the snapshot read from r. It holds the
// engine state for the duration so a search cannot start half way through.
func (e *Engine) Import(r io.Reader) (Snapshot, error) {
	if !e.state.CompareAndSwap(int32(Idle), int32(Importing)) {
		return Snapshot{}, ErrSearchInProgress
	}
	defer e.state.Store(int32(Idle))
	return Import(e.ledger, r)
}

// DeletePlace removes a single place. An empty id means nothing is
// selected.
func (e *Engine) DeletePlace(id string) error {
	if id == "" {
		return ErrNoSelection
	}
	if !e.ledger.Remove(id) {
		return ErrPlaceNotFound
	}
	logf("deleted place %s (%d left)", id, e.ledger.Len())
	return nil
}

// ClearPlaces removes every place, keeping the search areas.
func (e *Engine) ClearPlaces() {
	e.ledger.ClearPlaces()
}

// ClearSearchAreas removes the search-area trail, keeping the places.
func (e *Engine) ClearSearchAreas() {
	e.ledger.ClearSearchAreas()
}

// ClearAll empties the ledger.
func (e *Engine) ClearAll() {
	e.ledger.ClearAll()
}

// Places returns the discovered places in insertion order.
func (e *Engine) Places() []Place {
	return e.ledger.Places()
}

// SearchAreas returns every disk queried so far in insertion order.
func (e *Engine) SearchAreas() []SearchArea {
	return e.ledger.SearchAreas()
}

// run holds the state shared by every node of one top-level search.
type run struct {
	report Report

	nodes    atomic.Int64
	requests atomic.Int64
	fetched  atomic.Int64
	inserted atomic.Int64
	failures atomic.Int64
	depth    atomic.Int32
	warned   atomic.Bool
}

func (r *run) visit(depth int) {
	r.nodes.Add(1)
	for {
		cur := r.depth.Load()
		if int32(depth) <= cur || r.depth.CompareAndSwap(cur, int32(depth)) {
			return
		}
	}
}

// warn reports whether this is the first saturation warning of the run.
func (r *run) warn() bool {
	return r.warned.CompareAndSwap(false, true)
}

func (r *run) finish(d time.Duration) *Report {
	rep := r.report
	rep.Nodes = int(r.nodes.Load())
	rep.Requests = int(r.requests.Load())
	rep.Fetched = int(r.fetched.Load())
	rep.Inserted = int(r.inserted.Load())
	rep.Failures = int(r.failures.Load())
	rep.MaxDepthReached = int(r.depth.Load())
	rep.Incomplete = r.warned.Load()
	if rep.Incomplete {
		rep.Warning = saturationWarning
	}
	rep.Duration = d
	return &rep
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
