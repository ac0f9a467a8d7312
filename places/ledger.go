package places

import (
	"sort"
	"sync"

	"github.com/asim/quadtree"
)

// Ledger is the deduplicated, append-only record of discovered places and
// of every disk that was queried to find them. It is safe for concurrent use
// by the engine's search goroutines.
type Ledger struct {
	mu      sync.RWMutex
	places  []Place
	byID    map[string]int
	areas   []SearchArea
	qtree   *quadtree.QuadTree
	version uint64
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		byID:  map[string]int{},
		qtree: newQuadTree(),
	}
}

// newQuadTree creates a tree covering the whole world (lat ±90, lon ±180).
func newQuadTree() *quadtree.QuadTree {
	center := quadtree.NewPoint(0, 0, nil)
	half := quadtree.NewPoint(90, 180, nil)
	return quadtree.New(quadtree.NewAABB(center, half), 0, nil)
}

// InsertIfAbsent stores p unless a place with the same ID is already
// present. It reports whether p was inserted.
func (l *Ledger) InsertIfAbsent(p Place) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byID[p.ID]; ok {
		return false
	}
	l.byID[p.ID] = len(l.places)
	l.places = append(l.places, p)
	l.qtree.Insert(quadtree.NewPoint(p.Lat, p.Lng, p.ID))
	l.version++
	return true
}

// Remove deletes the place with the given ID and reports whether it existed.
func (l *Ledger) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.byID[id]
	if !ok {
		return false
	}
	l.places = append(l.places[:i], l.places[i+1:]...)
	l.reindex()
	l.version++
	return true
}

// AddSearchArea appends a queried disk to the search-area trail.
func (l *Ledger) AddSearchArea(a SearchArea) {
	l.mu.Lock()
	l.areas = append(l.areas, a)
	l.version++
	l.mu.Unlock()
}

// ClearPlaces removes every place, keeping the search areas.
func (l *Ledger) ClearPlaces() {
	l.mu.Lock()
	l.places = nil
	l.reindex()
	l.version++
	l.mu.Unlock()
}

// ClearSearchAreas removes every search area, keeping the places.
func (l *Ledger) ClearSearchAreas() {
	l.mu.Lock()
	l.areas = nil
	l.version++
	l.mu.Unlock()
}

// ClearAll empties the ledger.
func (l *Ledger) ClearAll() {
	l.mu.Lock()
	l.places = nil
	l.areas = nil
	l.reindex()
	l.version++
	l.mu.Unlock()
}

// Places returns the stored places in insertion order.
func (l *Ledger) Places() []Place {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Place, len(l.places))
	copy(out, l.places)
	return out
}

// SearchAreas returns the search-area trail in insertion order.
func (l *Ledger) SearchAreas() []SearchArea {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]SearchArea, len(l.areas))
	copy(out, l.areas)
	return out
}

// Get returns the place with the given ID.
func (l *Ledger) Get(id string) (Place, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.byID[id]
	if !ok {
		return Place{}, false
	}
	return l.places[i], true
}

// Len returns the number of stored places.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.places)
}

// Version increases on every mutation. Readers that cache derived state
// compare it to decide when to rebuild.
func (l *Ledger) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Snapshot returns a copy of the ledger contents.
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{Places: l.Places(), SearchAreas: l.SearchAreas()}
}

// Restore replaces the ledger contents with s. Nothing is merged with the
// previous state. Within s the first place for an ID wins.
func (l *Ledger) Restore(s Snapshot) {
	places := make([]Place, 0, len(s.Places))
	seen := make(map[string]bool, len(s.Places))
	for _, p := range s.Places {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		places = append(places, p)
	}

	l.mu.Lock()
	l.places = places
	l.areas = append([]SearchArea(nil), s.SearchAreas...)
	l.reindex()
	l.version++
	l.mu.Unlock()
}

// Within returns the places inside the disk, nearest first. The quadtree
// search is a bounding box, so results are refined by haversine distance.
func (l *Ledger) Within(center LatLng, radius float64) []Place {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c := quadtree.NewPoint(center.Lat, center.Lng, nil)
	boundary := quadtree.NewAABB(c, c.HalfPoint(radius))
	points := l.qtree.Search(boundary)

	type hit struct {
		place Place
		dist  float64
	}
	hits := make([]hit, 0, len(points))
	for _, pt := range points {
		id, ok := pt.Data().(string)
		if !ok {
			continue
		}
		i, ok := l.byID[id]
		if !ok {
			continue
		}
		p := l.places[i]
		dist := haversine(center.Lat, center.Lng, p.Lat, p.Lng)
		if dist > radius {
			continue // bounding box is approximate; filter to actual radius
		}
		hits = append(hits, hit{place: p, dist: dist})
	}
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].dist < hits[j].dist
	})

	out := make([]Place, len(hits))
	for i, h := range hits {
		out[i] = h.place
	}
	return out
}

// reindex rebuilds the ID map and quadtree from l.places. Callers hold l.mu.
func (l *Ledger) reindex() {
	l.byID = make(map[string]int, len(l.places))
	l.qtree = newQuadTree()
	for i, p := range l.places {
		l.byID[p.ID] = i
		l.qtree.Insert(quadtree.NewPoint(p.Lat, p.Lng, p.ID))
	}
}
