package places

import (
	"fmt"
	"sync"
	"testing"
)

func TestLedgerInsertIfAbsent(t *testing.T) {
	l := NewLedger()
	if !l.InsertIfAbsent(Place{ID: "a", Name: "first"}) {
		t.Fatal("expected first insert to succeed")
	}
	if l.InsertIfAbsent(Place{ID: "a", Name: "second"}) {
		t.Error("expected duplicate insert to be rejected")
	}
	p, ok := l.Get("a")
	if !ok || p.Name != "first" {
		t.Errorf("expected the first record to win, got %+v", p)
	}
	if l.Len() != 1 {
		t.Errorf("expected 1 place, got %d", l.Len())
	}
}

func TestLedgerConcurrentInsert(t *testing.T) {
	l := NewLedger()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if l.InsertIfAbsent(Place{ID: fmt.Sprint(i)}) {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	if wins != 100 || l.Len() != 100 {
		t.Errorf("expected 100 unique inserts, got %d wins and %d places", wins, l.Len())
	}
}

func TestLedgerRemoveKeepsOrder(t *testing.T) {
	l := NewLedger()
	for _, id := range []string{"a", "b", "c"} {
		l.InsertIfAbsent(Place{ID: id})
	}
	if !l.Remove("b") {
		t.Fatal("expected b to be removed")
	}
	if l.Remove("b") {
		t.Error("expected second remove to report false")
	}
	got := l.Places()
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("unexpected places after remove: %v", got)
	}
	if _, ok := l.Get("c"); !ok {
		t.Error("index not rebuilt after remove")
	}
	// a removed place may be discovered again
	if !l.InsertIfAbsent(Place{ID: "b"}) {
		t.Error("expected re-insert after remove")
	}
}

func TestLedgerClear(t *testing.T) {
	l := NewLedger()
	l.InsertIfAbsent(Place{ID: "a"})
	l.AddSearchArea(SearchArea{Center: testCenter, Radius: 1000})

	l.ClearPlaces()
	if l.Len() != 0 || len(l.SearchAreas()) != 1 {
		t.Errorf("ClearPlaces should keep areas: %d places, %d areas", l.Len(), len(l.SearchAreas()))
	}

	l.InsertIfAbsent(Place{ID: "a"})
	l.ClearSearchAreas()
	if l.Len() != 1 || len(l.SearchAreas()) != 0 {
		t.Errorf("ClearSearchAreas should keep places: %d places, %d areas", l.Len(), len(l.SearchAreas()))
	}

	l.AddSearchArea(SearchArea{Center: testCenter, Radius: 1000})
	l.ClearAll()
	if l.Len() != 0 || len(l.SearchAreas()) != 0 {
		t.Errorf("ClearAll left %d places, %d areas", l.Len(), len(l.SearchAreas()))
	}
	if !l.InsertIfAbsent(Place{ID: "a"}) {
		t.Error("cleared id should be insertable again")
	}
}

func TestLedgerVersion(t *testing.T) {
	l := NewLedger()
	v := l.Version()
	l.InsertIfAbsent(Place{ID: "a"})
	if l.Version() == v {
		t.Error("version unchanged after insert")
	}
	v = l.Version()
	l.InsertIfAbsent(Place{ID: "a"})
	if l.Version() != v {
		t.Error("version changed on a rejected duplicate")
	}
}

func TestLedgerRestore(t *testing.T) {
	l := NewLedger()
	l.InsertIfAbsent(Place{ID: "old"})
	l.AddSearchArea(SearchArea{Center: testCenter, Radius: 50})

	l.Restore(Snapshot{
		Places: []Place{
			{ID: "x", Name: "first"},
			{ID: "y"},
			{ID: "x", Name: "dup"},
		},
		SearchAreas: []SearchArea{{Center: testCenter, Radius: 1000}},
	})

	if _, ok := l.Get("old"); ok {
		t.Error("restore should replace, not merge")
	}
	if l.Len() != 2 {
		t.Errorf("expected duplicates in the snapshot to collapse, got %d", l.Len())
	}
	if p, _ := l.Get("x"); p.Name != "first" {
		t.Errorf("expected first record for x, got %q", p.Name)
	}
	areas := l.SearchAreas()
	if len(areas) != 1 || areas[0].Radius != 1000 {
		t.Errorf("unexpected areas %v", areas)
	}
	if l.InsertIfAbsent(Place{ID: "y"}) {
		t.Error("restored id should block a later insert")
	}
}

func TestLedgerWithin(t *testing.T) {
	l := NewLedger()
	l.InsertIfAbsent(Place{ID: "centre", Lat: 51.5074, Lng: -0.1278})
	l.InsertIfAbsent(Place{ID: "near", Lat: 51.5080, Lng: -0.1280})
	l.InsertIfAbsent(Place{ID: "far", Lat: 51.5200, Lng: -0.1000})
	l.InsertIfAbsent(Place{ID: "paris", Lat: 48.8566, Lng: 2.3522})

	got := l.Within(LatLng{Lat: 51.5074, Lng: -0.1278}, 500)
	if len(got) != 2 {
		t.Fatalf("expected 2 places within 500m, got %d: %v", len(got), got)
	}
	if got[0].ID != "centre" || got[1].ID != "near" {
		t.Errorf("expected nearest first, got %s then %s", got[0].ID, got[1].ID)
	}

	got = l.Within(LatLng{Lat: 51.5074, Lng: -0.1278}, 5000)
	if len(got) != 3 {
		t.Errorf("expected 3 places within 5km, got %d", len(got))
	}

	l.Remove("near")
	got = l.Within(LatLng{Lat: 51.5074, Lng: -0.1278}, 500)
	if len(got) != 1 {
		t.Errorf("removed place still found: %v", got)
	}
}
