package places

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"sweep/data"
)

func newTestServer(t *testing.T) (*Server, *Engine) {
	t.Helper()
	data.SetDir(t.TempDir())

	fp := &fakeProvider{answer: func(q Query) (*Page, error) {
		return pagedAnswer(q, 5), nil
	}}
	e, _, _ := newTestEngine(fp, Options{})
	idx, err := NewIndex(e.Ledger())
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return NewServer(e, idx, DefaultPrefs()), e
}

func doJSON(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler(w, req)
	return w
}

func TestHandlerSearchJSON(t *testing.T) {
	s, e := newTestServer(t)

	w := doJSON(s, http.MethodPost, "/places/search", map[string]interface{}{
		"lat": 41.1, "lng": 29.05, "radius": 750, "type": "Park", "min_rating": 4.0, "min_rating_count": 20,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var rep Report
	if err := json.NewDecoder(w.Body).Decode(&rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.Inserted != 5 || rep.Radius != 750 || rep.Filters.Type != "park" {
		t.Errorf("unexpected report %+v", rep)
	}
	if e.Ledger().Len() != 5 {
		t.Errorf("expected 5 places, got %d", e.Ledger().Len())
	}

	prefs := LoadPrefs(DefaultPrefs())
	if prefs.Radius != 750 || prefs.Center != (LatLng{Lat: 41.1, Lng: 29.05}) {
		t.Errorf("prefs not saved after search: %+v", prefs)
	}

	w = doJSON(s, http.MethodGet, "/places", nil)
	var list struct {
		Count int    `json:"count"`
		State string `json:"state"`
	}
	json.NewDecoder(w.Body).Decode(&list)
	if list.Count != 5 || list.State != "idle" {
		t.Errorf("unexpected listing %+v", list)
	}
}

func TestHandlerSearchForm(t *testing.T) {
	s, e := newTestServer(t)

	form := url.Values{"lat": {"41.1"}, "lng": {"29.05"}, "radius": {"500"}, "type": {"park"}}
	req := httptest.NewRequest(http.MethodPost, "/places/search", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.Handler(w, req)

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/places" {
		t.Errorf("expected redirect to /places, got %d %q", w.Code, w.Header().Get("Location"))
	}
	if e.Ledger().Len() != 5 {
		t.Errorf("expected 5 places, got %d", e.Ledger().Len())
	}

	form.Set("radius", "abc")
	req = httptest.NewRequest(http.MethodPost, "/places/search", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	s.Handler(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad radius, got %d", w.Code)
	}
}

func TestHandlerSearchErrors(t *testing.T) {
	s, e := newTestServer(t)

	if w := doJSON(s, http.MethodGet, "/places/search", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
	if w := doJSON(s, http.MethodPost, "/places/search", map[string]interface{}{"radius": -1}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a negative radius, got %d", w.Code)
	}

	e.state.Store(int32(Searching))
	w := doJSON(s, http.MethodPost, "/places/search", map[string]interface{}{"lat": 1, "lng": 2})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 while a search runs, got %d", w.Code)
	}
	e.state.Store(int32(Idle))
}

func TestHandlerSearchRejectsNonFiniteInput(t *testing.T) {
	s, e := newTestServer(t)

	inputs := []url.Values{
		{"lat": {"41.1"}, "lng": {"29.05"}, "radius": {"Inf"}},
		{"lat": {"41.1"}, "lng": {"29.05"}, "radius": {"NaN"}},
		{"lat": {"41.1"}, "lng": {"-Inf"}, "radius": {"500"}},
		{"lat": {"95"}, "lng": {"29.05"}, "radius": {"500"}},
	}
	for _, form := range inputs {
		req := httptest.NewRequest(http.MethodPost, "/places/search", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		w := httptest.NewRecorder()
		s.Handler(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%v: expected 400, got %d", form, w.Code)
		}
	}

	if w := doJSON(s, http.MethodPost, "/places/search", map[string]interface{}{"lat": 95, "lng": 29, "radius": 500}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for lat 95, got %d", w.Code)
	}
	if len(e.SearchAreas()) != 0 {
		t.Errorf("rejected searches recorded %d areas", len(e.SearchAreas()))
	}

	w := doJSON(s, http.MethodGet, "/places", nil)
	var list struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil || w.Code != http.StatusOK {
		t.Errorf("listing should still work, got %d %v", w.Code, err)
	}
	if w := doJSON(s, http.MethodGet, "/places?lat=41&lng=29&radius=Inf", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an infinite viewport, got %d", w.Code)
	}
}

func TestHandlerSearchKeepsPrefsOnFailure(t *testing.T) {
	s, e := newTestServer(t)

	if w := doJSON(s, http.MethodPost, "/places/search", map[string]interface{}{"lat": 41.1, "lng": 29.05, "radius": 750}); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	e.state.Store(int32(Searching))
	if w := doJSON(s, http.MethodPost, "/places/search", map[string]interface{}{"lat": 10, "lng": 10, "radius": 2000}); w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	e.state.Store(int32(Idle))

	if w := doJSON(s, http.MethodPost, "/places/search", map[string]interface{}{"lat": 10, "lng": 10, "radius": -3}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	prefs := LoadPrefs(DefaultPrefs())
	if prefs.Radius != 750 || prefs.Center != (LatLng{Lat: 41.1, Lng: 29.05}) {
		t.Errorf("failed searches overwrote the saved inputs: %+v", prefs)
	}
}

func TestHandlerPrefsReset(t *testing.T) {
	s, _ := newTestServer(t)
	if w := doJSON(s, http.MethodPost, "/places/search", map[string]interface{}{"lat": 41.1, "lng": 29.05, "radius": 750}); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	if w := doJSON(s, http.MethodGet, "/places/prefs/reset", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
	w := doJSON(s, http.MethodPost, "/places/prefs/reset", nil)
	var prefs Prefs
	if err := json.NewDecoder(w.Body).Decode(&prefs); err != nil || w.Code != http.StatusOK {
		t.Fatalf("reset: %d %v", w.Code, err)
	}
	def := DefaultPrefs()
	if prefs.Radius != def.Radius || prefs.Center != def.Center {
		t.Errorf("expected defaults after reset, got %+v", prefs)
	}
	if got := LoadPrefs(def); got.Radius != def.Radius {
		t.Errorf("reset did not remove the stored prefs: %+v", got)
	}
}

func TestHandlerDeleteBadBody(t *testing.T) {
	s, e := newTestServer(t)
	e.Ledger().InsertIfAbsent(Place{ID: "a"})

	req := httptest.NewRequest(http.MethodPost, "/places/delete", strings.NewReader(`{"id": `))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	s.Handler(w, req)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Invalid JSON") {
		t.Errorf("expected 400 invalid JSON, got %d %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/places/delete", strings.NewReader("id=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	w = httptest.NewRecorder()
	s.Handler(w, req)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "Invalid form") {
		t.Errorf("expected 400 invalid form, got %d %s", w.Code, w.Body.String())
	}
	if e.Ledger().Len() != 1 {
		t.Error("a bad request deleted a place")
	}
}

func TestHandlerSnapshotWhileSearching(t *testing.T) {
	s, e := newTestServer(t)
	e.Ledger().InsertIfAbsent(Place{ID: "a"})

	e.state.Store(int32(Searching))
	req := httptest.NewRequest(http.MethodPost, "/places/snapshot", strings.NewReader(`{"placesData": [], "searchedAreas": []}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	s.Handler(w, req)
	e.state.Store(int32(Idle))

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	if e.Ledger().Len() != 1 {
		t.Error("import during a search replaced the ledger")
	}
}

func TestHandlerDelete(t *testing.T) {
	s, e := newTestServer(t)
	e.Ledger().InsertIfAbsent(Place{ID: "a", Name: "A"})

	if w := doJSON(s, http.MethodPost, "/places/delete", map[string]string{"id": ""}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 with no selection, got %d", w.Code)
	}
	if w := doJSON(s, http.MethodPost, "/places/delete", map[string]string{"id": "nope"}); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown id, got %d", w.Code)
	}
	if w := doJSON(s, http.MethodPost, "/places/delete", map[string]string{"id": "a"}); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if e.Ledger().Len() != 0 {
		t.Error("place not deleted")
	}
}

func TestHandlerClear(t *testing.T) {
	s, e := newTestServer(t)
	e.Ledger().InsertIfAbsent(Place{ID: "a"})
	e.Ledger().AddSearchArea(SearchArea{Center: testCenter, Radius: 100})

	doJSON(s, http.MethodPost, "/places/clear", nil)
	if e.Ledger().Len() != 0 || len(e.SearchAreas()) != 1 {
		t.Errorf("clear should only drop places")
	}
	doJSON(s, http.MethodPost, "/places/clear-areas", nil)
	if len(e.SearchAreas()) != 0 {
		t.Errorf("clear-areas left areas behind")
	}
	e.Ledger().InsertIfAbsent(Place{ID: "a"})
	doJSON(s, http.MethodPost, "/places/clear-all", nil)
	if e.Ledger().Len() != 0 {
		t.Errorf("clear-all left places behind")
	}
}

func TestHandlerExport(t *testing.T) {
	s, e := newTestServer(t)

	if w := doJSON(s, http.MethodGet, "/places/export.kml", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 with nothing to export, got %d", w.Code)
	}

	e.Ledger().InsertIfAbsent(Place{ID: "a", Name: "A & B", Lat: 1, Lng: 2})
	req := httptest.NewRequest(http.MethodGet, "/places/export.kml", nil)
	w := httptest.NewRecorder()
	s.Handler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "places.kml") {
		t.Errorf("unexpected disposition %q", w.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(w.Body.String(), "<name>A &amp; B</name>") {
		t.Errorf("unexpected body %s", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/places/export.kmz", nil)
	w = httptest.NewRecorder()
	s.Handler(w, req)
	if w.Code != http.StatusOK || !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Errorf("expected a zip download, got %d", w.Code)
	}
}

func TestHandlerSnapshot(t *testing.T) {
	s, e := newTestServer(t)
	e.Ledger().InsertIfAbsent(Place{ID: "a", Name: "A"})
	e.Ledger().InsertIfAbsent(Place{ID: "b", Name: "B"})
	e.Ledger().AddSearchArea(SearchArea{Center: testCenter, Radius: 1000})

	req := httptest.NewRequest(http.MethodGet, "/places/snapshot", nil)
	w := httptest.NewRecorder()
	s.Handler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	saved := w.Body.Bytes()

	// load it into a fresh server as a file upload
	s2, e2 := newTestServer(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "progress.json")
	fw.Write(saved)
	mw.Close()

	req = httptest.NewRequest(http.MethodPost, "/places/snapshot", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w = httptest.NewRecorder()
	s2.Handler(w, req)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect after import, got %d: %s", w.Code, w.Body.String())
	}
	if e2.Ledger().Len() != 2 || len(e2.SearchAreas()) != 1 {
		t.Errorf("unexpected ledger after import: %d places, %d areas", e2.Ledger().Len(), len(e2.SearchAreas()))
	}

	req = httptest.NewRequest(http.MethodPost, "/places/snapshot", strings.NewReader(`{"placesData": []}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	s2.Handler(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for a bad snapshot, got %d", w.Code)
	}
	if e2.Ledger().Len() != 2 {
		t.Errorf("bad import changed the ledger")
	}
}

func TestHandlerFind(t *testing.T) {
	s, e := newTestServer(t)
	if _, err := e.Search(context.Background(), testCenter, 1000, Filters{MinRating: 4, MinRatingCount: 20}); err != nil {
		t.Fatal(err)
	}

	w := doJSON(s, http.MethodGet, "/places/find?q=place", nil)
	var res struct {
		Count int `json:"count"`
	}
	json.NewDecoder(w.Body).Decode(&res)
	if w.Code != http.StatusOK || res.Count != 5 {
		t.Errorf("expected 5 hits, got %d (status %d)", res.Count, w.Code)
	}

	if w := doJSON(s, http.MethodGet, "/places/find?q=x&lat=abc&lng=1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad coordinates, got %d", w.Code)
	}
}

func TestHandlerPage(t *testing.T) {
	s, e := newTestServer(t)
	e.Ledger().InsertIfAbsent(Place{ID: "a", Name: "<b>Bold</b> Park", Lat: 41.1, Lng: 29.05})
	e.Ledger().AddSearchArea(SearchArea{Center: testCenter, Radius: 1000})

	req := httptest.NewRequest(http.MethodGet, "/places", nil)
	w := httptest.NewRecorder()
	s.Handler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"places-map", "/places/live", "&lt;b&gt;Bold&lt;/b&gt; Park", `action="/places/delete"`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(body, "<b>Bold</b> Park") {
		t.Error("place name rendered unescaped")
	}
}

func TestHandlerNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	if w := doJSON(s, http.MethodGet, "/places/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
