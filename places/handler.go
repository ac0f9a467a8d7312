package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"sweep/app"
)

// maxSnapshotBytes bounds an uploaded snapshot.
const maxSnapshotBytes = 32 << 20

// Server exposes an engine over HTTP for the map front end.
type Server struct {
	engine   *Engine
	index    *Index
	defaults Prefs
}

// NewServer returns a server over e. idx may be nil, which disables
// /places/find.
func NewServer(e *Engine, idx *Index, defaults Prefs) *Server {
	return &Server{engine: e, index: idx, defaults: defaults}
}

// Register mounts the handlers on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/places", s.Handler)
	mux.HandleFunc("/places/", s.Handler)
}

// Handler handles /places requests
func (s *Server) Handler(w http.ResponseWriter, r *http.Request) {
	switch strings.TrimSuffix(r.URL.Path, "/") {
	case "/places":
		app.Route(app.RouteOpts{
			JSON:    s.handleList,
			HTML:    s.handlePage,
			Methods: []string{http.MethodGet},
		})(w, r)
	case "/places/search":
		s.post(w, r, s.handleSearch)
	case "/places/delete":
		s.post(w, r, s.handleDelete)
	case "/places/clear":
		s.post(w, r, func(w http.ResponseWriter, r *http.Request) {
			s.engine.ClearPlaces()
			s.done(w, r, map[string]interface{}{"cleared": "places"})
		})
	case "/places/clear-areas":
		s.post(w, r, func(w http.ResponseWriter, r *http.Request) {
			s.engine.ClearSearchAreas()
			s.done(w, r, map[string]interface{}{"cleared": "areas"})
		})
	case "/places/clear-all":
		s.post(w, r, func(w http.ResponseWriter, r *http.Request) {
			s.engine.ClearAll()
			s.done(w, r, map[string]interface{}{"cleared": "all"})
		})
	case "/places/export.kml":
		s.handleExport(w, r, false)
	case "/places/export.kmz":
		s.handleExport(w, r, true)
	case "/places/snapshot":
		s.handleSnapshot(w, r)
	case "/places/find":
		s.handleFind(w, r)
	case "/places/prefs":
		app.RespondJSON(w, LoadPrefs(s.defaults))
	case "/places/prefs/reset":
		s.post(w, r, func(w http.ResponseWriter, r *http.Request) {
			if err := ResetPrefs(); err != nil {
				s.fail(w, r, err)
				return
			}
			s.done(w, r, LoadPrefs(s.defaults))
		})
	default:
		app.NotFound(w, r, "Not found")
	}
}

func (s *Server) post(w http.ResponseWriter, r *http.Request, fn http.HandlerFunc) {
	if r.Method != http.MethodPost {
		app.MethodNotAllowed(w, r)
		return
	}
	fn(w, r)
}

// done answers a successful form action: JSON clients get v, browsers are
// sent back to the map.
func (s *Server) done(w http.ResponseWriter, r *http.Request, v interface{}) {
	if app.WantsJSON(r) || app.SendsJSON(r) {
		app.RespondJSON(w, v)
		return
	}
	http.Redirect(w, r, "/places", http.StatusSeeOther)
}

// fail maps package errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSearchInProgress):
		app.Error(w, r, http.StatusConflict, "A search is already running. Wait for it to finish.")
	case errors.Is(err, ErrInvalidRadius):
		app.BadRequest(w, r, "Radius must be a positive number of metres.")
	case errors.Is(err, ErrInvalidCenter):
		app.BadRequest(w, r, "Choose a point on the map: latitude must be within ±90 and longitude within ±180.")
	case errors.Is(err, ErrNoSelection):
		app.BadRequest(w, r, "Please select a place to delete.")
	case errors.Is(err, ErrPlaceNotFound):
		app.NotFound(w, r, "That place is not in the list.")
	case errors.Is(err, ErrEmptyLedger):
		app.BadRequest(w, r, "No data to export. Please perform a search first.")
	case errors.Is(err, ErrInvalidSnapshot):
		app.Error(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		logf("request %s failed: %v", r.URL.Path, err)
		app.ServerError(w, r, "Something went wrong. Please try again.")
	}
}

// handleList returns the ledger, optionally limited to a viewport disk.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	results := s.engine.Places()
	if q.Get("lat") != "" && q.Get("lng") != "" && q.Get("radius") != "" {
		lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
		lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
		radius, rErr := strconv.ParseFloat(q.Get("radius"), 64)
		center := LatLng{Lat: lat, Lng: lng}
		if latErr != nil || lngErr != nil || rErr != nil || !center.Valid() || !(radius > 0) || math.IsInf(radius, 0) {
			app.BadRequest(w, r, "Invalid lat, lng or radius.")
			return
		}
		results = s.engine.Ledger().Within(center, radius)
	}
	app.RespondJSON(w, map[string]interface{}{
		"results": results,
		"areas":   s.engine.SearchAreas(),
		"count":   len(results),
		"state":   s.engine.State().String(),
		"last":    s.engine.LastReport(),
	})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	prefs := LoadPrefs(s.defaults)
	app.Respond(w, r, app.Response{
		Title:       "Places",
		Description: "Discover places by recursively searching a map area",
		HTML:        renderPlacesPage(prefs, s.engine.Places(), s.engine.SearchAreas(), s.engine.LastReport(), s.engine.State()),
	})
}

// searchForm is the JSON shape of a search request. Form posts use the
// same names.
type searchForm struct {
	Lat            *float64 `json:"lat"`
	Lng            *float64 `json:"lng"`
	Radius         float64  `json:"radius"`
	Type           string   `json:"type"`
	Keyword        string   `json:"keyword"`
	MinRating      *float64 `json:"min_rating"`
	MinRatingCount *int     `json:"min_rating_count"`
}

// parseSearch reads the search inputs, falling back to the saved prefs for
// anything not given.
func (s *Server) parseSearch(r *http.Request) (LatLng, float64, Filters, error) {
	prefs := LoadPrefs(s.defaults)
	var f searchForm

	if app.SendsJSON(r) {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&f); err != nil {
			return LatLng{}, 0, Filters{}, fmt.Errorf("invalid JSON body: %w", err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return LatLng{}, 0, Filters{}, fmt.Errorf("invalid form: %w", err)
		}
		var err error
		if f.Lat, err = formFloat(r, "lat"); err != nil {
			return LatLng{}, 0, Filters{}, err
		}
		if f.Lng, err = formFloat(r, "lng"); err != nil {
			return LatLng{}, 0, Filters{}, err
		}
		radius, err := formFloat(r, "radius")
		if err != nil {
			return LatLng{}, 0, Filters{}, err
		}
		if radius != nil {
			f.Radius = *radius
		}
		if f.MinRating, err = formFloat(r, "min_rating"); err != nil {
			return LatLng{}, 0, Filters{}, err
		}
		if v := r.Form.Get("min_rating_count"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return LatLng{}, 0, Filters{}, fmt.Errorf("invalid min_rating_count %q", v)
			}
			f.MinRatingCount = &n
		}
		f.Type = r.Form.Get("type")
		f.Keyword = r.Form.Get("keyword")
		if _, ok := r.Form["type"]; !ok {
			f.Type = prefs.Type
		}
	}

	center := prefs.Center
	if f.Lat != nil && f.Lng != nil {
		center = LatLng{Lat: *f.Lat, Lng: *f.Lng}
	}
	radius := f.Radius
	if radius == 0 {
		radius = prefs.Radius
	}
	filters := Filters{
		Type:           f.Type,
		Keyword:        f.Keyword,
		MinRating:      prefs.MinRating,
		MinRatingCount: prefs.MinRatingCount,
	}
	if f.MinRating != nil {
		filters.MinRating = *f.MinRating
	}
	if f.MinRatingCount != nil {
		filters.MinRatingCount = *f.MinRatingCount
	}
	return center, radius, CleanFilters(filters), nil
}

func formFloat(r *http.Request, key string) (*float64, error) {
	v := strings.TrimSpace(r.Form.Get(key))
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("invalid %s %q", key, v)
	}
	return &f, nil
}

// handleSearch runs a full recursive search and returns its report. The
// search is detached from the request so a closed browser tab does not
// abandon a half-drained tree.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	center, radius, filters, err := s.parseSearch(r)
	if err != nil {
		app.BadRequest(w, r, err.Error())
		return
	}

	report, err := s.engine.Search(context.WithoutCancel(r.Context()), center, radius, filters)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	prefs := LoadPrefs(s.defaults)
	prefs.Radius = radius
	prefs.Type = filters.Type
	prefs.Keyword = filters.Keyword
	prefs.MinRating = filters.MinRating
	prefs.MinRatingCount = filters.MinRatingCount
	prefs.Center = center
	if err := SavePrefs(prefs); err != nil {
		logf("prefs: save failed: %v", err)
	}
	s.done(w, r, report)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var id string
	if app.SendsJSON(r) {
		var body struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil {
			app.BadRequest(w, r, "Invalid JSON body.")
			return
		}
		id = body.ID
	} else {
		if err := r.ParseForm(); err != nil {
			app.BadRequest(w, r, "Invalid form body.")
			return
		}
		id = r.Form.Get("id")
	}
	if err := s.engine.DeletePlace(strings.TrimSpace(id)); err != nil {
		s.fail(w, r, err)
		return
	}
	s.done(w, r, map[string]interface{}{"deleted": id, "count": s.engine.Ledger().Len()})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, kmz bool) {
	if r.Method != http.MethodGet {
		app.MethodNotAllowed(w, r)
		return
	}

	// render into a buffer first so an empty ledger still gets a proper
	// error response rather than a half-written download
	var buf bytes.Buffer
	write, name, ctype := WriteKML, "places.kml", "application/vnd.google-earth.kml+xml"
	if kmz {
		write, name, ctype = WriteKMZ, "places.kmz", "application/vnd.google-earth.kmz"
	}
	if err := write(&buf, s.engine.Places()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Write(buf.Bytes())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="progress.json"`)
		if err := WriteSnapshot(w, s.engine.Ledger().Snapshot()); err != nil {
			logf("snapshot export: %v", err)
		}
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, maxSnapshotBytes)
		var src io.Reader = r.Body
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			file, _, err := r.FormFile("file")
			if err != nil {
				app.BadRequest(w, r, "Choose a progress file to import.")
				return
			}
			defer file.Close()
			src = file
		}
		snap, err := s.engine.Import(src)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.done(w, r, map[string]interface{}{
			"places": len(snap.Places),
			"areas":  len(snap.SearchAreas),
		})
	default:
		app.MethodNotAllowed(w, r)
	}
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		app.Error(w, r, http.StatusNotImplemented, "Text search is not enabled.")
		return
	}
	q := r.URL.Query()
	var (
		ref    LatLng
		radius float64
		hasRef bool
	)
	if q.Get("lat") != "" && q.Get("lng") != "" {
		lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
		lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
		ref, hasRef = LatLng{Lat: lat, Lng: lng}, true
		if latErr != nil || lngErr != nil || !ref.Valid() {
			app.BadRequest(w, r, "Invalid lat or lng.")
			return
		}
		radius = 5000
		if v := q.Get("radius"); v != "" {
			if rv, err := strconv.ParseFloat(v, 64); err == nil && rv > 0 && !math.IsInf(rv, 0) {
				radius = rv
			}
		}
	}

	hits, err := s.index.Find(q.Get("q"), ref, radius, hasRef)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if hits == nil {
		hits = []Hit{}
	}
	app.RespondJSON(w, map[string]interface{}{
		"results": hits,
		"count":   len(hits),
	})
}
