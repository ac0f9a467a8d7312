package places

import (
	"os"
	"strings"
	"sync"

	"github.com/mrz1836/go-sanitize"

	"sweep/data"
)

const prefsKey = "prefs.json"

// Prefs are the last-used search inputs and map camera.
type Prefs struct {
	Radius         float64 `json:"radius"`
	Type           string  `json:"type"`
	Keyword        string  `json:"keyword"`
	MinRating      float64 `json:"minRating"`
	MinRatingCount int     `json:"minRatingCount"`
	Center         LatLng  `json:"center"`
	Zoom           int     `json:"zoom"`
}

// DefaultPrefs are used until the user has searched once.
func DefaultPrefs() Prefs {
	return Prefs{
		Radius:         1000,
		Type:           "park",
		MinRating:      4.0,
		MinRatingCount: 20,
		Center:         LatLng{Lat: 41.11386214265593, Lng: 29.054110241449372},
		Zoom:           15,
	}
}

// Filters returns the search filters the prefs describe.
func (p Prefs) Filters() Filters {
	return Filters{
		Type:           p.Type,
		Keyword:        p.Keyword,
		MinRating:      p.MinRating,
		MinRatingCount: p.MinRatingCount,
	}
}

var prefsMu sync.Mutex

// LoadPrefs reads the stored prefs, filling any unset field from def.
func LoadPrefs(def Prefs) Prefs {
	prefsMu.Lock()
	defer prefsMu.Unlock()

	p := def
	if err := data.LoadJSON(prefsKey, &p); err != nil {
		if !os.IsNotExist(err) {
			logf("prefs: load failed, using defaults: %v", err)
		}
		return def
	}
	if p.Radius <= 0 {
		p.Radius = def.Radius
	}
	if p.Zoom <= 0 {
		p.Zoom = def.Zoom
	}
	if p.Center == (LatLng{}) {
		p.Center = def.Center
	}
	return p
}

// SavePrefs persists p.
func SavePrefs(p Prefs) error {
	prefsMu.Lock()
	defer prefsMu.Unlock()
	return data.SaveJSON(prefsKey, p)
}

// ResetPrefs forgets the stored prefs so the next load returns the defaults.
func ResetPrefs() error {
	prefsMu.Lock()
	defer prefsMu.Unlock()
	return data.Delete(prefsKey)
}

// CleanFilters normalises user-entered filter text: the place type becomes
// a lower-case identifier and the keyword a single trimmed line. Negative
// thresholds are raised to zero.
func CleanFilters(f Filters) Filters {
	f.Type = strings.ToLower(sanitize.PathName(strings.TrimSpace(f.Type)))
	f.Keyword = strings.TrimSpace(sanitize.SingleLine(f.Keyword))
	f.MinRating = max(f.MinRating, 0)
	f.MinRatingCount = max(f.MinRatingCount, 0)
	return f
}
