package places

import (
	"fmt"
	"math"
	"strings"
)

// LatLng is a geographic position in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p LatLng) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// Valid reports whether p is a finite position on the globe.
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Place is a discovered point of interest. Places are never mutated once
// stored in a Ledger; the ID is the provider's stable place id.
type Place struct {
	ID          string   `json:"place_id"`
	Name        string   `json:"name"`
	Types       []string `json:"types,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	RatingCount *int     `json:"user_ratings_total,omitempty"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Icon        string   `json:"icon,omitempty"`
	PhotoRef    string   `json:"photo_reference,omitempty"`
	Vicinity    string   `json:"vicinity,omitempty"`
}

// Position returns the place's coordinates.
func (p Place) Position() LatLng {
	return LatLng{Lat: p.Lat, Lng: p.Lng}
}

// Category returns the most specific type tag, skipping the generic ones
// every result carries.
func (p Place) Category() string {
	for _, t := range p.Types {
		if t != "point_of_interest" && t != "establishment" {
			return strings.ReplaceAll(t, "_", " ")
		}
	}
	return ""
}

// SearchArea is a disk that was submitted to the provider.
type SearchArea struct {
	Center LatLng  `json:"center"`
	Radius float64 `json:"radius"`
}

// Filters narrow a search. Type and Keyword go to the provider; the rating
// thresholds are applied locally to every result page.
type Filters struct {
	Type           string  `json:"type,omitempty"`
	Keyword        string  `json:"keyword,omitempty"`
	MinRating      float64 `json:"min_rating"`
	MinRatingCount int     `json:"min_rating_count"`
}

// Accepts reports whether a result passes the rating thresholds. The rating
// comparison is inclusive and the count comparison strict; a result with no
// rating or no count never passes.
func (f Filters) Accepts(r Result) bool {
	if r.Rating == nil || r.RatingCount == nil {
		return false
	}
	return *r.Rating >= f.MinRating && *r.RatingCount > f.MinRatingCount
}

// Result is one raw record returned by a Provider.
type Result struct {
	PlaceID     string
	Name        string
	Types       []string
	Rating      *float64
	RatingCount *int
	Position    LatLng
	Icon        string
	PhotoRef    string
	Vicinity    string
}

// Place converts the result into the stored representation.
func (r Result) Place() Place {
	return Place{
		ID:          r.PlaceID,
		Name:        r.Name,
		Types:       append([]string(nil), r.Types...),
		Rating:      r.Rating,
		RatingCount: r.RatingCount,
		Lat:         r.Position.Lat,
		Lng:         r.Position.Lng,
		Icon:        r.Icon,
		PhotoRef:    r.PhotoRef,
		Vicinity:    r.Vicinity,
	}
}

// Snapshot is the restorable contents of a Ledger. The JSON field names
// match the progress files written by earlier versions of the tool.
type Snapshot struct {
	Places      []Place      `json:"placesData"`
	SearchAreas []SearchArea `json:"searchedAreas"`
}
