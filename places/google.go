package places

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"googlemaps.github.io/maps"

	"sweep/app"
)

// maxNearbyRadius is the largest radius Nearby Search accepts.
const maxNearbyRadius = 50000

// googleAPIKey returns the Google Places API key from the environment.
func googleAPIKey() string {
	return os.Getenv("GOOGLE_API_KEY")
}

// GoogleProvider queries the Places Nearby Search API, which returns up to
// 20 results per page and at most three pages per query, ranked by
// prominence.
type GoogleProvider struct {
	client *maps.Client
}

// NewGoogleProvider builds a provider with the given key, falling back to
// GOOGLE_API_KEY. Extra client options (base URL, HTTP client) are passed
// through to the maps client.
func NewGoogleProvider(key string, opts ...maps.ClientOption) (*GoogleProvider, error) {
	if key == "" {
		key = googleAPIKey()
	}
	if key == "" {
		return nil, ErrNoAPIKey
	}
	c, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(key)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("google maps client: %w", err)
	}
	return &GoogleProvider{client: c}, nil
}

// Query runs one Nearby Search request. Non-OK API statuses come back as a
// Page with that status rather than as an error; transport failures are
// errors.
func (g *GoogleProvider) Query(ctx context.Context, q Query) (*Page, error) {
	radius := uint(q.Radius)
	if radius > maxNearbyRadius {
		radius = maxNearbyRadius
	}
	req := &maps.NearbySearchRequest{
		Location:  &maps.LatLng{Lat: q.Center.Lat, Lng: q.Center.Lng},
		Radius:    radius,
		Keyword:   q.Keyword,
		Type:      maps.PlaceType(q.Type),
		RankBy:    maps.RankByProminence,
		PageToken: q.PageToken,
	}

	start := time.Now()
	resp, err := g.client.NearbySearch(ctx, req)
	status := googleStatus(err, len(resp.Results))
	app.RecordAPICall("google", "GET", "nearbysearch "+q.Center.String(), string(status), time.Since(start), err)

	if err != nil {
		if status == StatusError {
			return nil, fmt.Errorf("google places request failed: %w", err)
		}
		return &Page{Status: status}, nil
	}

	return &Page{
		Status:        status,
		Results:       parseGoogleResults(resp.Results),
		NextPageToken: resp.NextPageToken,
	}, nil
}

// googleStatus recovers the API status from the client's error. The client
// reports non-OK statuses as "maps: STATUS - message".
func googleStatus(err error, n int) Status {
	if err == nil {
		if n == 0 {
			return StatusZeroResults
		}
		return StatusOK
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, string(StatusOverQueryLimit)):
		return StatusOverQueryLimit
	case strings.Contains(msg, string(StatusZeroResults)):
		return StatusZeroResults
	case strings.HasPrefix(msg, "maps: "):
		if s, _, ok := strings.Cut(strings.TrimPrefix(msg, "maps: "), " "); ok && isStatusCode(s) {
			return Status(s)
		}
	}
	return StatusError
}

func isStatusCode(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < 'A' || c > 'Z') && c != '_' {
			return false
		}
	}
	return true
}

// parseGoogleResults converts Nearby Search results into Results.
func parseGoogleResults(results []maps.PlacesSearchResult) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		res := Result{
			PlaceID:  r.PlaceID,
			Name:     r.Name,
			Types:    r.Types,
			Position: LatLng{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
			Icon:     r.Icon,
			Vicinity: r.Vicinity,
		}
		// A place without reviews reports zero for both fields.
		if r.UserRatingsTotal > 0 {
			rating := float64(r.Rating)
			count := r.UserRatingsTotal
			res.Rating = &rating
			res.RatingCount = &count
		}
		if len(r.Photos) > 0 {
			res.PhotoRef = r.Photos[0].PhotoReference
		}
		out = append(out, res)
	}
	return out
}
