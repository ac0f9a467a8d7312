package places

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	placesapi "google.golang.org/api/places/v1"

	"sweep/app"
)

// placesV1FieldMask lists the response fields requested from searchNearby.
// The API rejects requests without a field mask.
const placesV1FieldMask = "places.id,places.displayName,places.types,places.rating," +
	"places.userRatingCount,places.location,places.iconMaskBaseUri," +
	"places.shortFormattedAddress,places.photos"

// placesV1MaxResults is the most results searchNearby returns. There is no
// pagination, so an engine over this provider should use it as the
// saturation limit.
const placesV1MaxResults = 20

// PlacesV1Provider queries the Places API (New) searchNearby method. It
// ignores Query.Keyword, which that method does not support.
type PlacesV1Provider struct {
	svc *placesapi.Service
}

// NewPlacesV1Provider builds a provider with the given key, falling back to
// GOOGLE_API_KEY.
func NewPlacesV1Provider(ctx context.Context, key string, opts ...option.ClientOption) (*PlacesV1Provider, error) {
	if key == "" {
		key = googleAPIKey()
	}
	if key == "" {
		return nil, ErrNoAPIKey
	}
	svc, err := placesapi.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(key)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("places v1 client: %w", err)
	}
	return &PlacesV1Provider{svc: svc}, nil
}

func (p *PlacesV1Provider) Query(ctx context.Context, q Query) (*Page, error) {
	req := &placesapi.GoogleMapsPlacesV1SearchNearbyRequest{
		LocationRestriction: &placesapi.GoogleMapsPlacesV1SearchNearbyRequestLocationRestriction{
			Circle: &placesapi.GoogleMapsPlacesV1Circle{
				Center: &placesapi.GoogleTypeLatLng{Latitude: q.Center.Lat, Longitude: q.Center.Lng},
				Radius: min(q.Radius, maxNearbyRadius),
			},
		},
		MaxResultCount: placesV1MaxResults,
		RankPreference: "POPULARITY",
	}
	if q.Type != "" {
		req.IncludedTypes = []string{q.Type}
	}

	start := time.Now()
	resp, err := p.svc.Places.SearchNearby(req).Fields(googleapi.Field(placesV1FieldMask)).Context(ctx).Do()
	if err != nil {
		status := placesV1Status(err)
		app.RecordAPICall("places-v1", "POST", "searchNearby "+q.Center.String(), string(status), time.Since(start), err)
		if status == StatusError {
			return nil, fmt.Errorf("places v1 request failed: %w", err)
		}
		return &Page{Status: status}, nil
	}

	results := parsePlacesV1(resp.Places)
	status := StatusOK
	if len(results) == 0 {
		status = StatusZeroResults
	}
	app.RecordAPICall("places-v1", "POST", "searchNearby "+q.Center.String(), string(status), time.Since(start), nil)
	return &Page{Status: status, Results: results}, nil
}

// placesV1Status maps HTTP-level API errors onto the legacy status codes.
func placesV1Status(err error) Status {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 429:
			return StatusOverQueryLimit
		case 400, 403:
			return Status("REQUEST_DENIED")
		}
	}
	return StatusError
}

func parsePlacesV1(in []*placesapi.GoogleMapsPlacesV1Place) []Result {
	out := make([]Result, 0, len(in))
	for _, pl := range in {
		if pl == nil {
			continue
		}
		res := Result{
			PlaceID:  pl.Id,
			Types:    pl.Types,
			Icon:     pl.IconMaskBaseUri,
			Vicinity: pl.ShortFormattedAddress,
		}
		if pl.DisplayName != nil {
			res.Name = pl.DisplayName.Text
		}
		if pl.Location != nil {
			res.Position = LatLng{Lat: pl.Location.Latitude, Lng: pl.Location.Longitude}
		}
		if pl.UserRatingCount > 0 {
			rating := pl.Rating
			count := int(pl.UserRatingCount)
			res.Rating = &rating
			res.RatingCount = &count
		}
		if len(pl.Photos) > 0 && pl.Photos[0] != nil {
			res.PhotoRef = pl.Photos[0].Name
		}
		out = append(out, res)
	}
	return out
}
