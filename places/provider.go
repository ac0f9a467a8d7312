package places

import (
	"context"
	"errors"
)

// Status is the provider's verdict on a single result page.
type Status string

const (
	StatusOK             Status = "OK"
	StatusZeroResults    Status = "ZERO_RESULTS"
	StatusOverQueryLimit Status = "OVER_QUERY_LIMIT"
	StatusError          Status = "ERROR"
)

// Query is one nearby-search request. An empty PageToken asks for the first
// page; a token taken from a previous Page asks for the page after it.
type Query struct {
	Center    LatLng
	Radius    float64
	Type      string
	Keyword   string
	PageToken string
}

// Page is one page of nearby-search results. NextPageToken is empty when
// there are no more pages. Providers may require a short wait before the
// token becomes valid.
type Page struct {
	Status        Status
	Results       []Result
	NextPageToken string
}

// HasNext reports whether another page can be requested.
func (p *Page) HasNext() bool {
	return p != nil && p.NextPageToken != ""
}

// Provider runs nearby-search queries against a places backend.
type Provider interface {
	Query(ctx context.Context, q Query) (*Page, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, q Query) (*Page, error)

func (f ProviderFunc) Query(ctx context.Context, q Query) (*Page, error) {
	return f(ctx, q)
}

// ErrNoAPIKey is returned when a provider is built without credentials.
var ErrNoAPIKey = errors.New("places: no API key configured")
