package app

import (
	"net/http"
)

// RouteOpts defines handlers for different content types
type RouteOpts struct {
	// JSON handler - called when Accept: application/json or ?format=json
	JSON http.HandlerFunc
	// HTML handler - called for browser requests (default)
	HTML http.HandlerFunc
	// Methods restricts the accepted HTTP methods; empty allows all
	Methods []string
}

// Route creates a handler that dispatches based on content type
func Route(opts RouteOpts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(opts.Methods) > 0 && !allowed(r.Method, opts.Methods) {
			MethodNotAllowed(w, r)
			return
		}

		// Dispatch based on content type
		if WantsJSON(r) || SendsJSON(r) {
			if opts.JSON != nil {
				opts.JSON(w, r)
				return
			}
			// No JSON handler, return error
			http.Error(w, `{"error": "JSON not supported"}`, http.StatusNotAcceptable)
			return
		}

		// Default to HTML
		if opts.HTML != nil {
			opts.HTML(w, r)
			return
		}

		// No HTML handler, try JSON
		if opts.JSON != nil {
			opts.JSON(w, r)
			return
		}

		http.Error(w, "No handler available", http.StatusNotImplemented)
	}
}

func allowed(method string, methods []string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}
