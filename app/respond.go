package app

import (
	"encoding/json"
	"html"
	"net/http"
	"strings"
)

// Response is a rendered HTML page.
type Response struct {
	Title       string
	Description string
	HTML        string
}

// WantsJSON reports whether the client asked for a JSON response.
func WantsJSON(r *http.Request) bool {
	if r.URL.Query().Get("format") == "json" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// SendsJSON reports whether the request body is JSON.
func SendsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// Respond writes an HTML page, or the page's body as JSON for API clients.
func Respond(w http.ResponseWriter, r *http.Request, resp Response) {
	if WantsJSON(r) {
		RespondJSON(w, map[string]interface{}{
			"title":       resp.Title,
			"description": resp.Description,
			"html":        resp.HTML,
		})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(RenderHTML(resp.Title, resp.Description, resp.HTML)))
}

// RespondJSON writes v as a JSON body with status 200.
func RespondJSON(w http.ResponseWriter, v interface{}) {
	RespondJSONStatus(w, http.StatusOK, v)
}

// RespondJSONStatus writes v as a JSON body with the given status.
func RespondJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Log("app", "RespondJSON: encode: %v", err)
	}
}

// RespondError writes {"error": msg} with the given status.
func RespondError(w http.ResponseWriter, status int, msg string) {
	RespondJSONStatus(w, status, map[string]string{"error": msg})
}

// Error writes msg as JSON or as a plain HTML page depending on the client.
func Error(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if WantsJSON(r) || SendsJSON(r) {
		RespondError(w, status, msg)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(RenderHTML(http.StatusText(status), html.EscapeString(msg), Empty(msg))))
}

func BadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	Error(w, r, http.StatusBadRequest, msg)
}

func NotFound(w http.ResponseWriter, r *http.Request, msg string) {
	Error(w, r, http.StatusNotFound, msg)
}

func ServerError(w http.ResponseWriter, r *http.Request, msg string) {
	Error(w, r, http.StatusInternalServerError, msg)
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Error(w, r, http.StatusMethodNotAllowed, "Method not allowed")
}
