package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSysLogFiltersByPackage(t *testing.T) {
	Log("alpha", "first %d", 1)
	Log("beta", "second")
	Log("alpha", "third")

	got := GetSysLog("alpha")
	if len(got) < 2 {
		t.Fatalf("expected at least 2 alpha lines, got %d", len(got))
	}
	if got[0].Message != "third" || got[1].Message != "first 1" {
		t.Errorf("expected newest first, got %q then %q", got[0].Message, got[1].Message)
	}
	for _, e := range got {
		if e.Package != "alpha" {
			t.Errorf("unexpected package %q", e.Package)
		}
	}
}

func TestRecordAPICall(t *testing.T) {
	before := APICallCounts()["test-svc"]
	RecordAPICall("test-svc", "GET", "nearby 1,2", "OK", 10*time.Millisecond, nil)
	RecordAPICall("test-svc", "GET", "nearby 1,2", "ERROR", time.Millisecond, errors.New("boom"))

	if got := APICallCounts()["test-svc"]; got != before+2 {
		t.Errorf("expected %d calls, got %d", before+2, got)
	}
	log := GetAPILog()
	if len(log) == 0 || log[0].Status != "ERROR" || log[0].Error != "boom" {
		t.Errorf("expected newest entry first with its error, got %+v", log[0])
	}
}

func TestRouteDispatch(t *testing.T) {
	h := Route(RouteOpts{
		JSON:    func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("json")) },
		HTML:    func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("html")) },
		Methods: []string{http.MethodGet},
	})

	tests := []struct {
		method, target, accept string
		code                   int
		body                   string
	}{
		{http.MethodGet, "/x", "", 200, "html"},
		{http.MethodGet, "/x?format=json", "", 200, "json"},
		{http.MethodGet, "/x", "application/json", 200, "json"},
		{http.MethodPost, "/x", "", 405, ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.target, nil)
		if tt.accept != "" {
			req.Header.Set("Accept", tt.accept)
		}
		w := httptest.NewRecorder()
		h(w, req)
		if w.Code != tt.code {
			t.Errorf("%s %s: code %d, want %d", tt.method, tt.target, w.Code, tt.code)
		}
		if tt.body != "" && w.Body.String() != tt.body {
			t.Errorf("%s %s: body %q, want %q", tt.method, tt.target, w.Body.String(), tt.body)
		}
	}
}

func TestErrorRespondsByClient(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	Error(w, req, http.StatusConflict, "busy")

	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if w.Code != http.StatusConflict || body["error"] != "busy" {
		t.Errorf("unexpected JSON error %d %v", w.Code, body)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	w = httptest.NewRecorder()
	Error(w, req, http.StatusConflict, "<busy>")
	if !strings.Contains(w.Body.String(), "&lt;busy&gt;") {
		t.Errorf("HTML error should escape the message: %s", w.Body.String())
	}
}

func TestStatusHandler(t *testing.T) {
	ChecksFunc = func() []StatusCheck {
		return []StatusCheck{{Name: "Engine", Status: true, Details: "idle"}, {Name: "Last search", Status: false}}
	}
	defer func() { ChecksFunc = nil }()

	req := httptest.NewRequest(http.MethodGet, "/status?format=json", nil)
	w := httptest.NewRecorder()
	StatusHandler(w, req)

	var status StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Healthy {
		t.Error("a failing check should mark the server unhealthy")
	}
	if len(status.Checks) != 2 || status.GoVersion == "" {
		t.Errorf("unexpected status %+v", status)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	w = httptest.NewRecorder()
	StatusHandler(w, req)
	if !strings.Contains(w.Body.String(), "Issues Detected") {
		t.Error("HTML status missing health line")
	}
}

func TestRender(t *testing.T) {
	out := RenderString("# Title\n\nSome *text*")
	if !strings.Contains(out, "<h1") || !strings.Contains(out, "<em>text</em>") {
		t.Errorf("unexpected render %q", out)
	}
}
