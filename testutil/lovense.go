package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// LovenseRequest is one request received by FakeLovense
type LovenseRequest struct {
	Method      string
	Path        string
	RawQuery    string
	ContentType string
	Body        string
}

// Command returns the logical command: the body's "command" field for POSTs
// and the "command" query parameter for GETs
func (r LovenseRequest) Command() string {
	if r.Method == http.MethodPost {
		var body struct {
			Command string `json:"command"`
		}
		_ = json.Unmarshal([]byte(r.Body), &body)
		return body.Command
	}
	q, _ := url.ParseQuery(r.RawQuery)
	return q.Get("command")
}

// FakeLovense is an HTTP(S) Lovense control server
type FakeLovense struct {
	Server *httptest.Server

	mu        sync.Mutex
	toysReply string
	status    int
	requests  []LovenseRequest
	hook      func(LovenseRequest)
}

// NewFakeLovense starts a TLS fake with a self-signed certificate, closed at test cleanup.
// toysReply is the raw GetToys reply body.
func NewFakeLovense(t *testing.T, toysReply string) *FakeLovense {
	t.Helper()
	f := &FakeLovense{toysReply: toysReply, status: http.StatusOK}
	f.Server = httptest.NewTLSServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake
func (f *FakeLovense) URL() string { return f.Server.URL }

// SetToysReply replaces the GetToys reply body
func (f *FakeLovense) SetToysReply(body string) {
	f.mu.Lock()
	f.toysReply = body
	f.mu.Unlock()
}

// SetStatus makes every reply use the HTTP status code
func (f *FakeLovense) SetStatus(code int) {
	f.mu.Lock()
	f.status = code
	f.mu.Unlock()
}

// OnRequest registers a hook run inside the handler before replying
func (f *FakeLovense) OnRequest(hook func(LovenseRequest)) {
	f.mu.Lock()
	f.hook = hook
	f.mu.Unlock()
}

// Requests returns a copy of every request received
func (f *FakeLovense) Requests() []LovenseRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]LovenseRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// CommandRequests returns the requests that were not GetToys
func (f *FakeLovense) CommandRequests() []LovenseRequest {
	var out []LovenseRequest
	for _, r := range f.Requests() {
		if r.Command() != "GetToys" {
			out = append(out, r)
		}
	}
	return out
}

// Reset forgets recorded requests
func (f *FakeLovense) Reset() {
	f.mu.Lock()
	f.requests = nil
	f.mu.Unlock()
}

func (f *FakeLovense) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	req := LovenseRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		RawQuery:    r.URL.RawQuery,
		ContentType: r.Header.Get("Content-Type"),
		Body:        string(body),
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	status, toys, hook := f.status, f.toysReply, f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(req)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if req.Command() == "GetToys" {
		_, _ = io.WriteString(w, toys)
		return
	}
	_, _ = io.WriteString(w, `{"code":200,"type":"ok"}`)
}
