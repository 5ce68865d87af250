package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
)

// MockTransport is an in-process http.RoundTripper for tests and for
// running the client without a backend. Routes match on method AND
// path; an unmatched request gets a 404.
type MockTransport struct {
	mu     sync.Mutex
	routes []mockRoute
	calls  map[string]int
}

type mockRoute struct {
	method string
	path   string // exact, or prefix when it ends in "/"
	fn     func(r *http.Request) (int, interface{})
}

func NewMockTransport() *MockTransport {
	return &MockTransport{calls: make(map[string]int)}
}

// Handle registers a static response for method+path.
func (m *MockTransport) Handle(method, path string, status int, body interface{}) {
	m.HandleFunc(method, path, func(*http.Request) (int, interface{}) {
		return status, body
	})
}

// HandleFunc registers a dynamic responder for method+path.
func (m *MockTransport) HandleFunc(method, path string, fn func(r *http.Request) (int, interface{})) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, mockRoute{method: method, path: path, fn: fn})
}

// Calls reports how many requests matched method+path.
func (m *MockTransport) Calls(method, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method+" "+path]
}

func (m *MockTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	m.mu.Lock()
	var matched *mockRoute
	for i := range m.routes {
		rt := &m.routes[i]
		// The method comparison is deliberate: a mock that matches on
		// path alone hides wrong-verb bugs.
		if rt.method != r.Method {
			continue
		}
		if rt.path == r.URL.Path || (strings.HasSuffix(rt.path, "/") && strings.HasPrefix(r.URL.Path, rt.path)) {
			matched = rt
			break
		}
	}
	if matched != nil {
		m.calls[matched.method+" "+matched.path]++
	}
	m.mu.Unlock()

	if matched == nil {
		return jsonResponse(r, http.StatusNotFound, map[string]string{"message": "not found"})
	}
	status, body := matched.fn(r)
	return jsonResponse(r, status, body)
}

func jsonResponse(r *http.Request, status int, body interface{}) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(raw)),
		Request:    r,
	}, nil
}
