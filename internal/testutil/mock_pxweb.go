// Package testutil provides testing utilities for the pxfetch packages.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines a canned response for a mock endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// TableVariable is one dimension of a registered mock table.
type TableVariable struct {
	Code       string   `json:"code"`
	Text       string   `json:"text"`
	Values     []string `json:"values"`
	ValueTexts []string `json:"valueTexts"`
	Time       bool     `json:"time,omitempty"`
}

// TableDef registers a table with the mock server: the server answers
// metadata GETs from it and synthesizes data rows for query POSTs.
type TableDef struct {
	Title     string          `json:"title"`
	Variables []TableVariable `json:"variables"`
}

// MockPXWeb is a configurable mock PX-Web server. Registered tables get
// metadata and data endpoints; anything else falls through to custom
// handlers or a 404.
type MockPXWeb struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	tables   map[string]TableDef
	failures map[string]int

	// Tracking
	RequestCount int
	DataCount    int
}

// NewMockPXWeb creates a new mock PX-Web server.
func NewMockPXWeb() *MockPXWeb {
	mock := &MockPXWeb{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		tables:   make(map[string]TableDef),
		failures: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		if r.Method == http.MethodPost {
			mock.DataCount++
		}
		remaining := mock.failures[r.URL.Path]
		if remaining > 0 {
			mock.failures[r.URL.Path] = remaining - 1
		}
		mock.mu.Unlock()

		if remaining > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error": "temporarily unavailable"}`))
			return
		}

		mock.mu.RLock()
		handler, hasHandler := mock.handlers[r.URL.Path]
		table, hasTable := mock.tables[r.URL.Path]
		mock.mu.RUnlock()

		if hasHandler {
			handler(w, r)
			return
		}
		if hasTable {
			mock.tableHandler(table, w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockPXWeb) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPXWeb) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockPXWeb) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.DataCount = 0
}

// SetHandler sets a custom handler for a specific path.
func (m *MockPXWeb) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockPXWeb) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// RegisterTable serves table metadata and data at the given path.
func (m *MockPXWeb) RegisterTable(path string, def TableDef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[path] = def
}

// FailNext makes the next n requests to path answer 503 before the
// registered behavior resumes.
func (m *MockPXWeb) FailNext(path string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = n
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockPXWeb) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetDataCount returns the number of data (POST) requests made.
func (m *MockPXWeb) GetDataCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.DataCount
}

// tableHandler answers metadata GETs with the registered definition and
// data POSTs with synthesized rows for the query's selection.
func (m *MockPXWeb) tableHandler(def TableDef, w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if r.Method == http.MethodGet {
		json.NewEncoder(w).Encode(def)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var query struct {
		Query []struct {
			Code      string `json:"code"`
			Selection struct {
				Filter string   `json:"filter"`
				Values []string `json:"values"`
			} `json:"selection"`
		} `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"error": %q}`, err.Error())
		return
	}

	selected := make(map[string][]string)
	for _, entry := range query.Query {
		if entry.Selection.Filter == "item" {
			selected[entry.Code] = entry.Selection.Values
		}
	}

	json.NewEncoder(w).Encode(synthesize(def, selected))
}

// synthesize builds a data response: one row per combination of the
// selected key values, with content values derived from the row index.
func synthesize(def TableDef, selected map[string][]string) map[string]any {
	type column struct {
		Code string `json:"code"`
		Text string `json:"text"`
		Type string `json:"type"`
	}

	var (
		columns  []column
		keyVars  []TableVariable
		contents TableVariable
	)
	for _, v := range def.Variables {
		if v.Code == "ContentsCode" {
			contents = v
			continue
		}
		typ := "d"
		if v.Time {
			typ = "t"
		}
		columns = append(columns, column{Code: v.Code, Text: v.Text, Type: typ})
		values := selected[v.Code]
		if values == nil {
			values = v.Values
		}
		keyVars = append(keyVars, TableVariable{Code: v.Code, Values: values})
	}
	for i, code := range contents.Values {
		text := code
		if i < len(contents.ValueTexts) {
			text = contents.ValueTexts[i]
		}
		columns = append(columns, column{Code: code, Text: text, Type: "c"})
	}

	type row struct {
		Key    []string `json:"key"`
		Values []string `json:"values"`
	}
	var rows []row

	total := 1
	for _, v := range keyVars {
		total *= len(v.Values)
	}
	for i := 0; i < total; i++ {
		key := make([]string, len(keyVars))
		rem := i
		for j := len(keyVars) - 1; j >= 0; j-- {
			n := len(keyVars[j].Values)
			key[j] = keyVars[j].Values[rem%n]
			rem /= n
		}
		values := make([]string, len(contents.Values))
		for j := range values {
			values[j] = strconv.Itoa(i*len(values) + j)
		}
		rows = append(rows, row{Key: key, Values: values})
	}

	return map[string]any{"columns": columns, "data": rows}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
