// Package testutil provides testing utilities for the photo feed.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock photo API for testing. The default handler
// serves a collection of Total photos on every list resource.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	total     int
	version   int
	omitTotal bool
	remaining int
	failures  map[int]failure
	holds     map[int]chan struct{}
	delay     time.Duration

	// Tracking
	requestCount      int
	conditionalCount  int
	pageRequests      map[int]int
	lastRequestHeader http.Header
	lastQuery         map[string]string
}

// NewMockAPI creates a mock API serving total photos.
func NewMockAPI(total int) *MockAPI {
	mock := &MockAPI{
		handlers:     make(map[string]func(w http.ResponseWriter, r *http.Request)),
		total:        total,
		remaining:    50,
		failures:     make(map[int]failure),
		holds:        make(map[int]chan struct{}),
		pageRequests: make(map[int]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.lastRequestHeader = r.Header.Clone()
		mock.lastQuery = make(map[string]string)
		for key := range r.URL.Query() {
			mock.lastQuery[key] = r.URL.Query().Get(key)
		}
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.conditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		switch {
		case r.URL.Path == "/stats/total":
			mock.statsHandler(w)
		case strings.HasPrefix(r.URL.Path, "/search/"):
			mock.listHandler(w, r, true)
		default:
			mock.listHandler(w, r, false)
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server, releasing any held pages first.
func (m *MockAPI) Close() {
	m.mu.Lock()
	for page, hold := range m.holds {
		close(hold)
		delete(m.holds, page)
	}
	m.mu.Unlock()
	m.server.Close()
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
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

// SetTotal changes the size of the served collection.
func (m *MockAPI) SetTotal(total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = total
}

// OmitTotal stops the X-Total header from being sent.
func (m *MockAPI) OmitTotal(omit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omitTotal = omit
}

// Bump changes the content of every page, as if new photos were uploaded.
func (m *MockAPI) Bump() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version++
}

// SetDelay delays every list response.
func (m *MockAPI) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

type failure struct {
	status int
	times  int
}

// FailPage makes the next request for the 1-based request page fail with status.
func (m *MockAPI) FailPage(page, status int) {
	m.FailPageN(page, status, 1)
}

// FailPageN makes the next n requests for the 1-based request page fail.
func (m *MockAPI) FailPageN(page, status, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[page] = failure{status: status, times: n}
}

// HoldPage blocks responses for the 1-based request page until release is
// called or the request is cancelled.
func (m *MockAPI) HoldPage(page int) (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hold := make(chan struct{})
	m.holds[page] = hold
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.holds[page] == hold {
				delete(m.holds, page)
				close(hold)
			}
		})
	}
}

// RequestCount returns the number of requests made to the server.
func (m *MockAPI) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// ConditionalCount returns the number of conditional requests.
func (m *MockAPI) ConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// PageRequests returns how often the 1-based request page was requested.
func (m *MockAPI) PageRequests(page int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pageRequests[page]
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockAPI) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader.Clone()
}

// LastQuery returns the query parameter key of the most recent request.
func (m *MockAPI) LastQuery(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery[key]
}

// PhotoID returns the id served for global index i.
func (m *MockAPI) PhotoID(i int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return photoID(m.version, i)
}

// PhotoURL returns the URL of size served for global index i.
func (m *MockAPI) PhotoURL(i int, size string) string {
	return photoURL(m.PhotoID(i), size)
}

func photoID(version, i int) string {
	return fmt.Sprintf("photo-%d-%04d", version, i)
}

func photoURL(id, size string) string {
	return "https://images.test/" + size + "/" + id + ".jpg"
}

func (m *MockAPI) statsHandler(w http.ResponseWriter) {
	m.mu.RLock()
	total := m.total
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"photos":%d,"downloads":0,"views":0}`, total)
}

func (m *MockAPI) listHandler(w http.ResponseWriter, r *http.Request, search bool) {
	query := r.URL.Query()
	page := atoiDefault(query.Get("page"), 1)
	perPage := atoiDefault(query.Get("per_page"), 10)

	m.mu.Lock()
	m.pageRequests[page]++
	m.remaining--
	if m.remaining < 0 {
		m.remaining = 0
	}
	remaining := m.remaining
	failed, fail := m.failures[page]
	if fail {
		failed.times--
		if failed.times <= 0 {
			delete(m.failures, page)
		} else {
			m.failures[page] = failed
		}
	}
	hold := m.holds[page]
	delay := m.delay
	total := m.total
	version := m.version
	omitTotal := m.omitTotal
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("X-Ratelimit-Limit", "50")
	w.Header().Set("X-Ratelimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("Content-Type", "application/json")

	if fail {
		w.WriteHeader(failed.status)
		fmt.Fprintf(w, `{"errors":["%s"]}`, http.StatusText(failed.status))
		return
	}

	etag := fmt.Sprintf(`"v%d-p%d-n%d"`, version, page, perPage)
	if r.Header.Get("If-None-Match") == etag {
		w.Header().Set("Cache-Control", "max-age=300")
		w.WriteHeader(http.StatusNotModified)
		return
	}

	start := (page - 1) * perPage
	end := start + perPage
	if end > total {
		end = total
	}
	photos := make([]map[string]any, 0, perPage)
	for i := start; i < end; i++ {
		photos = append(photos, photoRecord(photoID(version, i)))
	}

	var body []byte
	if search {
		totalPages := 0
		if perPage > 0 {
			totalPages = (total + perPage - 1) / perPage
		}
		body, _ = json.Marshal(map[string]any{
			"total":       total,
			"total_pages": totalPages,
			"results":     photos,
		})
	} else {
		body, _ = json.Marshal(photos)
		if !omitTotal {
			w.Header().Set("X-Total", strconv.Itoa(total))
		}
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func photoRecord(id string) map[string]any {
	urls := make(map[string]string)
	for _, size := range []string{"raw", "full", "regular", "small", "thumb"} {
		urls[size] = photoURL(id, size)
	}
	return map[string]any{
		"id":         id,
		"created_at": "2016-05-03T11:00:28-04:00",
		"width":      4000,
		"height":     3000,
		"color":      "#60544D",
		"likes":      12,
		"urls":       urls,
		"user": map[string]string{
			"id":       "user-1",
			"username": "photographer",
			"name":     "Test Photographer",
		},
	}
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// NewServerErrorResponse creates a 500 response with an errors payload.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors":["Internal server error"]}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewRateLimitResponse creates the 403 sent once the hourly quota is spent.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       "Rate Limit Exceeded",
		Headers: map[string]string{
			"X-Ratelimit-Limit":     "50",
			"X-Ratelimit-Remaining": "0",
		},
	}
}

// NewMalformedResponse creates a 200 whose body is not a photo list.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"unexpected":`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}
