// Package testutil provides testing utilities for the VIES client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/vies-vat-checker/pkg/vat"
)

// Paths served by MockVIES.
const (
	CheckVATPath = "/check-vat-number"
	StatusPath   = "/check-status"
)

// MockVIESResponse defines the behavior for a mock VIES response.
type MockVIESResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockVIES is a configurable mock VIES REST server for testing.
//
// Check responses are scripted per VAT number as a queue: each call consumes
// the head and the last response repeats. Unscripted numbers are VALID.
type MockVIES struct {
	server   *httptest.Server
	mu       sync.RWMutex
	checks   map[string][]MockVIESResponse
	status   MockVIESResponse
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	CheckCount   int
	StatusCount  int
	calls        []string
}

// NewMockVIES creates a new mock VIES server that reports itself available.
func NewMockVIES() *MockVIES {
	mock := &MockVIES{
		checks:   make(map[string][]MockVIESResponse),
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		status:   NewStatusResponse(true, nil),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		switch r.URL.Path {
		case CheckVATPath:
			mock.handleCheck(w, r)
		case StatusPath:
			mock.handleStatus(w)
		default:
			http.NotFound(w, r)
		}
	}))

	return mock
}

// URL returns the mock server base URL.
func (m *MockVIES) URL() string {
	return m.server.URL
}

// CheckVATURL returns the check-vat-number endpoint of the mock.
func (m *MockVIES) CheckVATURL() string {
	return m.server.URL + CheckVATPath
}

// StatusURL returns the check-status endpoint of the mock.
func (m *MockVIES) StatusURL() string {
	return m.server.URL + StatusPath
}

// Close shuts down the mock server.
func (m *MockVIES) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockVIES) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.CheckCount = 0
	m.StatusCount = 0
	m.calls = nil
}

// SetHandler overrides the handler for a path.
func (m *MockVIES) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetCheckResponses scripts the answers for one VAT number.
func (m *MockVIES) SetCheckResponses(country, number string, resps ...MockVIESResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[checkKey(country, number)] = resps
}

// SetStatusResponse sets the check-status answer.
func (m *MockVIES) SetStatusResponse(resp MockVIESResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = resp
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockVIES) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetCheckCount returns the number of check-vat-number requests.
func (m *MockVIES) GetCheckCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CheckCount
}

// Calls returns the "CC:NUMBER" keys of all check requests in arrival order.
func (m *MockVIES) Calls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.calls...)
}

func (m *MockVIES) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		CountryCode string `json:"countryCode"`
		VATNumber   string `json:"vatNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		write(w, MockVIESResponse{
			StatusCode: http.StatusBadRequest,
			Body:       `{"actionSucceed":false,"errorWrappers":[{"error":"INVALID_INPUT"}]}`,
		})
		return
	}

	key := checkKey(req.CountryCode, req.VATNumber)

	m.mu.Lock()
	m.CheckCount++
	m.calls = append(m.calls, key)
	resp, scripted := m.next(key)
	m.mu.Unlock()

	if !scripted {
		resp = NewValidResponse(req.CountryCode, req.VATNumber, "TEST COMPANY")
	}
	write(w, resp)
}

// next pops the head of the queue for key; the last response repeats.
func (m *MockVIES) next(key string) (MockVIESResponse, bool) {
	queue := m.checks[key]
	if len(queue) == 0 {
		return MockVIESResponse{}, false
	}
	resp := queue[0]
	if len(queue) > 1 {
		m.checks[key] = queue[1:]
	}
	return resp, true
}

func (m *MockVIES) handleStatus(w http.ResponseWriter) {
	m.mu.Lock()
	m.StatusCount++
	resp := m.status
	m.mu.Unlock()
	write(w, resp)
}

func write(w http.ResponseWriter, resp MockVIESResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func checkKey(country, number string) string {
	return strings.ToUpper(country) + ":" + strings.ToUpper(number)
}

// NewValidResponse creates a VALID check-vat answer.
func NewValidResponse(country, number, name string) MockVIESResponse {
	return checkAnswer(country, number, name, true)
}

// NewInvalidResponse creates an INVALID check-vat answer.
func NewInvalidResponse(country, number string) MockVIESResponse {
	return checkAnswer(country, number, "---", false)
}

func checkAnswer(country, number, name string, valid bool) MockVIESResponse {
	userError := "INVALID"
	if valid {
		userError = "VALID"
	}
	body, _ := json.Marshal(map[string]any{
		"countryCode": country,
		"vatNumber":   number,
		"requestDate": "2024-05-02T10:00:00.000Z",
		"valid":       valid,
		"name":        name,
		"address":     "---",
		"userError":   userError,
	})
	return MockVIESResponse{StatusCode: http.StatusOK, Body: string(body)}
}

// NewErrorCodeResponse creates the errorWrappers answer VIES sends when a
// member state cannot process the request.
func NewErrorCodeResponse(code string) MockVIESResponse {
	return MockVIESResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       fmt.Sprintf(`{"actionSucceed":false,"errorWrappers":[{"error":%q}]}`, code),
	}
}

// NewQuotaResponse creates an MS_MAX_CONCURRENT_REQ rejection.
func NewQuotaResponse() MockVIESResponse {
	return NewErrorCodeResponse(vat.CodeQuotaExceeded)
}

// NewServerErrorResponse creates a 500 response without a VIES error body.
func NewServerErrorResponse() MockVIESResponse {
	return MockVIESResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `<html>Internal Server Error</html>`,
	}
}

// NewStatusResponse creates a check-status answer. Countries maps a member
// state code to its availability flag.
func NewStatusResponse(available bool, countries map[string]bool) MockVIESResponse {
	codes := make([]string, 0, len(countries))
	for cc := range countries {
		codes = append(codes, cc)
	}
	sort.Strings(codes)

	type country struct {
		CountryCode  string `json:"countryCode"`
		Availability string `json:"availability"`
	}
	list := make([]country, 0, len(codes))
	for _, cc := range codes {
		availability := "Unavailable"
		if countries[cc] {
			availability = "Available"
		}
		list = append(list, country{CountryCode: cc, Availability: availability})
	}

	body, _ := json.Marshal(map[string]any{
		"vow":       map[string]bool{"available": available},
		"countries": list,
	})
	return MockVIESResponse{StatusCode: http.StatusOK, Body: string(body)}
}
