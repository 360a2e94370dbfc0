// Package jsonbintest runs an in-memory stand-in for the JSONBin v3 API.
package jsonbintest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"prime_pips/internal/jsonbin"
)

const AccessKey = "test-access-key"

// Server keeps bins in memory and answers the three endpoints the client uses.
type Server struct {
	*httptest.Server

	mu     sync.Mutex
	bins   map[string]json.RawMessage
	nextID int
	fail   map[string]int // method -> status code to return
	calls  map[string]int
}

func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		bins:  make(map[string]json.RawMessage),
		fail:  make(map[string]int),
		calls: make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Client returns a jsonbin client pointed at the fake.
func (s *Server) Client() *jsonbin.Client {
	return jsonbin.NewClient(s.URL, AccessKey, jsonbin.WithHTTPClient(s.Server.Client()))
}

// FailNext makes every request with method answer with status until cleared with 0.
func (s *Server) FailNext(method string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method] = status
}

// Calls reports how many requests with method were served.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Bin returns the raw record stored under id.
func (s *Server) Bin(id string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bins[id]
	return b, ok
}

// Put stores a record directly, bypassing the API.
func (s *Server) Put(id string, record any) {
	data, err := json.Marshal(record)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bins[id] = data
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[r.Method]++
	if code := s.fail[r.Method]; code != 0 {
		http.Error(w, http.StatusText(code), code)
		return
	}
	if r.Header.Get("X-Access-Key") != AccessKey {
		http.Error(w, `{"message":"Invalid X-Access-Key"}`, http.StatusUnauthorized)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/b")
	switch {
	case r.Method == http.MethodPost && path == "":
		body, err := io.ReadAll(r.Body)
		if err != nil || !json.Valid(body) {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		s.nextID++
		id := fmt.Sprintf("bin%04d", s.nextID)
		s.bins[id] = body
		writeEnvelope(w, body, map[string]any{"id": id, "private": true})

	case r.Method == http.MethodGet && strings.HasSuffix(path, "/latest"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/latest")
		rec, ok := s.bins[id]
		if !ok {
			http.Error(w, `{"message":"Bin not found"}`, http.StatusNotFound)
			return
		}
		writeEnvelope(w, rec, map[string]any{"id": id, "private": true})

	case r.Method == http.MethodPut && path != "":
		id := strings.TrimPrefix(path, "/")
		if _, ok := s.bins[id]; !ok {
			http.Error(w, `{"message":"Bin not found"}`, http.StatusNotFound)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil || !json.Valid(body) {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		s.bins[id] = body
		writeEnvelope(w, body, map[string]any{"parentId": id, "private": true})

	default:
		http.NotFound(w, r)
	}
}

func writeEnvelope(w http.ResponseWriter, record json.RawMessage, meta map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"record":   record,
		"metadata": meta,
	})
}
