package bolide

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pcoutinho/bolide/internal/feed"
	"github.com/pcoutinho/bolide/internal/neo"
)

// MockFeedServer is a mock feed service HTTP server for testing
type MockFeedServer struct {
	*httptest.Server
	mu           sync.RWMutex
	objects      map[string]neo.Object
	healthStatus string
	failFeed     int
	feedRequests int
	lastAuth     string
}

// NewMockFeedServer creates a mock feed service
func NewMockFeedServer(t *testing.T) *MockFeedServer {
	t.Helper()

	mock := &MockFeedServer{
		objects:      make(map[string]neo.Object),
		healthStatus: "OK",
	}

	mux := http.NewServeMux()

	// GET /api/v1/neos - list current objects
	mux.HandleFunc("/api/v1/neos", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		mock.mu.Lock()
		mock.feedRequests++
		mock.lastAuth = r.Header.Get("Authorization")
		shouldFail := mock.failFeed > 0
		if shouldFail {
			mock.failFeed--
		}
		mock.mu.Unlock()

		if shouldFail {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}

		hazardousOnly := r.URL.Query().Get("hazardous") == "true"

		mock.mu.RLock()
		defer mock.mu.RUnlock()

		objects := make([]feed.FeedObject, 0, len(mock.objects))
		for _, obj := range mock.objects {
			if hazardousOnly && !obj.Hazardous {
				continue
			}
			objects = append(objects, domainToFeedObject(obj))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(feed.FeedResponse{
			Count:   len(objects),
			Objects: objects,
		})
	})

	// GET /api/v1/neos/:id - single object lookup
	mux.HandleFunc("/api/v1/neos/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		id := strings.TrimPrefix(r.URL.Path, "/api/v1/neos/")

		mock.mu.RLock()
		defer mock.mu.RUnlock()

		obj, ok := mock.objects[id]
		if !ok {
			http.Error(w, "object not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(domainToFeedObject(obj))
	})

	// GET /api/v1/health - health check
	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		mock.mu.RLock()
		status := mock.healthStatus
		mock.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	mock.Server = httptest.NewServer(mux)
	return mock
}

// AddObject adds an object to the mock feed
func (m *MockFeedServer) AddObject(obj neo.Object) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[obj.ID] = obj
}

// RemoveObject removes an object from the mock feed
func (m *MockFeedServer) RemoveObject(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, id)
}

// FailFeed makes the next n listing requests return 503
func (m *MockFeedServer) FailFeed(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFeed = n
}

// SetHealthStatus overrides the health payload status
func (m *MockFeedServer) SetHealthStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthStatus = status
}

// FeedRequests reports how many listing requests arrived
func (m *MockFeedServer) FeedRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.feedRequests
}

// LastAuthHeader reports the Authorization header of the last listing request
func (m *MockFeedServer) LastAuthHeader() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastAuth
}

// domainToFeedObject converts neo.Object to the wire model
func domainToFeedObject(o neo.Object) feed.FeedObject {
	approaches := make([]feed.FeedApproach, len(o.Approaches))
	for i, a := range o.Approaches {
		approaches[i] = feed.FeedApproach{
			Time:         a.Time,
			VelocityKps:  a.VelocityKps,
			MissKm:       a.MissKm,
			MissLunar:    a.MissLunar,
			OrbitingBody: a.OrbitingBody,
		}
	}

	return feed.FeedObject{
		ID:          o.ID,
		Name:        o.Name,
		Designation: o.Designation,
		Magnitude:   o.Magnitude,
		Diameter:    feed.FeedDiameter{Min: o.Diameter.MinKm, Max: o.Diameter.MaxKm},
		Hazardous:   o.Hazardous,
		Sentry:      o.Sentry,
		Approaches:  approaches,
		UpdatedAt:   o.UpdatedAt,
	}
}

// hazardousObject builds a test object with the usual fields filled in
func hazardousObject(id, name string) neo.Object {
	return neo.Object{
		ID:        id,
		Name:      name,
		Magnitude: 19.7,
		Diameter:  neo.Diameter{MinKm: 0.31, MaxKm: 0.68},
		Hazardous: true,
	}
}

// benignObject builds a small, harmless test object
func benignObject(id, name string) neo.Object {
	return neo.Object{
		ID:        id,
		Name:      name,
		Magnitude: 26.5,
		Diameter:  neo.Diameter{MinKm: 0.01, MaxKm: 0.03},
	}
}
