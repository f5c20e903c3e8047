package feed

import (
	"context"
	"sync"

	"github.com/pcoutinho/bolide/internal/neo"
)

// MockClient is a mock implementation of Client for testing
type MockClient struct {
	mu sync.RWMutex

	// Stored objects
	objects map[string]neo.Object

	// Mock behaviors
	FeedFunc        func(ctx context.Context, query FeedQuery) ([]neo.Object, error)
	ObjectFunc      func(ctx context.Context, id string) (*neo.Object, error)
	HealthCheckFunc func(ctx context.Context) error

	// Call tracking
	FeedCalls        int
	ObjectCalls      int
	HealthCheckCalls int
}

// NewMockClient creates a new mock client
func NewMockClient() *MockClient {
	return &MockClient{
		objects: make(map[string]neo.Object),
	}
}

// AddObject adds an object to the mock
func (m *MockClient) AddObject(object neo.Object) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[object.ID] = object
}

// Feed returns all objects
func (m *MockClient) Feed(ctx context.Context, query FeedQuery) ([]neo.Object, error) {
	m.mu.Lock()
	m.FeedCalls++
	m.mu.Unlock()

	if m.FeedFunc != nil {
		return m.FeedFunc(ctx, query)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	objects := make([]neo.Object, 0, len(m.objects))
	for _, object := range m.objects {
		if query.HazardousOnly && !object.Hazardous {
			continue
		}
		objects = append(objects, object)
	}

	return objects, nil
}

// Object returns a single object
func (m *MockClient) Object(ctx context.Context, id string) (*neo.Object, error) {
	m.mu.Lock()
	m.ObjectCalls++
	m.mu.Unlock()

	if m.ObjectFunc != nil {
		return m.ObjectFunc(ctx, id)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	object, ok := m.objects[id]
	if !ok {
		return nil, neo.NewNotFoundError("object", id)
	}

	return &object, nil
}

// HealthCheck performs health check
func (m *MockClient) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.HealthCheckCalls++
	m.mu.Unlock()

	if m.HealthCheckFunc != nil {
		return m.HealthCheckFunc(ctx)
	}

	return nil
}

// Reset resets the mock state
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects = make(map[string]neo.Object)
	m.FeedCalls = 0
	m.ObjectCalls = 0
	m.HealthCheckCalls = 0
}

// AssertCalled asserts methods were called expected times
func (m *MockClient) AssertCalled(t interface{ Errorf(string, ...interface{}) }, method string, expected int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var actual int
	switch method {
	case "Feed":
		actual = m.FeedCalls
	case "Object":
		actual = m.ObjectCalls
	case "HealthCheck":
		actual = m.HealthCheckCalls
	default:
		t.Errorf("unknown method: %s", method)
		return
	}

	if actual != expected {
		t.Errorf("%s called %d times, expected %d", method, actual, expected)
	}
}
