package storage

import (
	"context"
	"sync"
	"time"

	"github.com/pcoutinho/bolide/internal/neo"
)

// MockStorage is a test double backed by a plain map. Any of the Func
// fields can be set to override a single method.
type MockStorage struct {
	mu      sync.RWMutex
	objects map[string]neo.Object

	GetFunc     func(ctx context.Context, id string) (*neo.Object, error)
	SetFunc     func(ctx context.Context, id string, object neo.Object, ttl time.Duration) error
	DeleteFunc  func(ctx context.Context, id string) error
	ClearFunc   func(ctx context.Context) error
	ListFunc    func(ctx context.Context) ([]string, error)
	MetricsFunc func() Metrics

	SetCalls    int
	DeleteCalls int
	ClearCalls  int
}

// NewMockStorage creates an empty mock store
func NewMockStorage() *MockStorage {
	return &MockStorage{
		objects: make(map[string]neo.Object),
	}
}

func (m *MockStorage) Get(ctx context.Context, id string) (*neo.Object, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	object, ok := m.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &object, nil
}

func (m *MockStorage) Set(ctx context.Context, id string, object neo.Object, ttl time.Duration) error {
	m.mu.Lock()
	m.SetCalls++
	m.mu.Unlock()

	if m.SetFunc != nil {
		return m.SetFunc(ctx, id, object, ttl)
	}

	m.mu.Lock()
	m.objects[id] = object
	m.mu.Unlock()
	return nil
}

func (m *MockStorage) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	m.DeleteCalls++
	m.mu.Unlock()

	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}

	m.mu.Lock()
	delete(m.objects, id)
	m.mu.Unlock()
	return nil
}

func (m *MockStorage) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.ClearCalls++
	m.mu.Unlock()

	if m.ClearFunc != nil {
		return m.ClearFunc(ctx)
	}

	m.mu.Lock()
	m.objects = make(map[string]neo.Object)
	m.mu.Unlock()
	return nil
}

func (m *MockStorage) List(ctx context.Context) ([]string, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.objects))
	for id := range m.objects {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MockStorage) Metrics() Metrics {
	if m.MetricsFunc != nil {
		return m.MetricsFunc()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return Metrics{Size: int64(len(m.objects))}
}

func (m *MockStorage) Close() error {
	return nil
}

// Len reports how many objects the mock holds
func (m *MockStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
