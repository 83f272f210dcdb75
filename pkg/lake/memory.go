package lake

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-memory ObjectStore for testing.
type MemStore struct {
	mu      sync.Mutex
	objects map[string]*Object
	rev     int

	// FailNextPuts makes the next N Put/PutIf calls fail with PutErr.
	FailNextPuts int
	PutErr       error
}

func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string]*Object)}
}

func (m *MemStore) Get(ctx context.Context, key string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	data := make([]byte, len(obj.Data))
	copy(data, obj.Data)
	return &Object{Data: data, ETag: obj.ETag}, nil
}

func (m *MemStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failPut(); err != nil {
		return err
	}
	m.store(key, data)
	return nil
}

func (m *MemStore) PutIf(ctx context.Context, key string, data []byte, contentType, etag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failPut(); err != nil {
		return err
	}

	cur, exists := m.objects[key]
	if etag == "" {
		if exists {
			return ErrPreconditionFailed
		}
	} else if !exists || cur.ETag != etag {
		return ErrPreconditionFailed
	}
	m.store(key, data)
	return nil
}

// Keys returns all stored keys, for downstream-lister assertions.
func (m *MemStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

func (m *MemStore) failPut() error {
	if m.FailNextPuts > 0 {
		m.FailNextPuts--
		if m.PutErr != nil {
			return m.PutErr
		}
		return fmt.Errorf("injected put failure")
	}
	return nil
}

func (m *MemStore) store(key string, data []byte) {
	m.rev++
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[key] = &Object{Data: stored, ETag: fmt.Sprintf("\"rev-%d\"", m.rev)}
}
