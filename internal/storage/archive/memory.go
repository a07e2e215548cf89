package archive

import (
	"context"
	"sync"
)

// Memory keeps archived blobs in memory for tests and for runs without
// a configured bucket.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory returns an empty in-memory archiver.
func NewMemory() *Memory {
	return &Memory{objects: map[string][]byte{}}
}

// Save records the blob under its object name.
func (m *Memory) Save(_ context.Context, objectName string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	m.objects[objectName] = copied
	return nil
}

// Object returns a stored blob and whether it exists.
func (m *Memory) Object(objectName string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[objectName]
	return data, ok
}

// Len reports the number of stored blobs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
