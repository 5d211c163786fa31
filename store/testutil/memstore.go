// Package testutil provides an in-memory Store implementation for tests
// in filter, hook, and verify: a minimal fake standing in for a real
// transport.
package testutil

import (
	"net/url"
	"os"
	"sync"

	"github.com/t7a/bifrost/store"
)

// MemStore is a store.Interface backed by an in-process map keyed by
// relative name; the URI passed to Push and Pull is ignored, so distinct
// mem:// URIs need distinct MemStore values.
type MemStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	OpenErr error
	PullErr error
	PushErr error
	// PushFailedNoErr makes Push report store.Failed with a nil error, the
	// same as a transport that classifies a failure without returning a Go
	// error (store.Interface's contract explicitly permits this).
	PushFailedNoErr bool
	Opened          bool
	Closed          bool
	failOnce        map[string]bool // relativeName -> flag; not read by any method
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string][]byte)}
}

// Seed pre-populates the store with content at relativeName, as if a prior
// Push had succeeded.
func (m *MemStore) Seed(relativeName string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[relativeName] = data
}

func (m *MemStore) Open(_ *url.URL, _ store.Credentials) error {
	if m.OpenErr != nil {
		return m.OpenErr
	}
	m.Opened = true
	return nil
}

func (m *MemStore) Push(localPath string, _ *url.URL, relativeName string) (store.Result, error) {
	if m.PushErr != nil {
		return store.Failed, m.PushErr
	}
	if m.PushFailedNoErr {
		return store.Failed, nil
	}
	buf, err := os.ReadFile(localPath)
	if err != nil {
		return store.Failed, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.objects[relativeName]; ok && len(existing) == len(buf) {
		return store.Skipped, nil
	}
	m.objects[relativeName] = buf
	return store.Success, nil
}

func (m *MemStore) Pull(_ *url.URL, relativeName string) ([]byte, bool, error) {
	if m.PullErr != nil {
		return nil, false, m.PullErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.objects[relativeName]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	return cp, true, nil
}

func (m *MemStore) Close() error {
	m.Closed = true
	return nil
}
