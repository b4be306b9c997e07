package storage

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Memory is an in-memory Store. State is lost on Close.
type Memory struct {
	mu        sync.Mutex
	heartbeat time.Time
	query     map[string]string
	closed    bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) SaveHeartbeat(_ context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStorageClosed
	}
	m.heartbeat = t
	return nil
}

func (m *Memory) LastHeartbeat(_ context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return time.Time{}, ErrStorageClosed
	}
	if m.heartbeat.IsZero() {
		return time.Time{}, ErrNotFound
	}
	return m.heartbeat, nil
}

func (m *Memory) ClearHeartbeat(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStorageClosed
	}
	m.heartbeat = time.Time{}
	return nil
}

func (m *Memory) SaveQuery(_ context.Context, params map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStorageClosed
	}
	m.query = maps.Clone(params)
	if m.query == nil {
		m.query = map[string]string{}
	}
	return nil
}

func (m *Memory) LastQuery(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStorageClosed
	}
	if m.query == nil {
		return nil, ErrNotFound
	}
	return maps.Clone(m.query), nil
}

// Close marks the store closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Store = (*Memory)(nil)
