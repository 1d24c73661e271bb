package secretstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store. It records every Put so tests can assert
// that nothing was written.
type Memory struct {
	mu      sync.Mutex
	name    string
	secrets map[string]string
	puts    []Write

	// FetchErr and PutErr, when set for an id, are returned instead of touching the map.
	FetchErr map[string]error
	PutErr   map[string]error
}

// Write is one recorded Put call
type Write struct {
	ID      string
	Payload string
}

// NewMemory creates a Memory store seeded with secrets
func NewMemory(secrets map[string]string) *Memory {
	m := &Memory{
		name:     "memory",
		secrets:  make(map[string]string, len(secrets)),
		FetchErr: make(map[string]error),
		PutErr:   make(map[string]error),
	}
	for k, v := range secrets {
		m.secrets[k] = v
	}
	return m
}

// Name returns the store name
func (m *Memory) Name() string {
	return m.name
}

// Fetch returns the payload stored under id
func (m *Memory) Fetch(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := m.FetchErr[id]; err != nil {
		return "", err
	}
	value, ok := m.secrets[id]
	if !ok {
		return "", NotFoundError{Store: m.name, Path: id}
	}
	return value, nil
}

// Put replaces the payload stored under id
func (m *Memory) Put(ctx context.Context, id string, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.PutErr[id]; err != nil {
		return err
	}
	if _, ok := m.secrets[id]; !ok {
		return NotFoundError{Store: m.name, Path: id}
	}
	m.secrets[id] = payload
	m.puts = append(m.puts, Write{ID: id, Payload: payload})
	return nil
}

// Writes returns every successful Put in order
func (m *Memory) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Write(nil), m.puts...)
}

// Get returns the current payload without going through Fetch's error injection
func (m *Memory) Get(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.secrets[id]
	return v, ok
}
