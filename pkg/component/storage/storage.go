// Package storage defines the common contract of backing store clients and a
// registry used for health reporting and shutdown.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

var (
	// ErrClientNotFound 客户端未注册
	ErrClientNotFound = errors.New("storage client not found")
	// ErrClientAlreadyExists 客户端重复注册
	ErrClientAlreadyExists = errors.New("storage client already registered")
)

// Client is implemented by every backing store client.
type Client interface {
	// Name returns the backend name, e.g. "postgres".
	Name() string
	// Ping verifies connectivity.
	Ping(ctx context.Context) error
	// Close releases the underlying connections.
	Close() error
}

// HealthStatus is the result of pinging one client.
type HealthStatus struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency_ns"`
	Error   string        `json:"error,omitempty"`
}

// Manager is a registry of named clients. It is safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{clients: make(map[string]Client)}
}

// Register adds a client under name.
func (m *Manager) Register(name string, client Client) error {
	if name == "" || client == nil {
		return fmt.Errorf("invalid storage client registration %q", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[name]; ok {
		return fmt.Errorf("%w: %s", ErrClientAlreadyExists, name)
	}
	m.clients[name] = client
	return nil
}

// Get returns the client registered under name.
func (m *Manager) Get(name string) (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, name)
	}
	return c, nil
}

// List returns the registered names in sorted order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.clients))
	for n := range m.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HealthCheckAll pings every client concurrently. Results follow List order.
func (m *Manager) HealthCheckAll(ctx context.Context) []HealthStatus {
	names := m.List()
	out := make([]HealthStatus, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		c, err := m.Get(name)
		if err != nil {
			out[i] = HealthStatus{Name: name, Error: err.Error()}
			continue
		}
		wg.Add(1)
		go func(i int, name string, c Client) {
			defer wg.Done()
			start := time.Now()
			err := c.Ping(ctx)
			out[i] = HealthStatus{Name: name, Healthy: err == nil, Latency: time.Since(start)}
			if err != nil {
				out[i].Error = err.Error()
			}
		}(i, name, c)
	}
	wg.Wait()
	return out
}

// AllHealthy reports whether every client answers Ping.
func (m *Manager) AllHealthy(ctx context.Context) bool {
	for _, s := range m.HealthCheckAll(ctx) {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// CloseAll closes and unregisters every client.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, c := range m.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(m.clients, name)
	}
	return utilerrors.NewAggregate(errs)
}
