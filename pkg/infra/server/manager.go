package server

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// DefaultShutdownTimeout bounds graceful shutdown when none is configured.
const DefaultShutdownTimeout = 30 * time.Second

// Manager starts a set of servers and stops them when the context ends.
type Manager struct {
	servers         []Runnable
	shutdownTimeout time.Duration
}

// NewManager creates a Manager. A non-positive timeout falls back to DefaultShutdownTimeout.
func NewManager(shutdownTimeout time.Duration, servers ...Runnable) *Manager {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &Manager{servers: servers, shutdownTimeout: shutdownTimeout}
}

// Add registers another server.
func (m *Manager) Add(s Runnable) {
	m.servers = append(m.servers, s)
}

// Run starts every server in order and blocks until ctx is done.
// Servers are then stopped in reverse order within the shutdown timeout.
// A start failure stops the servers already started and is returned.
func (m *Manager) Run(ctx context.Context) error {
	started := make([]Runnable, 0, len(m.servers))
	for _, s := range m.servers {
		if err := s.Start(ctx); err != nil {
			logger.Errorw("Server failed to start", "server", s.Name(), "error", err.Error())
			stopErr := m.stop(started)
			return utilerrors.NewAggregate([]error{fmt.Errorf("start %s: %w", s.Name(), err), stopErr})
		}
		logger.Infow("Server started", "server", s.Name())
		started = append(started, s)
	}

	<-ctx.Done()
	logger.Infow("Shutting down servers", "timeout", m.shutdownTimeout.String())
	return m.stop(started)
}

func (m *Manager) stop(servers []Runnable) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(servers) - 1; i >= 0; i-- {
		s := servers[i]
		if err := s.Stop(ctx); err != nil {
			logger.Errorw("Server failed to stop", "server", s.Name(), "error", err.Error())
			errs = append(errs, fmt.Errorf("stop %s: %w", s.Name(), err))
			continue
		}
		logger.Infow("Server stopped", "server", s.Name())
	}
	return utilerrors.NewAggregate(errs)
}
