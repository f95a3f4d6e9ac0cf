// Package server manages HTTP server lifecycle: listen, serve, graceful
// shutdown.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config tunes one HTTP server.
type Config struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns server defaults. WriteTimeout leaves headroom for
// a worst-case fallback chain (3 providers x timeout + delays).
func DefaultConfig(addr string) Config {
	return Config{
		Addr:            addr,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Manager owns one http.Server.
type Manager struct {
	server *http.Server
	config Config
	logger *zap.Logger

	mu        sync.Mutex
	boundAddr string
}

// NewManager creates a manager for the handler.
func NewManager(config Config, handler http.Handler, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		server: &http.Server{
			Addr:         config.Addr,
			Handler:      handler,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config: config,
		logger: logger.With(zap.String("component", "http_server")),
	}
}

// Addr returns the bound listener address once Run has started, or "".
// Useful when the configured address uses port 0.
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boundAddr
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (m *Manager) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.boundAddr = listener.Addr().String()
	m.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		m.logger.Info("listening", zap.String("addr", listener.Addr().String()))
		if err := m.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), m.config.ShutdownTimeout)
	defer cancel()
	if err := m.server.Shutdown(shutdownCtx); err != nil {
		m.logger.Warn("graceful shutdown failed, closing", zap.Error(err))
		return m.server.Close()
	}
	m.logger.Info("server stopped")
	return <-errCh
}
