// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// MaxRetryAttempts bounds ensureConnection's reconnect budget per
	// server before it starts failing fast with MaxRetriesExceeded.
	MaxRetryAttempts = 3

	// ConnectionTimeout bounds a single connect attempt, from spawn
	// through the initialize reply.
	ConnectionTimeout = 10 * time.Second
)

// StatusListener observes Connection status changes. Implementations must
// not block; the Supervisor does not await them.
type StatusListener func(name string, status ConnectionStatus, err error, capabilities *ServerCapabilities)

// Supervisor owns the full lifecycle of one configured server's
// Connection: spawning its client, running the
// disconnected/connecting/connected state machine, and populating the Tool
// Catalog once connected. A Connection is mutated only by its Supervisor.
type Supervisor struct {
	config        ServerConfig
	clientName    string
	clientVersion string
	catalog       *Catalog
	factory       ClientFactory
	logger        *slog.Logger

	mu         sync.Mutex
	conn       Connection
	client     ClientProvider
	retryCount int
	inflight   *connectAttempt

	listenersMu sync.Mutex
	listeners   []StatusListener
}

// connectAttempt is one in-flight connect. Concurrent EnsureConnection
// callers join it instead of spawning their own client, so a healthy
// backend sees exactly one initialize handshake no matter how many
// goroutines raced to connect.
type connectAttempt struct {
	done chan struct{}
	err  error
}

// NewSupervisor creates a Supervisor for one server, initially
// disconnected. The Tool Catalog is populated automatically once the
// server reaches connected and advertises the tools capability.
func NewSupervisor(config ServerConfig, catalog *Catalog, clientName, clientVersion string, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		config:        config,
		clientName:    clientName,
		clientVersion: clientVersion,
		catalog:       catalog,
		factory:       DefaultClientFactory,
		logger:        logger.With("server", config.Name),
		conn: Connection{
			Name:   config.Name,
			Status: StatusDisconnected,
		},
	}
}

// SetClientFactory replaces the factory used to establish connections.
// Must be called before the first connect attempt; tests use this to
// substitute in-memory clients.
func (s *Supervisor) SetClientFactory(f ClientFactory) {
	s.factory = f
}

// Subscribe registers a status listener.
func (s *Supervisor) Subscribe(l StatusListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Snapshot returns a copy of the current Connection record.
func (s *Supervisor) Snapshot() Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Client returns the current client, or nil if not connected.
func (s *Supervisor) Client() ClientProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// EnsureConnection is idempotent: if the server is already connected it
// returns immediately; if a connect attempt is already in flight it waits
// for that attempt's outcome instead of starting a second one. Otherwise
// it attempts to connect, bounded by MaxRetryAttempts; once the retry
// count reaches the cap, further calls fail fast with MaxRetriesExceeded
// until a manual Reconnect resets it.
func (s *Supervisor) EnsureConnection(ctx context.Context) error {
	s.mu.Lock()
	if s.conn.Status == StatusConnected {
		s.mu.Unlock()
		return nil
	}
	if attempt := s.inflight; attempt != nil {
		s.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.retryCount >= MaxRetryAttempts {
		name := s.conn.Name
		attempts := s.retryCount
		s.mu.Unlock()
		return ErrMaxRetriesExceeded(name, attempts)
	}
	attempt := &connectAttempt{done: make(chan struct{})}
	s.inflight = attempt
	s.mu.Unlock()

	return s.runAttempt(ctx, attempt)
}

// Reconnect resets the retry counter and forces a fresh connect attempt
// regardless of current status. A connect already in flight is joined
// rather than duplicated.
func (s *Supervisor) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	s.retryCount = 0
	if attempt := s.inflight; attempt != nil {
		s.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	attempt := &connectAttempt{done: make(chan struct{})}
	s.inflight = attempt
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client != nil {
		_ = client.Close()
	}
	return s.runAttempt(ctx, attempt)
}

// runAttempt owns the inflight slot: it performs the connect, publishes
// the outcome to joiners, and clears the slot.
func (s *Supervisor) runAttempt(ctx context.Context, attempt *connectAttempt) error {
	err := s.connect(ctx)

	s.mu.Lock()
	s.inflight = nil
	s.mu.Unlock()

	attempt.err = err
	close(attempt.done)
	return err
}

func (s *Supervisor) connect(ctx context.Context) error {
	s.setStatus(StatusConnecting, nil, nil)

	connectCtx, cancel := context.WithTimeout(ctx, ConnectionTimeout)
	defer cancel()

	client, err := s.factory(s.config, s.logger)
	if err != nil {
		return s.failConnect(err)
	}

	capabilities, err := client.Initialize(connectCtx, s.clientName, s.clientVersion)
	if err != nil {
		_ = client.Close()
		if connectCtx.Err() != nil {
			return s.failConnect(ErrConnectTimeout(s.config.Name, int(ConnectionTimeout.Seconds())))
		}
		return s.failConnect(err)
	}

	s.mu.Lock()
	s.client = client
	s.retryCount = 0
	s.mu.Unlock()

	// Disconnect detection is armed only after a successful handshake so a
	// failed attempt's teardown does not masquerade as a lost connection.
	client.OnClose(func() { s.handleConnectionLost() })

	s.setStatus(StatusConnected, nil, capabilities)

	if capabilities != nil && capabilities.Tools != nil {
		tools, err := client.ListTools(ctx)
		if err != nil {
			s.logger.Warn("tools/list failed after connect", "error", err)
		} else {
			s.catalog.Replace(s.config.Name, tools)
		}
	}

	return nil
}

func (s *Supervisor) failConnect(err error) error {
	s.mu.Lock()
	s.retryCount++
	s.mu.Unlock()
	s.setStatus(StatusDisconnected, err, nil)
	return err
}

func (s *Supervisor) handleConnectionLost() {
	s.mu.Lock()
	alreadyDown := s.conn.Status == StatusDisconnected
	s.client = nil
	s.mu.Unlock()

	if alreadyDown {
		return
	}
	s.setStatus(StatusDisconnected, ErrNotConnected(s.config.Name, StatusDisconnected), nil)
}

func (s *Supervisor) setStatus(status ConnectionStatus, err error, capabilities *ServerCapabilities) {
	s.mu.Lock()
	s.conn.Status = status
	s.conn.LastError = err
	if capabilities != nil {
		s.conn.Capabilities = capabilities
	}
	if status == StatusConnected {
		now := time.Now().UnixNano()
		s.conn.LastSuccessfulConnectAt = &now
	}
	s.conn.RetryCount = s.retryCount
	name := s.conn.Name
	caps := s.conn.Capabilities
	s.mu.Unlock()

	s.listenersMu.Lock()
	listeners := make([]StatusListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l(name, status, err, caps)
	}
}

// Disconnect closes the client and marks the connection disconnected.
// Used during process shutdown.
func (s *Supervisor) Disconnect() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	err := client.Close()
	s.setStatus(StatusDisconnected, nil, nil)
	return err
}
