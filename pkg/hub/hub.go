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

// Package hub is the facade over the tool dispatch subsystem: it owns the
// per-server supervisors, the call queue, the tool executor, and the
// composition executor, and exposes the stable public entry points callers
// use.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tombee/switchboard/internal/executor"
	"github.com/tombee/switchboard/internal/history"
	"github.com/tombee/switchboard/internal/mcp"
	"github.com/tombee/switchboard/internal/queue"
	"github.com/tombee/switchboard/internal/tracing"
	"github.com/tombee/switchboard/pkg/observability"
	"github.com/tombee/switchboard/pkg/tools"
	"github.com/tombee/switchboard/pkg/tools/approval"
	"github.com/tombee/switchboard/pkg/workflow"
)

const (
	clientName    = "switchboard"
	clientVersion = "1.0.0"
)

// ConnectionInfo is one server's externally visible connection state.
type ConnectionInfo struct {
	Name         string               `json:"name"`
	Status       mcp.ConnectionStatus `json:"status"`
	Capabilities CapabilityFlags      `json:"capabilities"`
	Error        string               `json:"error,omitempty"`
}

// CapabilityFlags summarizes a server's advertised capabilities.
type CapabilityFlags struct {
	Tools             bool `json:"tools"`
	Resources         bool `json:"resources"`
	ResourceTemplates bool `json:"resourceTemplates"`
}

// Hub wires the supervisors, queue, executor, and composer together.
type Hub struct {
	configs   map[string]mcp.ServerConfig
	catalog   *mcp.Catalog
	queue     *queue.CallQueue
	exec      *executor.Executor
	composer  *workflow.Composer
	metrics   *tracing.MetricsCollector
	history   *history.Store
	tracer    observability.Tracer
	redactor  *tools.Redactor
	sensitive []string
	logger    *slog.Logger

	mu          sync.RWMutex
	supervisors map[string]*mcp.Supervisor
}

// Options configure hub construction.
type Options struct {
	// Logger for all components; defaults to slog.Default().
	Logger *slog.Logger

	// ExecutorConfig tunes the tool executor; zero value takes defaults.
	ExecutorConfig executor.Config

	// ConcurrencyLimit caps hub-wide concurrent tool calls; zero takes
	// queue.MaxConcurrentOperations.
	ConcurrencyLimit int

	// Approver is the user-confirmation hook for dangerous calls.
	Approver approval.Approver

	// Completer fills missing arguments when LLM completion is enabled.
	Completer executor.Completer

	// ClientFactory overrides how backend connections are established;
	// tests inject in-memory clients here.
	ClientFactory mcp.ClientFactory

	// Metrics, when set, records call counts, latency, rejections, and
	// status transitions. Purely observational.
	Metrics *tracing.MetricsCollector

	// History, when set, persists an audit record per dispatched call.
	History *history.Store

	// Tracer, when set, wraps every dispatched call in a client span.
	// Purely observational, like Metrics.
	Tracer observability.Tracer
}

// New creates a Hub over the given server configurations. Nothing is
// spawned until Initialize (or the first call needing a connection).
func New(configs map[string]mcp.ServerConfig, opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		configs:     make(map[string]mcp.ServerConfig, len(configs)),
		catalog:     mcp.NewCatalog(),
		redactor:    tools.NewRedactor(),
		sensitive:   opts.ExecutorConfig.Safety.SensitiveFields,
		logger:      logger,
		supervisors: make(map[string]*mcp.Supervisor, len(configs)),
	}

	for name, cfg := range configs {
		if cfg.Name == "" {
			cfg.Name = name
		}
		h.configs[name] = cfg

		sup := mcp.NewSupervisor(cfg, h.catalog, clientName, clientVersion, logger)
		if opts.ClientFactory != nil {
			sup.SetClientFactory(opts.ClientFactory)
		}
		h.supervisors[name] = sup
	}

	h.queue = queue.New(h.dispatch, opts.ConcurrencyLimit, logger)

	execOpts := []executor.Option{executor.WithEnsure(h.EnsureConnection)}
	if opts.Approver != nil {
		execOpts = append(execOpts, executor.WithApprover(opts.Approver))
	}
	if opts.Completer != nil {
		execOpts = append(execOpts, executor.WithCompleter(opts.Completer))
	}
	h.exec = executor.New(h.catalog, h.queue.Submit, opts.ExecutorConfig, logger, execOpts...)

	h.composer = workflow.NewComposer(callerAdapter{h}, catalogAdapter{h.catalog}, logger)

	h.metrics = opts.Metrics
	h.history = opts.History
	h.tracer = opts.Tracer
	if h.metrics != nil {
		h.OnStatusChange(func(name string, status mcp.ConnectionStatus, err error, caps *mcp.ServerCapabilities) {
			h.metrics.RecordStatusChange(context.Background(), name, string(status))
		})
	}

	return h
}

// dispatch is the queue's downstream: resolve the server's connected
// client and issue tools/call.
func (h *Hub) dispatch(ctx context.Context, serverName, toolName string, args map[string]interface{}) (*mcp.ToolCallResponse, error) {
	sup := h.supervisor(serverName)
	if sup == nil {
		return nil, mcp.ErrConfigMissing(serverName)
	}

	client := sup.Client()
	if client == nil {
		return nil, mcp.ErrNotConnected(serverName, sup.Snapshot().Status)
	}

	return client.CallTool(ctx, toolName, args)
}

func (h *Hub) supervisor(name string) *mcp.Supervisor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.supervisors[name]
}

// Initialize connects all configured servers in parallel. A single
// server's failure is recorded on its connection and logged; it never
// fails the hub as a whole.
func (h *Hub) Initialize(ctx context.Context) {
	var wg sync.WaitGroup

	h.mu.RLock()
	supervisors := make([]*mcp.Supervisor, 0, len(h.supervisors))
	for _, sup := range h.supervisors {
		supervisors = append(supervisors, sup)
	}
	h.mu.RUnlock()

	for _, sup := range supervisors {
		wg.Add(1)
		go func(s *mcp.Supervisor) {
			defer wg.Done()
			if err := s.EnsureConnection(ctx); err != nil {
				h.logger.Warn("server failed to connect during hub initialization",
					"server", s.Snapshot().Name, "error", err)
			}
		}(sup)
	}

	wg.Wait()
}

// EnsureConnection brings one server to connected, within the supervisor's
// retry budget.
func (h *Hub) EnsureConnection(ctx context.Context, serverName string) error {
	sup := h.supervisor(serverName)
	if sup == nil {
		return mcp.ErrConfigMissing(serverName)
	}
	return sup.EnsureConnection(ctx)
}

// ReconnectServer resets a server's retry budget and forces a fresh
// connect attempt.
func (h *Hub) ReconnectServer(ctx context.Context, serverName string) error {
	sup := h.supervisor(serverName)
	if sup == nil {
		return mcp.ErrConfigMissing(serverName)
	}
	return sup.Reconnect(ctx)
}

// ListConnections reports every configured server's connection state.
func (h *Hub) ListConnections() []ConnectionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ConnectionInfo, 0, len(h.supervisors))
	for _, sup := range h.supervisors {
		conn := sup.Snapshot()
		info := ConnectionInfo{
			Name:   conn.Name,
			Status: conn.Status,
		}
		if conn.LastError != nil {
			info.Error = conn.LastError.Error()
		}
		if caps := conn.Capabilities; caps != nil {
			info.Capabilities = CapabilityFlags{
				Tools:     caps.Tools != nil,
				Resources: caps.Resources != nil,
				// resources/templates/list rides on the resources
				// capability in the protocol.
				ResourceTemplates: caps.Resources != nil,
			}
		}
		out = append(out, info)
	}
	return out
}

// ListConnectionNames returns the configured server names.
func (h *Hub) ListConnectionNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.supervisors))
	for name := range h.supervisors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListTools returns the cached tool descriptors for one server.
func (h *Hub) ListTools(serverName string) ([]*mcp.ToolDescriptor, error) {
	if h.supervisor(serverName) == nil {
		return nil, mcp.ErrConfigMissing(serverName)
	}
	return h.catalog.ListTools(serverName), nil
}

// Catalog exposes the shared tool catalog.
func (h *Hub) Catalog() *mcp.Catalog { return h.catalog }

// OnStatusChange subscribes to status changes from every server. Listeners
// must not block.
func (h *Hub) OnStatusChange(l mcp.StatusListener) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sup := range h.supervisors {
		sup.Subscribe(l)
	}
}

// CallTool ensures the server is connected, then dispatches the call
// through the per-server queue and decodes the response. Unrecoverable
// failures are returned as errors.
func (h *Hub) CallTool(ctx context.Context, serverName, toolName string, args map[string]interface{}) (interface{}, error) {
	if err := h.EnsureConnection(ctx, serverName); err != nil {
		return nil, err
	}

	var span observability.SpanHandle
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "tools/call",
			observability.WithSpanKind(observability.SpanKindClient),
			observability.WithAttributes(map[string]any{
				"server": serverName,
				"tool":   toolName,
			}))
	}

	start := time.Now()
	resp, err := h.queue.Submit(ctx, serverName, toolName, args)
	h.record(ctx, serverName, toolName, args, start, err)

	if span != nil {
		if err != nil {
			span.RecordError(err)
		} else {
			span.SetStatus(observability.StatusCodeOK, "")
		}
		span.End()
	}

	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

// record feeds the optional metrics collector and history store after a
// dispatch. Failures to persist history are logged, never surfaced.
func (h *Hub) record(ctx context.Context, serverName, toolName string, args map[string]interface{}, start time.Time, callErr error) {
	duration := time.Since(start)

	if h.metrics != nil {
		var overloaded *queue.OverloadedError
		if errors.As(callErr, &overloaded) {
			h.metrics.RecordAdmissionRejection(ctx, serverName)
		}
		h.metrics.RecordToolCall(ctx, serverName, toolName, callErr == nil, duration)
	}

	if h.history != nil {
		rec := history.Record{
			ServerName:    serverName,
			ToolName:      toolName,
			Args:          h.redactor.RedactArgs(args, h.sensitive),
			OperationType: string(executor.ClassifyOperation(toolName)),
			Attempts:      1,
			Success:       callErr == nil,
			DurationMs:    duration.Milliseconds(),
			StartedAt:     start,
		}
		if callErr != nil {
			rec.Error = callErr.Error()
		}
		if err := h.history.Append(ctx, rec); err != nil {
			h.logger.Warn("failed to persist call record", "error", err)
		}
	}
}

// History exposes the call-record store, or nil when history is disabled.
func (h *Hub) History() *history.Store { return h.history }

// Executor exposes the tool executor for callers wanting the full
// validation/confirmation/rollback pipeline.
func (h *Hub) Executor() *executor.Executor { return h.exec }

// ExecuteTool runs one call through the tool executor's pipeline.
func (h *Hub) ExecuteTool(ctx context.Context, req executor.Request) *executor.Result {
	if err := h.EnsureConnection(ctx, req.ServerName); err != nil {
		res := &executor.Result{OK: false, Err: err, Error: err.Error()}
		return res
	}
	return h.exec.Execute(ctx, req)
}

// Composer exposes the composition executor.
func (h *Hub) Composer() *workflow.Composer { return h.composer }

// RegisterComposedTool validates and stores a composed tool definition.
func (h *Hub) RegisterComposedTool(def *workflow.ComposedTool) error {
	return h.composer.RegisterTool(def)
}

// ExecuteComposedTool runs a registered composed tool.
func (h *Hub) ExecuteComposedTool(ctx context.Context, name string, params map[string]interface{}) (*workflow.ComposedResult, error) {
	return h.composer.ExecuteTool(ctx, name, params)
}

// Shutdown drains in-flight tool calls, then disconnects every server.
func (h *Hub) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		h.queue.Drain()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		h.logger.Warn("shutdown deadline reached before in-flight calls drained")
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sup := range h.supervisors {
		if err := sup.Disconnect(); err != nil {
			h.logger.Warn("disconnect failed during shutdown",
				"server", sup.Snapshot().Name, "error", err)
		}
	}
}

// decodeResponse converts a tools/call reply into a structured value:
// single text payloads decode as JSON when possible, multiple content
// items are returned as a list, and isError replies become errors.
func decodeResponse(resp *mcp.ToolCallResponse) (interface{}, error) {
	if resp == nil {
		return nil, nil
	}
	if resp.IsError {
		return nil, fmt.Errorf("hub: backend reported tool error: %s", firstText(resp))
	}

	switch len(resp.Content) {
	case 0:
		return nil, nil
	case 1:
		item := resp.Content[0]
		if item.Type == "text" {
			return tools.DecodeText(item.Text).Value, nil
		}
		return item, nil
	default:
		out := make([]interface{}, 0, len(resp.Content))
		for _, item := range resp.Content {
			if item.Type == "text" {
				out = append(out, tools.DecodeText(item.Text).Value)
				continue
			}
			out = append(out, item)
		}
		return out, nil
	}
}

func firstText(resp *mcp.ToolCallResponse) string {
	for _, item := range resp.Content {
		if item.Type == "text" {
			return item.Text
		}
	}
	return "(no detail)"
}

// callerAdapter satisfies workflow.ToolCaller over the hub.
type callerAdapter struct{ h *Hub }

func (a callerAdapter) CallTool(ctx context.Context, serverName, toolName string, args map[string]interface{}) (interface{}, error) {
	return a.h.CallTool(ctx, serverName, toolName, args)
}

// catalogAdapter satisfies workflow.CatalogChecker over the tool catalog.
type catalogAdapter struct{ catalog *mcp.Catalog }

func (a catalogAdapter) HasTool(serverName, toolName string) error {
	_, err := a.catalog.Lookup(serverName, toolName)
	return err
}
