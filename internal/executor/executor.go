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

// Package executor implements the Tool Executor: argument validation and
// enrichment, danger classification, the confirmation gate, optional
// LLM-assisted completion of missing arguments, best-effort state capture
// and rollback, and retry orchestration over the call queue.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/tombee/switchboard/internal/log"
	"github.com/tombee/switchboard/internal/mcp"
	"github.com/tombee/switchboard/internal/queue"
	"github.com/tombee/switchboard/pkg/tools"
	"github.com/tombee/switchboard/pkg/tools/approval"
)

// retryInterval is the fixed back-off between dispatch attempts.
const retryInterval = time.Second

// CallFunc dispatches one validated tool call downstream (in production,
// through the per-server call queue).
type CallFunc func(ctx context.Context, serverName, toolName string, args map[string]interface{}) (*mcp.ToolCallResponse, error)

// EnsureFunc re-establishes a server's connection; invoked between dispatch
// retries after a transport-level failure.
type EnsureFunc func(ctx context.Context, serverName string) error

// Request names one tool invocation.
type Request struct {
	ServerName string                 `json:"serverName"`
	ToolName   string                 `json:"toolName"`
	Arguments  map[string]interface{} `json:"arguments"`
}

// Result is the executor's boundary shape. Backend failures are reported
// here, never as panics; only programmer errors escape differently.
type Result struct {
	OK            bool                  `json:"ok"`
	Data          *mcp.ToolCallResponse `json:"data,omitempty"`
	Err           error                 `json:"-"`
	Error         string                `json:"error,omitempty"`
	MissingFields []string              `json:"missingFields,omitempty"`
	RollbackErr   error                 `json:"-"`
	RollbackError string                `json:"rollbackError,omitempty"`
}

func failure(err error) *Result {
	return &Result{OK: false, Err: err, Error: err.Error()}
}

// Executor runs the validation/confirmation/dispatch pipeline for single
// tool calls.
type Executor struct {
	catalog   *mcp.Catalog
	call      CallFunc
	ensure    EnsureFunc
	confirm   approval.Approver
	completer Completer
	contexts  *ContextStore
	cfg       Config
	redactor  *tools.Redactor
	logger    *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithApprover sets the confirmation hook. Without one, dangerous calls
// that require confirmation are denied.
func WithApprover(a approval.Approver) Option {
	return func(e *Executor) { e.confirm = a }
}

// WithCompleter sets the LLM completion boundary.
func WithCompleter(c Completer) Option {
	return func(e *Executor) { e.completer = c }
}

// WithEnsure sets the between-retries reconnect hook.
func WithEnsure(f EnsureFunc) Option {
	return func(e *Executor) { e.ensure = f }
}

// WithContextStore shares a pre-populated server-context store.
func WithContextStore(s *ContextStore) Option {
	return func(e *Executor) { e.contexts = s }
}

// New creates an Executor over a catalog and a downstream dispatch
// function.
func New(catalog *mcp.Catalog, call CallFunc, cfg Config, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}

	e := &Executor{
		catalog:   catalog,
		call:      call,
		completer: NopCompleter{},
		contexts:  NewContextStore(),
		cfg:       cfg,
		redactor:  tools.NewRedactor(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Contexts exposes the server-context store so callers can install
// per-server defaults and capabilities.
func (e *Executor) Contexts() *ContextStore { return e.contexts }

// Execute runs one tool call through the full pipeline: resolve the
// descriptor, classify danger and capture prior state, pass the
// confirmation gate, validate and enrich arguments (looping through the
// completion boundary), dispatch with retries, and roll back on failure
// when state was captured.
func (e *Executor) Execute(ctx context.Context, req Request) *Result {
	serverCtx := e.contexts.Get(req.ServerName)

	desc, err := e.catalog.Lookup(req.ServerName, req.ToolName)
	if err != nil {
		return failure(err)
	}

	args := req.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}

	dangerous := IsDangerous(desc, &e.cfg.Safety)

	var captured *capturedState
	if dangerous {
		captured = e.captureState(ctx, req.ServerName, req.ToolName, args)
	}

	if dangerous && RequiresConfirmation(desc, &e.cfg.Safety) {
		ok, err := e.userConfirmation(ctx, desc, req, args)
		if err != nil {
			return failure(err)
		}
		if !ok {
			e.logger.Info("call denied by user",
				"server", req.ServerName, "tool", req.ToolName)
			return failure(&UserDeniedError{ServerName: req.ServerName, ToolName: req.ToolName})
		}
	}

	// Validate and enrich, looping through the completion boundary while
	// fields remain missing. Defaults always apply to safe tools; for
	// dangerous ones the safety config must opt in to auto-fill.
	autoFill := e.cfg.Safety.AutoFillDefaults || !dangerous
	enriched, missing := enrichArgs(desc, args, serverCtx, autoFill)
	attempt := 1
	for len(missing) > 0 {
		if !e.cfg.LLMEnabled || attempt > e.cfg.MaxRetries {
			return e.missingFieldsResult(desc, req, enriched, missing)
		}

		prompt := CompletionPrompt{
			ToolName:    desc.Name,
			Description: desc.Description,
			Arguments:   e.redactor.RedactArgs(enriched, e.cfg.Safety.SensitiveFields),
			Missing:     missingFieldDetails(desc, enriched, missing),
			Attempt:     attempt,
		}

		completion, err := e.completer.Complete(ctx, prompt)
		if err != nil {
			// The deterministic fallback never retries the LLM.
			e.logger.Warn("completion failed; falling back to user prompt",
				"server", req.ServerName, "tool", req.ToolName, "error", err)
			return e.missingFieldsResult(desc, req, enriched, missing)
		}
		if completion.ShouldPromptUser && len(completion.ProvidedValues) == 0 {
			return e.missingFieldsResult(desc, req, enriched, missing)
		}

		for k, v := range completion.ProvidedValues {
			enriched[k] = v
		}
		enriched, missing = enrichArgs(desc, enriched, serverCtx, autoFill)
		attempt++
	}

	resp, err := e.dispatch(ctx, req.ServerName, req.ToolName, enriched)
	e.contexts.RecordOperation(req.ServerName, req.ToolName, err == nil)
	if err == nil {
		return &Result{OK: true, Data: resp}
	}

	result := failure(&ToolCallFailedError{
		ServerName: req.ServerName,
		ToolName:   req.ToolName,
		Cause:      err,
	})

	if captured != nil {
		if rbErr := e.rollback(ctx, req.ServerName, req.ToolName, enriched, captured); rbErr != nil {
			result.RollbackErr = rbErr
			result.RollbackError = rbErr.Error()
		}
	}

	return result
}

func (e *Executor) missingFieldsResult(desc *mcp.ToolDescriptor, req Request, args map[string]interface{}, missing []string) *Result {
	err := &MissingFieldsError{
		ServerName: req.ServerName,
		ToolName:   req.ToolName,
		Fields:     missing,
		UserPrompt: FallbackPrompt(missingFieldDetails(desc, args, missing)),
	}
	res := failure(err)
	res.MissingFields = missing
	return res
}

func (e *Executor) userConfirmation(ctx context.Context, desc *mcp.ToolDescriptor, req Request, args map[string]interface{}) (bool, error) {
	if e.confirm == nil {
		// No hook installed: dangerous calls are denied, not waved through.
		return false, nil
	}
	message := ConfirmationMessage(desc, &e.cfg.Safety)
	shown := e.redactor.RedactArgs(args, e.cfg.Safety.SensitiveFields)
	return e.confirm.Approve(ctx, req.ServerName, req.ToolName, message, shown)
}

// dispatch sends the call downstream with the retry budget, waiting the
// fixed interval between attempts and re-establishing the connection when
// an ensure hook is installed.
func (e *Executor) dispatch(ctx context.Context, serverName, toolName string, args map[string]interface{}) (*mcp.ToolCallResponse, error) {
	limiter := rate.NewLimiter(rate.Every(retryInterval), 1)

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			if e.ensure != nil {
				if err := e.ensure(ctx, serverName); err != nil {
					lastErr = err
					continue
				}
			}
		}

		call := &log.ToolCall{Server: serverName, Tool: toolName, Attempt: attempt}
		log.LogToolCall(e.logger, call)

		start := time.Now()
		resp, err := e.call(ctx, serverName, toolName, args)

		outcome := &log.ToolCallOutcome{
			Success:    err == nil,
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			outcome.Error = err.Error()
		}
		log.LogToolCallOutcome(e.logger, call, outcome)

		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// isRetryable distinguishes transport-level transient failures (retried)
// from lookup, protocol-absence, and admission failures (returned
// immediately). An overload rejection is a deliberate fast-fail; retrying
// it from inside the executor would defeat admission control.
func isRetryable(err error) bool {
	var overloaded *queue.OverloadedError
	if errors.As(err, &overloaded) {
		return false
	}

	if mcpErr := mcp.GetMCPError(err); mcpErr != nil {
		switch mcpErr.Code {
		case mcp.ErrorCodeToolNotFound, mcp.ErrorCodeConfigMissing, mcp.ErrorCodeMethodNotFound:
			return false
		}
	}

	return true
}
