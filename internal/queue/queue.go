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

// Package queue serializes tool calls per server and enforces the hub-wide
// admission cap. Each server gets a FIFO consumed by a single goroutine, so
// tool-call side effects against one backend are observed in the order the
// calls were accepted; a weighted semaphore bounds how many calls execute
// concurrently across the whole hub.
package queue

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/tombee/switchboard/internal/mcp"
)

// MaxConcurrentOperations is the default hub-wide cap on simultaneously
// executing tool calls.
const MaxConcurrentOperations = 5

// OverloadedError is returned synchronously when a call is submitted while
// the hub is already executing its maximum number of concurrent operations.
// It is a fast-fail, never a block.
type OverloadedError struct {
	Limit int
}

// Error implements the error interface.
func (e *OverloadedError) Error() string {
	return fmt.Sprintf("hub is at its concurrent operation limit (%d); retry shortly", e.Limit)
}

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *OverloadedError) IsUserVisible() bool { return true }

// UserMessage implements pkg/errors.UserVisibleError.
func (e *OverloadedError) UserMessage() string { return e.Error() }

// Suggestion implements pkg/errors.UserVisibleError.
func (e *OverloadedError) Suggestion() string {
	return "wait for in-flight tool calls to finish or raise the operation limit"
}

// Dispatcher is the downstream a dequeued call is handed to. In production
// this resolves the server's connected client and issues tools/call; tests
// substitute a recording fake.
type Dispatcher func(ctx context.Context, serverName, toolName string, args map[string]interface{}) (*mcp.ToolCallResponse, error)

// pendingCall is one enqueued tool call waiting for its turn against a
// backend.
type pendingCall struct {
	ctx      context.Context
	toolName string
	args     map[string]interface{}
	done     chan callResult
}

type callResult struct {
	resp *mcp.ToolCallResponse
	err  error
}

// serverQueue is the FIFO for one server. A single consumer goroutine
// drains it, so at most one call executes against the backend at a time.
type serverQueue struct {
	name string

	mu      sync.Mutex
	waiting *list.List
	running bool
}

// CallQueue owns one FIFO per server plus the hub-wide admission
// semaphore. Submit is safe for concurrent use from any goroutine.
type CallQueue struct {
	dispatch Dispatcher
	sem      *semaphore.Weighted
	limit    int
	logger   *slog.Logger

	mu      sync.Mutex
	servers map[string]*serverQueue

	inflight sync.WaitGroup
}

// New creates a CallQueue with the given hub-wide concurrency limit.
// A limit of zero or less falls back to MaxConcurrentOperations.
func New(dispatch Dispatcher, limit int, logger *slog.Logger) *CallQueue {
	if limit <= 0 {
		limit = MaxConcurrentOperations
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CallQueue{
		dispatch: dispatch,
		sem:      semaphore.NewWeighted(int64(limit)),
		limit:    limit,
		logger:   logger,
		servers:  make(map[string]*serverQueue),
	}
}

// Submit enqueues one tool call for a server and waits for its result.
// Admission is checked synchronously: if the hub is already executing its
// maximum number of concurrent calls, Submit fails immediately with
// OverloadedError and the queue state is unchanged.
//
// For any single server, calls complete in the order Submit accepted them.
func (q *CallQueue) Submit(ctx context.Context, serverName, toolName string, args map[string]interface{}) (*mcp.ToolCallResponse, error) {
	if !q.sem.TryAcquire(1) {
		q.logger.Warn("tool call rejected by admission control",
			"server", serverName, "tool", toolName, "limit", q.limit)
		return nil, &OverloadedError{Limit: q.limit}
	}

	call := &pendingCall{
		ctx:      ctx,
		toolName: toolName,
		args:     args,
		done:     make(chan callResult, 1),
	}

	q.inflight.Add(1)
	q.enqueue(serverName, call)

	select {
	case res := <-call.done:
		return res.resp, res.err
	case <-ctx.Done():
		// The consumer still owns the call and will release the
		// semaphore when it gets to it; the caller just stops waiting.
		return nil, ctx.Err()
	}
}

// enqueue appends the call to the server's FIFO and starts the consumer if
// it is idle.
func (q *CallQueue) enqueue(serverName string, call *pendingCall) {
	q.mu.Lock()
	sq, ok := q.servers[serverName]
	if !ok {
		sq = &serverQueue{name: serverName, waiting: list.New()}
		q.servers[serverName] = sq
	}
	q.mu.Unlock()

	sq.mu.Lock()
	sq.waiting.PushBack(call)
	startConsumer := !sq.running
	if startConsumer {
		sq.running = true
	}
	sq.mu.Unlock()

	if startConsumer {
		go q.consume(sq)
	}
}

// consume drains one server's FIFO, dispatching exactly one call at a
// time. It exits when the queue is empty and restarts on the next enqueue.
func (q *CallQueue) consume(sq *serverQueue) {
	for {
		sq.mu.Lock()
		front := sq.waiting.Front()
		if front == nil {
			sq.running = false
			sq.mu.Unlock()
			return
		}
		sq.waiting.Remove(front)
		sq.mu.Unlock()

		call := front.Value.(*pendingCall)
		q.run(sq.name, call)
	}
}

func (q *CallQueue) run(serverName string, call *pendingCall) {
	defer q.sem.Release(1)
	defer q.inflight.Done()

	if err := call.ctx.Err(); err != nil {
		call.done <- callResult{err: err}
		return
	}

	resp, err := q.dispatch(call.ctx, serverName, call.toolName, call.args)
	call.done <- callResult{resp: resp, err: err}
}

// Drain blocks until every accepted call has finished executing. Used
// during process shutdown before transports are closed.
func (q *CallQueue) Drain() {
	q.inflight.Wait()
}
