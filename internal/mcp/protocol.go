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
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// jsonrpcRequest is the wire envelope for an outgoing JSON-RPC 2.0 call.
type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// jsonrpcResponse is the wire envelope for an incoming JSON-RPC 2.0 reply.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// correlator issues monotonic request ids and matches incoming replies to
// their pending request's waiting goroutine. Unmatched replies are logged
// and dropped.
type correlator struct {
	nextID  int64
	mu      sync.Mutex
	pending map[int64]chan *jsonrpcResponse
	logger  *slog.Logger
}

func newCorrelator(logger *slog.Logger) *correlator {
	return &correlator{
		pending: make(map[int64]chan *jsonrpcResponse),
		logger:  logger,
	}
}

// newRequest allocates a fresh monotonic id and registers a waiter for its
// reply, returning the request id and a channel fed exactly once by
// dispatch.
func (c *correlator) newRequest() (int64, chan *jsonrpcResponse) {
	id := atomic.AddInt64(&c.nextID, 1)
	ch := make(chan *jsonrpcResponse, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	return id, ch
}

// cancel removes a pending waiter without delivering a reply, used when a
// request times out or the transport closes.
func (c *correlator) cancel(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// dispatch matches an incoming reply to its pending request and delivers
// it. Replies with no matching id, or with a nil id (notifications), are
// logged and dropped.
func (c *correlator) dispatch(resp *jsonrpcResponse) {
	if resp.ID == nil {
		c.logger.Debug("dropping notification-shaped reply with no id")
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[*resp.ID]
	if ok {
		delete(c.pending, *resp.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("dropping unmatched reply", "id", *resp.ID)
		return
	}
	ch <- resp
}
