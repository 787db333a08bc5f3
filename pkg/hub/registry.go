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

package hub

import (
	"sync"

	"github.com/tombee/switchboard/internal/mcp"
)

// The process-wide hub is an explicit registry rather than a bare package
// variable: developer-time reloads re-enter Init and get the existing
// instance back instead of spawning a second set of child processes.
var (
	registryMu sync.Mutex
	registry   *Hub
)

// Init returns the process-wide Hub, creating it on the first call. Later
// calls ignore their arguments and return the existing instance, so
// re-initialization during a hot reload is idempotent.
func Init(configs map[string]mcp.ServerConfig, opts Options) *Hub {
	registryMu.Lock()
	defer registryMu.Unlock()

	if registry == nil {
		registry = New(configs, opts)
	}
	return registry
}

// Get returns the process-wide Hub, or nil before Init.
func Get() *Hub {
	registryMu.Lock()
	defer registryMu.Unlock()
	return registry
}

// Reset discards the process-wide Hub. The caller is responsible for
// shutting the old instance down first; tests use this between cases.
func Reset() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = nil
}
