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
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/switchboard/internal/executor"
	"github.com/tombee/switchboard/internal/mcp"
	mcptest "github.com/tombee/switchboard/internal/mcp/testing"
	"github.com/tombee/switchboard/internal/queue"
	"github.com/tombee/switchboard/pkg/workflow"
)

// mockFactory returns a ClientFactory serving pre-built mock clients by
// server name.
func mockFactory(clients map[string]*mcptest.MockClient) mcp.ClientFactory {
	return func(config mcp.ServerConfig, logger *slog.Logger) (mcp.ClientProvider, error) {
		client, ok := clients[config.Name]
		if !ok {
			return nil, mcp.ErrSpawnFailed(config.Name, errors.New("no mock for server"))
		}
		return client, nil
	}
}

func echoTools() []mcp.ToolDefinition {
	return []mcp.ToolDefinition{
		{
			Name:        "say",
			InputSchema: json.RawMessage(`{"properties":{"msg":{"type":"string"}},"required":["msg"]}`),
		},
	}
}

// Scenario S1: a happy-path call returns the backend's text result.
func TestHubCallToolHappyPath(t *testing.T) {
	echo := mcptest.NewMockClient("echo", echoTools())
	echo.SetCallHandler(func(ctx context.Context, name string, args map[string]interface{}) (*mcp.ToolCallResponse, error) {
		require.Equal(t, "say", name)
		return &mcp.ToolCallResponse{Content: []mcp.ContentItem{{Type: "text", Text: "hi"}}}, nil
	})

	h := New(map[string]mcp.ServerConfig{
		"echo": {Name: "echo", Command: "echo-server"},
	}, Options{ClientFactory: mockFactory(map[string]*mcptest.MockClient{"echo": echo})})

	result, err := h.CallTool(context.Background(), "echo", "say", map[string]interface{}{"msg": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", result)
}

func TestHubCallToolJSONDecoded(t *testing.T) {
	echo := mcptest.NewMockClient("echo", echoTools())
	echo.SetCallHandler(func(ctx context.Context, name string, args map[string]interface{}) (*mcp.ToolCallResponse, error) {
		return &mcp.ToolCallResponse{Content: []mcp.ContentItem{{Type: "text", Text: `{"greeting": "hi"}`}}}, nil
	})

	h := New(map[string]mcp.ServerConfig{
		"echo": {Name: "echo", Command: "echo-server"},
	}, Options{ClientFactory: mockFactory(map[string]*mcptest.MockClient{"echo": echo})})

	result, err := h.CallTool(context.Background(), "echo", "say", map[string]interface{}{"msg": "hi"})
	require.NoError(t, err)
	m, ok := result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "hi", m["greeting"])
}

func TestHubCallToolBackendError(t *testing.T) {
	echo := mcptest.NewMockClient("echo", echoTools())
	echo.SetCallHandler(func(ctx context.Context, name string, args map[string]interface{}) (*mcp.ToolCallResponse, error) {
		return &mcp.ToolCallResponse{
			IsError: true,
			Content: []mcp.ContentItem{{Type: "text", Text: "no such thing"}},
		}, nil
	})

	h := New(map[string]mcp.ServerConfig{
		"echo": {Name: "echo", Command: "echo-server"},
	}, Options{ClientFactory: mockFactory(map[string]*mcptest.MockClient{"echo": echo})})

	_, err := h.CallTool(context.Background(), "echo", "say", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such thing")
}

func TestHubCallToolUnconfiguredServer(t *testing.T) {
	h := New(nil, Options{})

	_, err := h.CallTool(context.Background(), "ghost", "say", nil)
	mcpErr := mcp.GetMCPError(err)
	require.NotNil(t, mcpErr)
	assert.Equal(t, mcp.ErrorCodeConfigMissing, mcpErr.Code)
}

// Invariant 5: k CallTool invocations against a healthy backend produce
// exactly one initialize handshake.
func TestHubConnectionReuse(t *testing.T) {
	echo := mcptest.NewMockClient("echo", echoTools())
	var initCount int
	var mu sync.Mutex
	echo.SetInitFunc(func(ctx context.Context, name, version string) (*mcp.ServerCapabilities, error) {
		mu.Lock()
		initCount++
		mu.Unlock()
		return &mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}}, nil
	})

	h := New(map[string]mcp.ServerConfig{
		"echo": {Name: "echo", Command: "echo-server"},
	}, Options{ClientFactory: mockFactory(map[string]*mcptest.MockClient{"echo": echo})})

	for i := 0; i < 5; i++ {
		_, err := h.CallTool(context.Background(), "echo", "say", map[string]interface{}{"msg": "hi"})
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, initCount)
}

func TestHubInitializeConnectsAllAndToleratesFailure(t *testing.T) {
	good := mcptest.NewMockClient("good", echoTools())

	h := New(map[string]mcp.ServerConfig{
		"good": {Name: "good", Command: "good-server"},
		"bad":  {Name: "bad", Command: "bad-server"},
	}, Options{ClientFactory: mockFactory(map[string]*mcptest.MockClient{"good": good})})

	// Must not fail the hub even though "bad" cannot connect.
	h.Initialize(context.Background())

	byName := map[string]ConnectionInfo{}
	for _, info := range h.ListConnections() {
		byName[info.Name] = info
	}

	require.Len(t, byName, 2)
	assert.Equal(t, mcp.StatusConnected, byName["good"].Status)
	assert.True(t, byName["good"].Capabilities.Tools)
	assert.Equal(t, mcp.StatusDisconnected, byName["bad"].Status)
	assert.NotEmpty(t, byName["bad"].Error)
}

func TestHubListTools(t *testing.T) {
	echo := mcptest.NewMockClient("echo", echoTools())

	h := New(map[string]mcp.ServerConfig{
		"echo": {Name: "echo", Command: "echo-server"},
	}, Options{ClientFactory: mockFactory(map[string]*mcptest.MockClient{"echo": echo})})
	h.Initialize(context.Background())

	descs, err := h.ListTools("echo")
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "say", descs[0].Name)
	assert.Equal(t, []string{"msg"}, descs[0].InputSchema.Required)

	_, err = h.ListTools("ghost")
	assert.Error(t, err)
}

func TestHubStatusChangeFanout(t *testing.T) {
	echo := mcptest.NewMockClient("echo", echoTools())

	h := New(map[string]mcp.ServerConfig{
		"echo": {Name: "echo", Command: "echo-server"},
	}, Options{ClientFactory: mockFactory(map[string]*mcptest.MockClient{"echo": echo})})

	var mu sync.Mutex
	var events []mcp.ConnectionStatus
	h.OnStatusChange(func(name string, status mcp.ConnectionStatus, err error, caps *mcp.ServerCapabilities) {
		mu.Lock()
		events = append(events, status)
		mu.Unlock()
	})

	h.Initialize(context.Background())
	echo.TriggerClose()

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, mcp.StatusDisconnected, events[len(events)-1])
}

// Scenario S5 at the facade: with a concurrency limit of 1, a second call
// during a slow first call fast-fails with OverloadedError.
func TestHubAdmissionControl(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	echo := mcptest.NewMockClient("echo", echoTools())
	echo.SetCallHandler(func(ctx context.Context, name string, args map[string]interface{}) (*mcp.ToolCallResponse, error) {
		close(started)
		<-release
		return &mcp.ToolCallResponse{Content: []mcp.ContentItem{{Type: "text", Text: "slow"}}}, nil
	})

	h := New(map[string]mcp.ServerConfig{
		"echo": {Name: "echo", Command: "echo-server"},
	}, Options{
		ConcurrencyLimit: 1,
		ClientFactory:    mockFactory(map[string]*mcptest.MockClient{"echo": echo}),
	})
	h.Initialize(context.Background())

	go func() { _, _ = h.CallTool(context.Background(), "echo", "say", nil) }()
	<-started

	begin := time.Now()
	_, err := h.CallTool(context.Background(), "echo", "say", nil)
	elapsed := time.Since(begin)

	var overloaded *queue.OverloadedError
	require.ErrorAs(t, err, &overloaded)
	assert.Less(t, elapsed, 200*time.Millisecond)

	close(release)
}

func TestHubExecuteToolPipeline(t *testing.T) {
	echo := mcptest.NewMockClient("echo", echoTools())

	h := New(map[string]mcp.ServerConfig{
		"echo": {Name: "echo", Command: "echo-server"},
	}, Options{
		ExecutorConfig: executor.Config{MaxRetries: 1, LLMEnabled: false, Safety: executor.SafetyConfig{AutoFillDefaults: true}},
		ClientFactory:  mockFactory(map[string]*mcptest.MockClient{"echo": echo}),
	})
	h.Initialize(context.Background())

	// Missing required field with no default: the executor reports it.
	res := h.ExecuteTool(context.Background(), executor.Request{ServerName: "echo", ToolName: "say"})
	require.False(t, res.OK)
	assert.Equal(t, []string{"msg"}, res.MissingFields)

	res = h.ExecuteTool(context.Background(), executor.Request{
		ServerName: "echo", ToolName: "say",
		Arguments: map[string]interface{}{"msg": "hello"},
	})
	require.True(t, res.OK, "error: %v", res.Err)
}

func TestHubComposedToolEndToEnd(t *testing.T) {
	github := mcptest.NewMockClient("github", []mcp.ToolDefinition{
		{Name: "create_repo"},
		{Name: "push_files"},
		{Name: "delete_repo"},
	})
	var calls []string
	var mu sync.Mutex
	github.SetCallHandler(func(ctx context.Context, name string, args map[string]interface{}) (*mcp.ToolCallResponse, error) {
		mu.Lock()
		calls = append(calls, name)
		mu.Unlock()
		switch name {
		case "create_repo":
			return &mcp.ToolCallResponse{Content: []mcp.ContentItem{{Type: "text", Text: `{"name": "octo/hello"}`}}}, nil
		case "push_files":
			return nil, errors.New("push rejected")
		default:
			return &mcp.ToolCallResponse{Content: []mcp.ContentItem{{Type: "text", Text: `{}`}}}, nil
		}
	})

	h := New(map[string]mcp.ServerConfig{
		"github": {Name: "github", Command: "github-server"},
	}, Options{ClientFactory: mockFactory(map[string]*mcptest.MockClient{"github": github})})
	h.Initialize(context.Background())

	def := &workflow.ComposedTool{
		Name: "provision-repo",
		Steps: []workflow.Step{
			{
				Name: "create", Server: "github", Tool: "create_repo",
				Output: "repo",
				Rollback: &workflow.RollbackSpec{
					Server: "github", Tool: "delete_repo",
					Input: map[string]interface{}{
						"name": map[string]interface{}{
							"source": map[string]interface{}{"kind": "output", "stepName": "create", "path": "repo.name"},
						},
					},
				},
			},
			{
				Name: "push", Server: "github", Tool: "push_files",
				Input: map[string]interface{}{
					"repo": map[string]interface{}{
						"source": map[string]interface{}{"kind": "output", "stepName": "create", "path": "repo.name"},
					},
				},
			},
		},
	}
	require.NoError(t, h.RegisterComposedTool(def))

	result, err := h.ExecuteComposedTool(context.Background(), "provision-repo", nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.NotNil(t, result.Rollback)
	assert.True(t, result.Rollback.Triggered)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"create_repo", "push_files", "delete_repo"}, calls)
}

func TestHubRegistryIdempotent(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	first := Init(map[string]mcp.ServerConfig{"a": {Name: "a", Command: "x"}}, Options{})
	second := Init(map[string]mcp.ServerConfig{"b": {Name: "b", Command: "y"}}, Options{})

	assert.Same(t, first, second, "Init must return the existing hub")
	assert.Same(t, first, Get())

	Reset()
	assert.Nil(t, Get())
}

func TestHubShutdownDrains(t *testing.T) {
	release := make(chan struct{})
	echo := mcptest.NewMockClient("echo", echoTools())
	done := false
	var mu sync.Mutex
	echo.SetCallHandler(func(ctx context.Context, name string, args map[string]interface{}) (*mcp.ToolCallResponse, error) {
		<-release
		mu.Lock()
		done = true
		mu.Unlock()
		return &mcp.ToolCallResponse{Content: []mcp.ContentItem{{Type: "text", Text: "ok"}}}, nil
	})

	h := New(map[string]mcp.ServerConfig{
		"echo": {Name: "echo", Command: "echo-server"},
	}, Options{ClientFactory: mockFactory(map[string]*mcptest.MockClient{"echo": echo})})
	h.Initialize(context.Background())

	go func() { _, _ = h.CallTool(context.Background(), "echo", "say", nil) }()
	time.Sleep(20 * time.Millisecond)

	go func() {
		time.Sleep(30 * time.Millisecond)
		close(release)
	}()

	h.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, done, "shutdown must wait for the in-flight call")
	assert.True(t, echo.Closed(), "transports closed after drain")
}
