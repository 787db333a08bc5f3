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

package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/switchboard/internal/executor"
)

const sampleConfig = `
servers:
  github:
    command: npx
    args: ["-y", "@modelcontextprotocol/server-github"]
    env:
      GITHUB_TOKEN: placeholder
  filesystem:
    command: mcp-fs

executor:
  max_retries: 2
  llm_enabled: false
  safety:
    auto_fill_defaults: true
    sensitive_fields: [token]
    confirmation_required:
      danger_levels: [high]

server_contexts:
  github:
    type: github
    defaults:
      owner: octo
      tools:
        create_issue:
          labels: [triage]
    capabilities:
      supports_rollback: true
      max_concurrent_calls: 1

concurrency: 3

log:
  level: debug
  format: text
`

func TestLoadFullDocument(t *testing.T) {
	cfg, err := Load(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	require.Len(t, cfg.Servers, 2)
	gh := cfg.Servers["github"]
	assert.Equal(t, "npx", gh.Command)
	assert.Equal(t, "placeholder", gh.Env["GITHUB_TOKEN"])

	assert.Equal(t, 2, cfg.Executor.MaxRetries)
	assert.False(t, cfg.Executor.LLMEnabled)
	assert.Equal(t, []string{"token"}, cfg.Executor.Safety.SensitiveFields)
	require.NotNil(t, cfg.Executor.Safety.ConfirmationRequired)

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, "debug", cfg.Log.Level)

	ctx := cfg.ServerContexts["github"]
	assert.Equal(t, "github", ctx.Type)
	assert.True(t, ctx.Capabilities.SupportsRollback)
}

func TestLoadEmptyDocumentDefaults(t *testing.T) {
	cfg, err := Load(strings.NewReader(""))
	require.NoError(t, err)

	assert.Empty(t, cfg.Servers)
	assert.Equal(t, executor.DefaultConfig().MaxRetries, cfg.Executor.MaxRetries)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(strings.NewReader("serverss:\n  a:\n    command: x\n"))
	require.Error(t, err)
}

func TestLoadRejectsMissingCommand(t *testing.T) {
	_, err := Load(strings.NewReader("servers:\n  broken: {}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command is required")
}

func TestLoadRejectsContextForUnknownServer(t *testing.T) {
	doc := `
servers:
  a:
    command: x
server_contexts:
  b:
    type: default
`
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestLoadRejectsNegativeConcurrency(t *testing.T) {
	doc := "servers:\n  a:\n    command: x\nconcurrency: -1\n"
	_, err := Load(strings.NewReader(doc))
	require.Error(t, err)
}

func TestServerConfigsConversion(t *testing.T) {
	cfg, err := Load(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	servers := cfg.ServerConfigs()
	require.Contains(t, servers, "github")
	assert.Equal(t, "github", servers["github"].Name)
	assert.Equal(t, "npx", servers["github"].Command)
}

func TestApplyContexts(t *testing.T) {
	cfg, err := Load(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	store := executor.NewContextStore()
	cfg.ApplyContexts(store)

	ctx := store.Get("github")
	assert.Equal(t, executor.ServerTypeGitHub, ctx.Type)
	assert.Equal(t, "octo", ctx.Config["owner"])
	assert.True(t, ctx.Capabilities.SupportsRollback)
}
