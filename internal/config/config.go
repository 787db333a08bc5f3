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

// Package config defines the hub's configuration shape and decodes it from
// YAML. Discovery of the file itself is the caller's concern; Load only
// takes a reader.
package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tombee/switchboard/internal/executor"
	"github.com/tombee/switchboard/internal/mcp"
	"github.com/tombee/switchboard/pkg/errors"
)

// ServerEntry declares one backend process.
type ServerEntry struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// ContextEntry carries per-server executor state: the default-argument map
// and advisory capabilities.
type ContextEntry struct {
	Type         string                      `yaml:"type,omitempty"`
	Defaults     map[string]interface{}      `yaml:"defaults,omitempty"`
	Capabilities executor.ServerCapabilities `yaml:"capabilities,omitempty"`
}

// LogEntry tunes logging output.
type LogEntry struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Config is the hub's full configuration document.
type Config struct {
	// Servers maps server names to their process specs.
	Servers map[string]ServerEntry `yaml:"servers"`

	// Executor tunes the tool executor (retries, LLM completion, safety).
	Executor executor.Config `yaml:"executor"`

	// ServerContexts carries per-server default arguments and
	// capabilities for the executor.
	ServerContexts map[string]ContextEntry `yaml:"server_contexts,omitempty"`

	// Concurrency caps hub-wide concurrent tool calls; zero takes the
	// built-in default.
	Concurrency int `yaml:"concurrency,omitempty"`

	// Log tunes structured logging.
	Log LogEntry `yaml:"log,omitempty"`
}

// Default returns a Config with executor defaults and no servers.
func Default() *Config {
	return &Config{
		Servers:  make(map[string]ServerEntry),
		Executor: executor.DefaultConfig(),
	}
}

// Load decodes a YAML configuration document. Unknown keys are rejected so
// typos surface immediately.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return cfg, nil
		}
		return nil, &errors.ConfigError{Reason: "configuration is not valid YAML", Cause: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and decodes the configuration at path.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errors.ConfigError{Reason: fmt.Sprintf("cannot open %s", path), Cause: err}
	}
	defer f.Close()
	return Load(f)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	for name, server := range c.Servers {
		if name == "" {
			return &errors.ConfigError{Key: "servers", Reason: "server name cannot be empty"}
		}
		if server.Command == "" {
			return &errors.ConfigError{
				Key:    "servers." + name + ".command",
				Reason: "command is required",
			}
		}
	}

	for name := range c.ServerContexts {
		if _, ok := c.Servers[name]; !ok {
			return &errors.ConfigError{
				Key:    "server_contexts." + name,
				Reason: "context declared for a server that is not configured",
			}
		}
	}

	if c.Concurrency < 0 {
		return &errors.ConfigError{Key: "concurrency", Reason: "must not be negative"}
	}

	return nil
}

// ServerConfigs converts the server entries into the mcp package's shape.
func (c *Config) ServerConfigs() map[string]mcp.ServerConfig {
	out := make(map[string]mcp.ServerConfig, len(c.Servers))
	for name, entry := range c.Servers {
		out[name] = mcp.ServerConfig{
			Name:    name,
			Command: entry.Command,
			Args:    entry.Args,
			Env:     entry.Env,
		}
	}
	return out
}

// ApplyContexts installs the configured per-server contexts into an
// executor context store.
func (c *Config) ApplyContexts(store *executor.ContextStore) {
	for name, entry := range c.ServerContexts {
		store.Configure(name, &executor.ServerContext{
			Type:         executor.ServerType(entry.Type),
			Config:       entry.Defaults,
			Capabilities: entry.Capabilities,
		})
	}
}
