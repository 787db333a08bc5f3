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

package executor

import "github.com/tombee/switchboard/internal/mcp"

// ConfirmationConfig narrows which dangerous calls need the user's
// confirmation. Empty lists mean "not specified"; when nothing is specified
// at all, every dangerous tool requires confirmation.
type ConfirmationConfig struct {
	// DangerLevels lists computed danger levels that always require
	// confirmation.
	DangerLevels []mcp.DangerLevel `yaml:"danger_levels,omitempty" json:"dangerLevels,omitempty"`

	// Tools lists tool names that always require confirmation.
	Tools []string `yaml:"tools,omitempty" json:"tools,omitempty"`

	// Patterns lists regular expressions matched against the tool name.
	Patterns []string `yaml:"patterns,omitempty" json:"patterns,omitempty"`
}

// SafetyConfig tunes the danger classification pass.
type SafetyConfig struct {
	// DangerousFields marks required-argument names whose presence makes a
	// tool dangerous (e.g. "path", "repo"). Defaults to the union of the
	// operation-category keywords.
	DangerousFields []string `yaml:"dangerous_fields,omitempty" json:"dangerousFields,omitempty"`

	// SensitiveFields are argument names redacted from logs and error
	// detail. Redaction never affects what is sent to the backend.
	SensitiveFields []string `yaml:"sensitive_fields,omitempty" json:"sensitiveFields,omitempty"`

	// AutoFillDefaults enables default injection from the server context.
	AutoFillDefaults bool `yaml:"auto_fill_defaults" json:"autoFillDefaults"`

	// DangerousKeywords extends the built-in keyword set that marks a tool
	// name as dangerous.
	DangerousKeywords []string `yaml:"dangerous_keywords,omitempty" json:"dangerousKeywords,omitempty"`

	// ConfirmationRequired narrows which dangerous calls prompt the user.
	ConfirmationRequired *ConfirmationConfig `yaml:"confirmation_required,omitempty" json:"confirmationRequired,omitempty"`
}

// Config is the Tool Executor's configuration, consumed from the external
// configuration loader.
type Config struct {
	// MaxRetries caps both LLM completion attempts and dispatch retries.
	MaxRetries int `yaml:"max_retries" json:"maxRetries"`

	// LLMEnabled turns the LLM-assisted completion loop on or off.
	// Production deployments typically disable it.
	LLMEnabled bool `yaml:"llm_enabled" json:"llmEnabled"`

	// Safety tunes danger classification and confirmation.
	Safety SafetyConfig `yaml:"safety" json:"safetyConfig"`
}

// DefaultConfig returns the executor defaults: three retries, completion
// enabled, auto-fill on.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		LLMEnabled: true,
		Safety: SafetyConfig{
			AutoFillDefaults: true,
		},
	}
}
