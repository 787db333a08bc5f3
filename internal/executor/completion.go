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

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tombee/switchboard/internal/mcp"
	"github.com/tombee/switchboard/pkg/workflow/schema"
)

// MissingField describes one absent required argument for the completion
// prompt: its declared type, any enum constraint, and current-argument
// values whose names look related (e.g. "repo_name" when "repo" is
// missing).
type MissingField struct {
	Name        string                 `json:"name"`
	Type        string                 `json:"type,omitempty"`
	Description string                 `json:"description,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
	Related     map[string]interface{} `json:"related,omitempty"`
}

// CompletionPrompt is the structured request handed to the Completer.
type CompletionPrompt struct {
	ToolName    string                 `json:"toolName"`
	Description string                 `json:"description,omitempty"`
	Arguments   map[string]interface{} `json:"arguments"`
	Missing     []MissingField         `json:"missingFields"`
	Attempt     int                    `json:"attempt"`
}

// CompletionResult is the Completer's reply: values it inferred, and
// whether the user should be prompted instead.
type CompletionResult struct {
	ProvidedValues   map[string]interface{} `json:"providedValues"`
	ShouldPromptUser bool                   `json:"shouldPromptUser"`
	UserPrompt       string                 `json:"userPrompt,omitempty"`
	Reasoning        string                 `json:"reasoning,omitempty"`
}

// Completer fills missing tool arguments. The executor depends only on
// this interface, never on a concrete LLM provider; it is off the critical
// path whenever LLMEnabled is false.
type Completer interface {
	Complete(ctx context.Context, prompt CompletionPrompt) (CompletionResult, error)
}

// NopCompleter always defers to the user. It is the Completer for hubs
// that run with completion disabled.
type NopCompleter struct{}

// Complete implements Completer by asking for user input.
func (NopCompleter) Complete(ctx context.Context, prompt CompletionPrompt) (CompletionResult, error) {
	return CompletionResult{
		ShouldPromptUser: true,
		UserPrompt:       FallbackPrompt(prompt.Missing),
	}, nil
}

// StaticCompleter returns canned values; used in tests.
type StaticCompleter struct {
	Values map[string]interface{}
	Err    error
	Calls  int
}

// Complete implements Completer with the canned result.
func (s *StaticCompleter) Complete(ctx context.Context, prompt CompletionPrompt) (CompletionResult, error) {
	s.Calls++
	if s.Err != nil {
		return CompletionResult{}, s.Err
	}
	return CompletionResult{ProvidedValues: s.Values}, nil
}

// completionReplySchema is the JSON shape the LLM is asked to produce.
var completionReplySchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"providedValues":   map[string]interface{}{"type": "object"},
		"shouldPromptUser": map[string]interface{}{"type": "boolean"},
		"userPrompt":       map[string]interface{}{"type": "string"},
		"reasoning":        map[string]interface{}{"type": "string"},
	},
	"required": []interface{}{"providedValues", "shouldPromptUser"},
}

// PromptText renders a CompletionPrompt as the text sent to an LLM-backed
// Completer, with the reply-schema instructions escalating by attempt.
func PromptText(p CompletionPrompt) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "A tool call is missing required arguments.\n\n")
	fmt.Fprintf(&sb, "Tool: %s\n", p.ToolName)
	if p.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", p.Description)
	}

	if len(p.Arguments) > 0 {
		current, _ := json.Marshal(p.Arguments)
		fmt.Fprintf(&sb, "Current arguments: %s\n", current)
	}

	sb.WriteString("\nMissing fields:\n")
	for _, f := range p.Missing {
		fmt.Fprintf(&sb, "  - %s", f.Name)
		if f.Type != "" {
			fmt.Fprintf(&sb, " (%s)", f.Type)
		}
		if f.Description != "" {
			fmt.Fprintf(&sb, ": %s", f.Description)
		}
		if len(f.Enum) > 0 {
			fmt.Fprintf(&sb, " [one of: %s]", strings.Join(f.Enum, ", "))
		}
		if len(f.Related) > 0 {
			related, _ := json.Marshal(f.Related)
			fmt.Fprintf(&sb, " related: %s", related)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nInfer values only when the current arguments make them unambiguous; otherwise set shouldPromptUser.")

	return schema.BuildPromptWithSchema(sb.String(), completionReplySchema, p.Attempt-1)
}

// ParseCompletion decodes an LLM reply into a CompletionResult. Extraction
// (markdown fences, surrounding prose) is handled by schema.ExtractJSON,
// the same path replies to schema-instructed prompts go through.
func ParseCompletion(reply string) (CompletionResult, error) {
	data, err := schema.ExtractJSON(reply)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("executor: completion reply is not valid JSON: %w", err)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("executor: re-encode completion reply: %w", err)
	}

	var result CompletionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return CompletionResult{}, fmt.Errorf("executor: completion reply does not match the expected shape: %w", err)
	}
	return result, nil
}

// FallbackPrompt is the deterministic user prompt used when the Completer
// errors or its reply cannot be parsed. It never retries the LLM.
func FallbackPrompt(missing []MissingField) string {
	var sb strings.Builder
	sb.WriteString("Please provide values for the following required fields:\n")
	for _, f := range missing {
		fmt.Fprintf(&sb, "  - %s", f.Name)
		if f.Description != "" {
			fmt.Fprintf(&sb, ": %s", f.Description)
		}
		if len(f.Enum) > 0 {
			fmt.Fprintf(&sb, " (one of: %s)", strings.Join(f.Enum, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// missingFieldDetails builds the per-field prompt entries from the
// descriptor's schema, attaching current-argument values whose names share
// a token with the missing field.
func missingFieldDetails(desc *mcp.ToolDescriptor, args map[string]interface{}, missing []string) []MissingField {
	out := make([]MissingField, 0, len(missing))
	for _, name := range missing {
		field := MissingField{Name: name}
		if prop, ok := desc.InputSchema.Properties[name]; ok {
			field.Type = prop.Type
			field.Description = prop.Description
			field.Enum = prop.Enum
		}

		lowered := strings.ToLower(name)
		for argName, argVal := range args {
			arg := strings.ToLower(argName)
			if strings.Contains(arg, lowered) || strings.Contains(lowered, arg) {
				if field.Related == nil {
					field.Related = make(map[string]interface{})
				}
				field.Related[argName] = argVal
			}
		}

		out = append(out, field)
	}
	return out
}
