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

package tools

import (
	"encoding/json"
	"strings"
)

// ToolResult is one tool call's decoded output: the structured value
// handed to composed-tool references, plus the raw text it came from.
type ToolResult struct {
	// Value is the structured output (decoded JSON when the backend
	// returned it, the raw string otherwise).
	Value interface{}

	// Text is the concatenated text content as returned by the backend.
	Text string
}

// DecodeText interprets a backend's text payload. Tool servers commonly
// return JSON in a text content item; when the payload parses as a JSON
// object or array it is decoded so later steps can reference into it by
// path, otherwise the raw string is kept.
func DecodeText(text string) ToolResult {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var decoded interface{}
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return ToolResult{Value: decoded, Text: text}
		}
	}
	return ToolResult{Value: text, Text: text}
}
