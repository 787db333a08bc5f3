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
	"fmt"
	"regexp"
	"strings"

	"github.com/tombee/switchboard/internal/mcp"
)

// OperationType categorizes what a tool call does to backend state, derived
// from its name. It selects the state-capture and rollback strategy.
type OperationType string

const (
	OpDelete  OperationType = "DELETE"
	OpWrite   OperationType = "WRITE"
	OpModify  OperationType = "MODIFY"
	OpExecute OperationType = "EXECUTE"
	OpFormat  OperationType = "FORMAT"
)

// Name patterns per operation category. Classification tries them in the
// fixed order DELETE, WRITE, MODIFY, EXECUTE, FORMAT and takes the first
// match; a name matching none is treated as MODIFY.
var (
	deletePattern  = regexp.MustCompile(`(?i)delete|remove|drop`)
	writePattern   = regexp.MustCompile(`(?i)write|create|push`)
	modifyPattern  = regexp.MustCompile(`(?i)modify|update|alter`)
	executePattern = regexp.MustCompile(`(?i)exec|execute|run`)
	formatPattern  = regexp.MustCompile(`(?i)format|clean|clear`)
)

// baseDangerousKeywords mark a tool name as dangerous when present as a
// case-insensitive substring. Config-supplied extras are unioned in.
var baseDangerousKeywords = []string{
	"delete", "remove", "drop", "truncate", "push", "write",
	"modify", "update", "alter", "exec", "execute", "format",
}

// ClassifyOperation maps a tool name to its operation category.
func ClassifyOperation(toolName string) OperationType {
	switch {
	case deletePattern.MatchString(toolName):
		return OpDelete
	case writePattern.MatchString(toolName):
		return OpWrite
	case modifyPattern.MatchString(toolName):
		return OpModify
	case executePattern.MatchString(toolName):
		return OpExecute
	case formatPattern.MatchString(toolName):
		return OpFormat
	default:
		return OpModify
	}
}

// IsDangerous reports whether a descriptor should be treated as dangerous:
// an explicit safety flag, an explicit non-none danger level, a dangerous
// keyword in the name, or a required field listed in the safety config's
// dangerous-field set.
func IsDangerous(desc *mcp.ToolDescriptor, cfg *SafetyConfig) bool {
	if desc.Safety != nil {
		if desc.Safety.IsDangerous != nil && *desc.Safety.IsDangerous {
			return true
		}
		if desc.Safety.DangerLevel != "" && desc.Safety.DangerLevel != mcp.DangerNone {
			return true
		}
	}

	lowered := strings.ToLower(desc.Name)
	keywords := baseDangerousKeywords
	if cfg != nil && len(cfg.DangerousKeywords) > 0 {
		keywords = append(append([]string{}, baseDangerousKeywords...), cfg.DangerousKeywords...)
	}
	for _, kw := range keywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}

	dangerousFields := baseDangerousKeywords
	if cfg != nil && len(cfg.DangerousFields) > 0 {
		dangerousFields = cfg.DangerousFields
	}
	fieldSet := make(map[string]bool, len(dangerousFields))
	for _, f := range dangerousFields {
		fieldSet[strings.ToLower(f)] = true
	}
	for _, req := range desc.InputSchema.Required {
		if fieldSet[strings.ToLower(req)] {
			return true
		}
	}

	return false
}

// DangerLevel computes the descriptor's effective danger level: the
// explicit one if set, otherwise derived from the name's operation
// category.
func DangerLevel(desc *mcp.ToolDescriptor, cfg *SafetyConfig) mcp.DangerLevel {
	if desc.Safety != nil && desc.Safety.DangerLevel != "" {
		return desc.Safety.DangerLevel
	}

	if !IsDangerous(desc, cfg) {
		return mcp.DangerNone
	}

	switch {
	case deletePattern.MatchString(desc.Name):
		return mcp.DangerHigh
	case modifyPattern.MatchString(desc.Name), executePattern.MatchString(desc.Name):
		return mcp.DangerMedium
	default:
		return mcp.DangerLow
	}
}

// RequiresConfirmation decides, in priority order, whether the call must
// pass the confirmation gate: the descriptor's explicit flag; the computed
// danger level against the config's level list; name pattern matches; the
// config's explicit tool list; and finally, when no confirmation config
// narrows the set, every dangerous tool.
func RequiresConfirmation(desc *mcp.ToolDescriptor, cfg *SafetyConfig) bool {
	if desc.Safety != nil && desc.Safety.RequiresConfirmation != nil {
		return *desc.Safety.RequiresConfirmation
	}

	var conf *ConfirmationConfig
	if cfg != nil {
		conf = cfg.ConfirmationRequired
	}

	if conf != nil {
		level := DangerLevel(desc, cfg)
		for _, l := range conf.DangerLevels {
			if l == level {
				return true
			}
		}
		for _, p := range conf.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				continue
			}
			if re.MatchString(desc.Name) {
				return true
			}
		}
		for _, name := range conf.Tools {
			if name == desc.Name {
				return true
			}
		}
		if len(conf.DangerLevels) > 0 || len(conf.Patterns) > 0 || len(conf.Tools) > 0 {
			return false
		}
	}

	return IsDangerous(desc, cfg)
}

// ConfirmationMessage returns the descriptor's explicit confirmation
// message, or a generated one naming the danger.
func ConfirmationMessage(desc *mcp.ToolDescriptor, cfg *SafetyConfig) string {
	if desc.Safety != nil && desc.Safety.ConfirmationMessage != "" {
		return desc.Safety.ConfirmationMessage
	}
	if desc.Safety != nil && desc.Safety.DangerDescription != "" {
		return desc.Safety.DangerDescription
	}
	return fmt.Sprintf("%q is classified as a %s-danger %s operation",
		desc.Name, DangerLevel(desc, cfg), ClassifyOperation(desc.Name))
}
