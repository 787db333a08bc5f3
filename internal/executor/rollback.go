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
	"regexp"
)

// Verb-substitution patterns for the cooperative rollback heuristic. The
// probe reads current state before a destructive call; the paired tool
// re-creates or restores it afterwards. Brittle by nature; a server can
// ship a declarative rollback spec instead, but the surface here
// (rollbackError on failure, skip when no paired tool exists) is fixed.
var (
	probeSubst        = regexp.MustCompile(`(?i)delete|modify`)
	deletePairedSubst = regexp.MustCompile(`(?i)delete|remove`)
	modifyPairedSubst = regexp.MustCompile(`(?i)write|modify`)
)

// capturedState is the pre-call snapshot for one dangerous operation,
// held on the CallRecord until the call settles.
type capturedState struct {
	operation OperationType
	previous  interface{}
}

// captureState probes the backend for the current value before a DELETE or
// MODIFY call, substituting the destructive verb with "get" and passing
// mode=read. A probe failure is logged and disables rollback for this call;
// it never fails the call itself. Other operation types have nothing to
// capture.
func (e *Executor) captureState(ctx context.Context, serverName, toolName string, args map[string]interface{}) *capturedState {
	op := ClassifyOperation(toolName)
	if op != OpDelete && op != OpModify {
		return nil
	}

	probeTool := probeSubst.ReplaceAllString(toolName, "get")
	if probeTool == toolName {
		return nil
	}
	if _, err := e.catalog.Lookup(serverName, probeTool); err != nil {
		e.logger.Debug("no probe tool for state capture",
			"server", serverName, "tool", toolName, "probe", probeTool)
		return nil
	}

	probeArgs := make(map[string]interface{}, len(args)+1)
	for k, v := range args {
		probeArgs[k] = v
	}
	probeArgs["mode"] = "read"

	resp, err := e.call(ctx, serverName, probeTool, probeArgs)
	if err != nil {
		e.logger.Warn("state capture probe failed; rollback disabled for this call",
			"server", serverName, "tool", toolName, "probe", probeTool, "error", err)
		return nil
	}

	return &capturedState{operation: op, previous: resp}
}

// rollback issues the compensating call for a failed operation using the
// captured previous state: DELETE pairs with a create tool carrying the
// state as data; MODIFY pairs with a restore tool carrying it as content.
// It is attempted only when the paired tool exists in the catalog; the
// returned error is surfaced as the result's rollbackError.
func (e *Executor) rollback(ctx context.Context, serverName, toolName string, args map[string]interface{}, state *capturedState) error {
	var pairedTool, payloadKey string
	switch state.operation {
	case OpDelete:
		pairedTool = deletePairedSubst.ReplaceAllString(toolName, "create")
		payloadKey = "data"
	case OpModify:
		pairedTool = modifyPairedSubst.ReplaceAllString(toolName, "restore")
		payloadKey = "content"
	default:
		return nil
	}

	if pairedTool == toolName {
		return nil
	}
	if _, err := e.catalog.Lookup(serverName, pairedTool); err != nil {
		e.logger.Debug("no paired tool for rollback",
			"server", serverName, "tool", toolName, "paired", pairedTool)
		return nil
	}

	rollbackArgs := make(map[string]interface{}, len(args)+1)
	for k, v := range args {
		rollbackArgs[k] = v
	}
	rollbackArgs[payloadKey] = state.previous

	e.logger.Info("attempting rollback",
		"server", serverName, "tool", toolName, "paired", pairedTool)

	_, err := e.call(ctx, serverName, pairedTool, rollbackArgs)
	return err
}
