// Package approval provides the user-confirmation gate for dangerous tool
// calls.
package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// ExecutionMode determines how tool-call confirmations are handled.
type ExecutionMode string

const (
	// ModeInteractive prompts the user for confirmation
	ModeInteractive ExecutionMode = "interactive"

	// ModeUnattended only allows auto-approved tools
	ModeUnattended ExecutionMode = "unattended"
)

// Approver handles confirmation decisions for dangerous tool calls.
type Approver interface {
	// Approve returns true if the tool call should proceed.
	// serverName and toolName identify the call; message is the
	// confirmation message computed by the danger classification pass;
	// args are the arguments about to be sent to the backend.
	Approve(ctx context.Context, serverName, toolName, message string, args map[string]interface{}) (bool, error)
}

// Func adapts a plain function to the Approver interface.
type Func func(ctx context.Context, serverName, toolName, message string, args map[string]interface{}) (bool, error)

// Approve implements Approver.
func (f Func) Approve(ctx context.Context, serverName, toolName, message string, args map[string]interface{}) (bool, error) {
	return f(ctx, serverName, toolName, message, args)
}

// CLIApprover prompts the user for confirmation via command line.
type CLIApprover struct {
	reader        io.Reader
	writer        io.Writer
	alwaysApprove map[string]bool // Calls the user said "always" to this run
}

// NewCLIApprover creates a new CLI-based approver.
func NewCLIApprover() *CLIApprover {
	return &CLIApprover{
		reader:        os.Stdin,
		writer:        os.Stdout,
		alwaysApprove: make(map[string]bool),
	}
}

// NewCLIApproverWithIO creates a CLI approver with custom IO (for testing).
func NewCLIApproverWithIO(reader io.Reader, writer io.Writer) *CLIApprover {
	return &CLIApprover{
		reader:        reader,
		writer:        writer,
		alwaysApprove: make(map[string]bool),
	}
}

// Approve prompts the user for confirmation.
// Returns true if confirmed, false if denied.
func (c *CLIApprover) Approve(ctx context.Context, serverName, toolName, message string, args map[string]interface{}) (bool, error) {
	key := serverName + "/" + toolName

	// Check if user previously said "always" for this call
	if c.alwaysApprove[key] {
		return true, nil
	}

	// Display confirmation prompt
	fmt.Fprintf(c.writer, "\n")
	fmt.Fprintf(c.writer, "Confirmation required:\n")
	fmt.Fprintf(c.writer, "  Tool: %s (server %s)\n", toolName, serverName)
	if message != "" {
		fmt.Fprintf(c.writer, "  %s\n", message)
	}
	if len(args) > 0 {
		fmt.Fprintf(c.writer, "  Arguments:\n")
		for k, v := range args {
			fmt.Fprintf(c.writer, "    %s: %v\n", k, v)
		}
	}
	fmt.Fprintf(c.writer, "\n")
	fmt.Fprintf(c.writer, "Proceed? [y/N/always]: ")

	// Read user response
	scanner := bufio.NewScanner(c.reader)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return false, fmt.Errorf("failed to read input: %w", err)
		}
		// EOF or no input - default to deny
		return false, nil
	}

	response := strings.ToLower(strings.TrimSpace(scanner.Text()))

	switch response {
	case "y", "yes":
		return true, nil
	case "always":
		// Remember this approval for the rest of the run
		c.alwaysApprove[key] = true
		return true, nil
	default:
		// "n", "no", or empty/unknown input - deny
		return false, nil
	}
}

// UnattendedApprover only allows auto-approved tools.
type UnattendedApprover struct {
	autoApprovedTools map[string]bool
}

// NewUnattendedApprover creates an approver for unattended mode.
// It accepts a set of "server/tool" keys that are auto-approved.
func NewUnattendedApprover(autoApprovedTools map[string]bool) *UnattendedApprover {
	return &UnattendedApprover{
		autoApprovedTools: autoApprovedTools,
	}
}

// Approve returns true only if the call is in the auto-approved list.
func (u *UnattendedApprover) Approve(ctx context.Context, serverName, toolName, message string, args map[string]interface{}) (bool, error) {
	if u.autoApprovedTools[serverName+"/"+toolName] {
		return true, nil
	}
	return false, fmt.Errorf("tool %s on %s requires confirmation but running in unattended mode", toolName, serverName)
}
