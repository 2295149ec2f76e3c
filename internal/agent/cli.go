package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mjankowski/autodev/internal/faults"
	"github.com/mjankowski/autodev/internal/types"
)

const (
	// maxOutputLines caps captured agent output to prevent memory
	// exhaustion from long-running agents
	maxOutputLines = 10000

	// summaryLines is how many trailing output lines form the result summary
	summaryLines = 40
)

// CLI invokes a coding agent as a subprocess in the ticket's worktree.
// The prompt is passed on stdin; stdout is captured (capped) and the final
// lines become the result summary.
type CLI struct {
	command string
	args    []string
	timeout time.Duration
}

// NewCLI creates a subprocess-backed agent.
// A zero timeout disables the per-invocation deadline.
func NewCLI(command string, args []string, timeout time.Duration) *CLI {
	return &CLI{command: command, args: args, timeout: timeout}
}

// Execute runs the agent in task.WorktreePath and reports its outcome
func (c *CLI) Execute(ctx context.Context, task *types.AgentTask) (*types.AgentResult, error) {
	if _, err := exec.LookPath(c.command); err != nil {
		return nil, faults.Fatal("agent.execute", fmt.Errorf("agent command %q not found: %w", c.command, err))
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, c.command, c.args...)
	cmd.Dir = task.WorktreePath
	cmd.Stdin = strings.NewReader(BuildPrompt(task))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, faults.Transient("agent.execute", fmt.Errorf("failed to create stdout pipe: %w", err))
	}
	cmd.Stderr = cmd.Stdout // interleave, agents log progress on both

	if err := cmd.Start(); err != nil {
		return nil, faults.Transient("agent.execute", fmt.Errorf("failed to start agent: %w", err))
	}

	var lines []string
	truncated := false
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(lines) < maxOutputLines {
			lines = append(lines, scanner.Text())
		} else {
			truncated = true
		}
	}

	err = cmd.Wait()
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			// The agent consumed its time budget; retrying in the same pass
			// would double-spend, so this fails the ticket.
			return nil, faults.TicketScoped("agent.execute",
				fmt.Errorf("agent timed out after %v", c.timeout))
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The agent ran and reported failure
			return &types.AgentResult{
				Success: false,
				Summary: summarize(lines, truncated),
			}, nil
		}
		return nil, faults.Transient("agent.execute", fmt.Errorf("agent did not run: %w", err))
	}

	return &types.AgentResult{
		Success:      true,
		Summary:      summarize(lines, truncated),
		ChangedFiles: nil, // derived from the worktree by the caller
	}, nil
}

// summarize keeps the trailing output lines as the invocation summary
func summarize(lines []string, truncated bool) string {
	start := 0
	if len(lines) > summaryLines {
		start = len(lines) - summaryLines
	}
	summary := strings.Join(lines[start:], "\n")
	if truncated {
		summary = "(output truncated)\n" + summary
	}
	return strings.TrimSpace(summary)
}

// BuildPrompt renders the work order handed to the agent on stdin
func BuildPrompt(task *types.AgentTask) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# Ticket %s: %s\n\n", task.Ticket.ID, task.Ticket.Title))
	if task.Ticket.Description != "" {
		b.WriteString("## Description\n\n")
		b.WriteString(task.Ticket.Description)
		b.WriteString("\n\n")
	}

	if len(task.Comments) > 0 {
		b.WriteString(fmt.Sprintf("## Review feedback (round %d)\n\n", task.Ticket.ReviewRound))
		b.WriteString("Address every comment below. Earlier comments that are still\n")
		b.WriteString("unresolved are included alongside the newest batch.\n\n")
		for _, c := range task.Comments {
			if c.Path != "" {
				b.WriteString(fmt.Sprintf("- %s (%s:%d): %s\n", c.Author, c.Path, c.Line, c.Body))
			} else {
				b.WriteString(fmt.Sprintf("- %s: %s\n", c.Author, c.Body))
			}
		}
		b.WriteString("\n")
	}

	if task.Instructions != "" {
		b.WriteString("## Instructions\n\n")
		b.WriteString(task.Instructions)
		b.WriteString("\n\n")
	}

	b.WriteString("Work in the current directory. Commit nothing; leave changes in the tree.\n")
	b.WriteString("Exit non-zero if you could not complete the work.\n")

	return b.String()
}
