package forge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mjankowski/autodev/internal/types"
)

func TestDescribeTemplateFallback(t *testing.T) {
	d := NewDescriber(nil, "")
	ticket := &types.Ticket{
		ID:          "PROJ-3",
		Title:       "Add rate limiting",
		Description: "Protect the API from bursts.",
	}
	result := &types.AgentResult{
		Success:      true,
		Summary:      "Added a token bucket limiter.",
		ChangedFiles: []string{"internal/api/limit.go"},
	}

	title, body := d.Describe(context.Background(), ticket, result)

	assert.Equal(t, "PROJ-3: Add rate limiting", title)
	assert.Contains(t, body, "PROJ-3")
	assert.Contains(t, body, "Protect the API from bursts.")
	assert.Contains(t, body, "Added a token bucket limiter.")
	assert.Contains(t, body, "internal/api/limit.go")
}

func TestDescribeWithoutResult(t *testing.T) {
	d := NewDescriber(nil, "")
	ticket := &types.Ticket{ID: "PROJ-4", Title: "Fix flaky test"}

	title, body := d.Describe(context.Background(), ticket, nil)

	assert.Equal(t, "PROJ-4: Fix flaky test", title)
	assert.Contains(t, body, "PROJ-4")
	assert.NotContains(t, body, "## Agent summary")
}

func TestBuildPromptIncludesGuidelines(t *testing.T) {
	d := NewDescriber(nil, "claude-sonnet-4-5")
	ticket := &types.Ticket{ID: "PROJ-5", Title: "Refactor config"}

	prompt := d.buildPrompt(ticket, &types.AgentResult{Summary: "split the loader"})

	assert.Contains(t, prompt, "PROJ-5")
	assert.Contains(t, prompt, "split the loader")
	assert.Contains(t, prompt, "Markdown body only")
}
