package forge

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/mjankowski/autodev/internal/types"
)

// Describer drafts merge request titles and bodies.
// With a client it asks the model; without one it falls back to a
// deterministic template, so description drafting never blocks a push.
type Describer struct {
	client *anthropic.Client
	model  string
}

// NewDescriber creates a Describer. A nil client selects the template path.
func NewDescriber(client *anthropic.Client, model string) *Describer {
	return &Describer{client: client, model: model}
}

// Describe produces a merge request title and body for a ticket's result
func (d *Describer) Describe(ctx context.Context, ticket *types.Ticket, result *types.AgentResult) (title, body string) {
	title = fmt.Sprintf("%s: %s", ticket.ID, ticket.Title)

	if d.client == nil {
		return title, d.templateBody(ticket, result)
	}

	drafted, err := d.draft(ctx, ticket, result)
	if err != nil {
		// Drafting is best effort; the template body is always acceptable
		return title, d.templateBody(ticket, result)
	}
	return title, drafted
}

func (d *Describer) templateBody(ticket *types.Ticket, result *types.AgentResult) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Automated change for ticket %s.\n\n", ticket.ID))
	if ticket.Description != "" {
		b.WriteString(ticket.Description)
		b.WriteString("\n\n")
	}
	if result != nil && result.Summary != "" {
		b.WriteString("## Agent summary\n\n")
		b.WriteString(result.Summary)
		b.WriteString("\n")
	}
	if result != nil && len(result.ChangedFiles) > 0 {
		b.WriteString("\n## Changed files\n\n")
		for _, f := range result.ChangedFiles {
			b.WriteString("- " + f + "\n")
		}
	}
	return b.String()
}

func (d *Describer) draft(ctx context.Context, ticket *types.Ticket, result *types.AgentResult) (string, error) {
	prompt := d.buildPrompt(ticket, result)

	resp, err := d.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(d.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to draft description: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty description response")
	}
	return text, nil
}

func (d *Describer) buildPrompt(ticket *types.Ticket, result *types.AgentResult) string {
	var b strings.Builder

	b.WriteString("Write a merge request description for an automated code change.\n\n")
	b.WriteString(fmt.Sprintf("**Ticket**: %s — %s\n", ticket.ID, ticket.Title))
	if ticket.Description != "" {
		b.WriteString(fmt.Sprintf("**Details**: %s\n", ticket.Description))
	}
	if result != nil && result.Summary != "" {
		b.WriteString("\n## Agent output (tail)\n\n")
		b.WriteString(result.Summary)
		b.WriteString("\n")
	}
	if result != nil && len(result.ChangedFiles) > 0 {
		b.WriteString("\n## Changed files\n\n")
		for _, f := range result.ChangedFiles {
			b.WriteString("- " + f + "\n")
		}
	}

	b.WriteString("\nGuidelines:\n")
	b.WriteString("- Markdown body only, no title line\n")
	b.WriteString("- Say what changed and why, for a human reviewer\n")
	b.WriteString("- Keep it under 200 words\n")

	return b.String()
}
