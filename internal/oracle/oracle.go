// Package oracle asks an LLM for a repaired version of a failing source file.
package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const requestTimeout = 60 * time.Second

// Client wraps the Anthropic API for repair proposals.
type Client struct {
	client *anthropic.Client
	model  string
}

// New creates a Client. The API key comes from configuration, never from
// incident content.
func New(apiKey, model string) *Client {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		client: &client,
		model:  model,
	}
}

// Request carries everything the oracle needs to propose a fix. Excerpt and
// Source must already be sanitized: they leave the host in the prompt.
type Request struct {
	Service  string
	Language string
	Excerpt  string
	Source   string
}

// ProposeFix asks for a repaired version of the source file and returns the
// full replacement content.
func (c *Client) ProposeFix(ctx context.Context, req *Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	prompt := buildPrompt(req)

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	fixed := CleanCode(text)
	if strings.TrimSpace(fixed) == "" {
		return "", fmt.Errorf("oracle returned empty fix for %s", req.Service)
	}
	return fixed, nil
}

func buildPrompt(req *Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You maintain the %s service. Fix the syntax or logic error in the source file below so it runs again.\n\n", req.Service)
	b.WriteString("Error log:\n")
	b.WriteString(req.Excerpt)
	b.WriteString("\n\nSource file:\n")
	b.WriteString(req.Source)
	b.WriteString("\n\nRequirements:\n")
	b.WriteString("1. Output the complete fixed file content, nothing else.\n")
	b.WriteString("2. No explanations and no markdown code fences.\n")
	return b.String()
}

// CleanCode strips markdown code fences that models add despite instructions.
func CleanCode(raw string) string {
	code := strings.TrimSpace(raw)
	if !strings.HasPrefix(code, "```") {
		return code
	}

	lines := strings.Split(code, "\n")
	// Drop the opening fence line (which may carry a language tag).
	lines = lines[1:]
	// Drop the closing fence if present.
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
