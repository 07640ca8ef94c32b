// Package llm consults a large language model as an opaque advisory
// oracle. The oracle is best-effort supplementary input: the rule-based
// path never depends on it, and every failure here degrades to "no extra
// suggestions".
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/advisql/advisql/internal/analyzer"
	"github.com/advisql/advisql/internal/optimizer"
)

// Request carries everything the oracle may consider: the query, its
// structural analysis, an execution plan document (may be empty), and a
// serialized schema context (may be empty).
type Request struct {
	Query         string
	Analysis      *analyzer.Analysis
	ExecutionPlan string
	SchemaContext string
}

// Oracle returns free-form suggestions for a query, or an error when the
// model is unreachable or returns garbage.
type Oracle interface {
	Suggest(ctx context.Context, req Request) ([]optimizer.Suggestion, error)
}

// ChatClient talks to an OpenAI-compatible chat-completions endpoint.
type ChatClient struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

// NewChatClient creates an oracle client. baseURL is the API root, e.g.
// https://api.openai.com/v1.
func NewChatClient(baseURL, model, apiKey string) *ChatClient {
	return &ChatClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

const systemPrompt = `You are a database performance advisor. Given a SQL query, its
structural analysis, an execution plan, and the database schema, respond with a JSON
array of suggestions. Each element must have the fields: type (one of query_rewrite,
index, partition, view, sharding), description, impact (high, medium, or low),
implementation_steps (array of strings), and estimated_improvement. Respond with the
JSON array only, no prose.`

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Suggest asks the model for additional suggestions.
func (c *ChatClient) Suggest(ctx context.Context, req Request) ([]optimizer.Suggestion, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, payload)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("failed to decode oracle response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("oracle returned no choices")
	}

	return parseSuggestions(chat.Choices[0].Message.Content)
}

func buildPrompt(req Request) (string, error) {
	analysis, err := json.Marshal(req.Analysis)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Query:\n%s\n\nStructural analysis:\n%s\n", req.Query, analysis)
	if req.ExecutionPlan != "" {
		fmt.Fprintf(&b, "\nExecution plan:\n%s\n", req.ExecutionPlan)
	}
	if req.SchemaContext != "" {
		fmt.Fprintf(&b, "\nSchema:\n%s\n", req.SchemaContext)
	}
	return b.String(), nil
}

// parseSuggestions decodes the model's answer, tolerating markdown code
// fences around the JSON.
func parseSuggestions(content string) ([]optimizer.Suggestion, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var suggestions []optimizer.Suggestion
	if err := json.Unmarshal([]byte(content), &suggestions); err != nil {
		return nil, fmt.Errorf("oracle returned malformed suggestions: %w", err)
	}
	return suggestions, nil
}
