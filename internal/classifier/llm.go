package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nlstep/nlstep/pkg/schema"
)

const (
	defaultSemanticTimeout = 5 * time.Second
	semanticRetries        = 1
)

const semanticPrompt = "You classify test steps for a QA automation system. " +
	"Answer with exactly one word: 'api' if the step describes a direct HTTP/API call, " +
	"or 'browser' if it describes interacting with a web page through a browser."

// SemanticConfig configures the external semantic classifier. It speaks the
// OpenAI-compatible chat completions protocol.
type SemanticConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// SemanticClassifier layers a chat-completion model over the rules
// classifier. The rules run first; only steps they cannot decide are sent
// out. Every remote failure, timeout, or unparseable answer falls back to
// the deterministic scoring, so classification never blocks a run.
type SemanticClassifier struct {
	rules      *RulesClassifier
	config     SemanticConfig
	httpClient *http.Client
}

// NewSemanticClassifier creates a semantic classifier over the given rules.
func NewSemanticClassifier(rules *RulesClassifier, cfg SemanticConfig) *SemanticClassifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSemanticTimeout
	}
	return &SemanticClassifier{
		rules:      rules,
		config:     cfg,
		httpClient: &http.Client{},
	}
}

// Classify runs the rule layers first and consults the model only for
// ambiguous steps.
func (c *SemanticClassifier) Classify(ctx context.Context, stepText string, mode schema.RoutingMode) (schema.ActionType, error) {
	if at, ok := c.rules.decide(stepText, mode); ok {
		return at, nil
	}

	for attempt := 0; attempt <= semanticRetries; attempt++ {
		at, err := c.ask(ctx, stepText)
		if err == nil {
			return at, nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	return c.rules.score(stepText), nil
}

// (OpenAI-compatible)
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
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

func (c *SemanticClassifier) ask(ctx context.Context, stepText string) (schema.ActionType, error) {
	if c.config.BaseURL == "" {
		return "", schema.NewError(schema.ErrCodeClassifier, "semantic classifier not configured")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: semanticPrompt},
			{Role: "user", Content: stepText},
		},
		Temperature: 0,
		MaxTokens:   4,
	})
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeClassifier, "marshal request: %v", err).WithCause(err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeClassifier, "build request: %v", err).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeClassifier, "classifier request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", schema.NewErrorf(schema.ErrCodeClassifier, "classifier returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeClassifier, "read response: %v", err).WithCause(err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || len(parsed.Choices) == 0 {
		return "", schema.NewError(schema.ErrCodeClassifier, "malformed classifier response")
	}

	return parseAnswer(parsed.Choices[0].Message.Content)
}

// parseAnswer accepts only the two expected words, tolerating case and
// punctuation noise around them.
func parseAnswer(content string) (schema.ActionType, error) {
	answer := strings.ToLower(strings.TrimSpace(content))
	answer = strings.Trim(answer, `."'`)
	switch answer {
	case "api":
		return schema.ActionAPI, nil
	case "browser":
		return schema.ActionBrowser, nil
	}
	return "", schema.NewError(schema.ErrCodeClassifier,
		fmt.Sprintf("unexpected classifier answer %q", content))
}

var _ Classifier = (*SemanticClassifier)(nil)
