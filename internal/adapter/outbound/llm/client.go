// Package llm implements the outbound client for the LLM endpoint used
// by the metadata auditor.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// completionPath is the LLM endpoint path on the database abstractor.
const completionPath = "/api/getLLMResponseV2"

// requestTimeout bounds a single LLM call. Metadata audits run
// detached, so a slow model never holds a request open.
const requestTimeout = 60 * time.Second

// ErrEmptyResponse is returned when the endpoint yields no choices.
var ErrEmptyResponse = errors.New("llm returned no choices")

// Client calls the LLM endpoint. The Authorization header carries the
// raw token, no scheme prefix.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an LLM client.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// llmPayload carries the fixed sampling parameters of the metadata
// audit calls.
type llmPayload struct {
	Temperature      float64      `json:"temperature"`
	TopP             float64      `json:"top_p"`
	MaxTokens        int          `json:"max_tokens"`
	FrequencyPenalty float64      `json:"frequency_penalty"`
	PresencePenalty  float64      `json:"presence_penalty"`
	Messages         []llmMessage `json:"messages"`
}

type llmMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type llmRequest struct {
	LLMPayload llmPayload `json:"llmPayload"`
}

type llmResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends the system prompt and returns the first choice's
// message content.
func (c *Client) Complete(ctx context.Context, systemPrompt string) (string, error) {
	body, err := json.Marshal(llmRequest{
		LLMPayload: llmPayload{
			Temperature:      0.1,
			TopP:             0.9,
			MaxTokens:        10000,
			FrequencyPenalty: 0,
			PresencePenalty:  0.6,
			Messages:         []llmMessage{{Role: "system", Content: systemPrompt}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("llm endpoint returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm call: %w", err)
	}
	var decoded llmResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("llm call: decode: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return decoded.Choices[0].Message.Content, nil
}
