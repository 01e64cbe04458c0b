// Package upstream forwards validated, normalised requests to the
// downstream OpenAI-compatible provider.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"modelrelay/internal/apierr"
	"modelrelay/internal/models"
)

const userAgent = "modelrelay/0.1"

// Config locates the provider endpoint.
type Config struct {
	BaseURL string
	APIKey  string
}

// Client issues chat requests to the provider.
type Client struct {
	apiKey  string
	chatURL string
	client  *http.Client
}

// New constructs an upstream client.
func New(cfg Config, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		apiKey:  cfg.APIKey,
		chatURL: baseURL + "/chat/completions",
		client:  client,
	}
}

// WebSearchOptions is the provider's web-search knob, attached when the
// caller selected the online model modifier.
type WebSearchOptions struct {
	SearchContextSize string `json:"search_context_size,omitempty"`
}

// ChatRequest is the wire payload sent to the provider.
type ChatRequest struct {
	Model            string            `json:"model"`
	Messages         []models.Message  `json:"messages"`
	MaxTokens        *int              `json:"max_tokens,omitempty"`
	Temperature      *float64          `json:"temperature,omitempty"`
	TopP             *float64          `json:"top_p,omitempty"`
	WebSearchOptions *WebSearchOptions `json:"web_search_options,omitempty"`
}

// ChatResponse is the provider's chat completion payload.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion choice in the provider response.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Message is the assistant message inside a choice.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the provider's token accounting block.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Chat posts the request and decodes the completion. Provider failures come
// back as typed failures so the error boundary can translate them.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, apierr.API(http.StatusBadGateway, fmt.Sprintf("provider request failed: %v", err))
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return nil, parseProviderError(httpResp)
	}

	var resp ChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, apierr.API(http.StatusBadGateway, fmt.Sprintf("decode provider response: %v", err))
	}
	if len(resp.Choices) == 0 {
		return nil, apierr.API(http.StatusBadGateway, "provider response did not include choices")
	}
	return &resp, nil
}

type providerErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func parseProviderError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apierr.API(resp.StatusCode, fmt.Sprintf("provider returned %s and the body could not be read: %v", resp.Status, err))
	}

	message := strings.TrimSpace(string(body))
	var parsed providerErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apierr.Authentication(message)
	case http.StatusTooManyRequests:
		return apierr.RateLimit(message)
	default:
		return apierr.API(resp.StatusCode, message)
	}
}
