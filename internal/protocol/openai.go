package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"modelrelay/internal/models"
	"modelrelay/internal/upstream"
)

var (
	errEmptyModel     = errors.New("model must be provided")
	errEmptyMessages  = errors.New("at least one message is required")
	errInvalidRole    = errors.New("invalid role")
	errInvalidContent = errors.New("invalid message content")
)

var openAIRoles = map[string]struct{}{
	"system":    {},
	"user":      {},
	"assistant": {},
	"tool":      {},
}

// RelayRequest is the canonical inbound request both protocol decoders
// produce. The model string is still raw here; validation cleans it.
type RelayRequest struct {
	Model       string
	Messages    []models.Message
	MaxTokens   *int
	Temperature *float64
	TopP        *float64
	Stream      bool
}

// ChatCompletionRequest models the OpenAI /v1/chat/completions payload.
type ChatCompletionRequest struct {
	Model       string
	Messages    []models.Message
	MaxTokens   *int
	Temperature *float64
	TopP        *float64
	Stream      bool
}

type openAIMessage struct {
	Role    string         `json:"role"`
	Content models.Content `json:"content"`
}

// UnmarshalJSON enforces shape validation once at the boundary.
func (r *ChatCompletionRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Model       string            `json:"model"`
		Messages    []json.RawMessage `json:"messages"`
		MaxTokens   *int              `json:"max_tokens"`
		Temperature *float64          `json:"temperature"`
		TopP        *float64          `json:"top_p"`
		Stream      bool              `json:"stream"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode chat request: %w", err)
	}

	if len(raw.Messages) == 0 {
		return errEmptyMessages
	}

	msgs := make([]models.Message, 0, len(raw.Messages))
	for i, rawMsg := range raw.Messages {
		var msg openAIMessage
		if err := json.Unmarshal(rawMsg, &msg); err != nil {
			return fmt.Errorf("messages[%d]: %w", i, err)
		}
		msg.Role = strings.TrimSpace(msg.Role)
		if _, ok := openAIRoles[msg.Role]; !ok {
			return fmt.Errorf("messages[%d]: %w: %q", i, errInvalidRole, msg.Role)
		}
		if msg.Content.IsZero() {
			return fmt.Errorf("messages[%d]: %w: missing content", i, errInvalidContent)
		}
		msgs = append(msgs, models.Message{Role: msg.Role, Content: msg.Content})
	}

	r.Model = strings.TrimSpace(raw.Model)
	r.Messages = msgs
	r.MaxTokens = raw.MaxTokens
	r.Temperature = raw.Temperature
	r.TopP = raw.TopP
	r.Stream = raw.Stream

	if r.Model == "" {
		return errEmptyModel
	}
	return nil
}

// ToRelay converts the request into the canonical form.
func (r ChatCompletionRequest) ToRelay() RelayRequest {
	return RelayRequest{
		Model:       r.Model,
		Messages:    r.Messages,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
		TopP:        r.TopP,
		Stream:      r.Stream,
	}
}

// ChatCompletionResponse is the OpenAI response envelope the relay returns
// on the OpenAI route. It mirrors the upstream shape byte for byte.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

// ChatChoice is one completion choice.
type ChatChoice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

// ResponseMessage is the assistant message inside a completion choice.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage mirrors the OpenAI token accounting block.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// FromUpstreamOpenAI renders an upstream chat response in the OpenAI wire
// shape, substituting the catalog-validated model id.
func FromUpstreamOpenAI(modelID string, resp *upstream.ChatResponse) ChatCompletionResponse {
	choices := make([]ChatChoice, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		choices = append(choices, ChatChoice{
			Index: choice.Index,
			Message: ResponseMessage{
				Role:    choice.Message.Role,
				Content: choice.Message.Content,
			},
			FinishReason: choice.FinishReason,
		})
	}

	var usage *Usage
	if resp.Usage.TotalTokens != 0 || resp.Usage.PromptTokens != 0 || resp.Usage.CompletionTokens != 0 {
		usage = &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	return ChatCompletionResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.Created,
		Model:   modelID,
		Choices: choices,
		Usage:   usage,
	}
}
