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
	errInvalidSystem = errors.New("invalid system prompt")
	errInvalidBlock  = errors.New("invalid content block")
)

// AnthropicMessageRequest models the Anthropic /v1/messages payload.
type AnthropicMessageRequest struct {
	Model       string
	Messages    []models.Message
	MaxTokens   *int
	Temperature *float64
	TopP        *float64
	Stream      bool
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text"`
	Source *anthropicSource `json:"source"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
	URL       string `json:"url"`
}

// UnmarshalJSON normalises the Anthropic request into canonical messages:
// the system prompt becomes a leading system message and image blocks become
// image_url parts (base64 sources become data: URIs).
func (r *AnthropicMessageRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Model       string            `json:"model"`
		MaxTokens   *int              `json:"max_tokens"`
		Messages    []json.RawMessage `json:"messages"`
		System      json.RawMessage   `json:"system"`
		Stream      bool              `json:"stream"`
		Temperature *float64          `json:"temperature"`
		TopP        *float64          `json:"top_p"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode anthropic request: %w", err)
	}

	system, err := parseAnthropicSystem(raw.System)
	if err != nil {
		return err
	}

	if len(raw.Messages) == 0 {
		return errEmptyMessages
	}

	msgs := make([]models.Message, 0, len(raw.Messages)+1)
	if system != "" {
		msgs = append(msgs, models.Message{Role: "system", Content: models.Text(system)})
	}

	for i, rawMsg := range raw.Messages {
		msg, err := parseAnthropicMessage(rawMsg)
		if err != nil {
			return fmt.Errorf("messages[%d]: %w", i, err)
		}
		msgs = append(msgs, msg)
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
func (r AnthropicMessageRequest) ToRelay() RelayRequest {
	return RelayRequest{
		Model:       r.Model,
		Messages:    r.Messages,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
		TopP:        r.TopP,
		Stream:      r.Stream,
	}
}

func parseAnthropicMessage(data []byte) (models.Message, error) {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.Message{}, fmt.Errorf("decode anthropic message: %w", err)
	}

	role := strings.TrimSpace(raw.Role)
	switch role {
	case "user", "assistant":
	default:
		return models.Message{}, fmt.Errorf("%w: %q", errInvalidRole, role)
	}

	content, err := parseAnthropicContent(raw.Content)
	if err != nil {
		return models.Message{}, err
	}
	return models.Message{Role: role, Content: content}, nil
}

func parseAnthropicContent(raw json.RawMessage) (models.Content, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return models.Content{}, errInvalidContent
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return models.Text(text), nil
	}

	var blocks []anthropicBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return models.Content{}, fmt.Errorf("%w: content must be a string or block array", errInvalidContent)
	}

	parts := make([]models.Part, 0, len(blocks))
	for i, block := range blocks {
		switch block.Type {
		case "text":
			parts = append(parts, models.Part{Type: models.PartText, Text: block.Text})
		case "image":
			url, err := imageSourceURL(block.Source)
			if err != nil {
				return models.Content{}, fmt.Errorf("content[%d]: %w", i, err)
			}
			parts = append(parts, models.Part{Type: models.PartImage, ImageURL: &models.ImageRef{URL: url}})
		default:
			return models.Content{}, fmt.Errorf("content[%d]: %w: unsupported type %q", i, errInvalidBlock, block.Type)
		}
	}
	return models.Blocks(parts...), nil
}

func imageSourceURL(source *anthropicSource) (string, error) {
	if source == nil {
		return "", fmt.Errorf("%w: image block has no source", errInvalidBlock)
	}
	switch source.Type {
	case "base64":
		if source.Data == "" {
			return "", fmt.Errorf("%w: base64 image source has no data", errInvalidBlock)
		}
		mediaType := source.MediaType
		if mediaType == "" {
			mediaType = "image/png"
		}
		return "data:" + mediaType + ";base64," + source.Data, nil
	case "url":
		if source.URL == "" {
			return "", fmt.Errorf("%w: url image source has no url", errInvalidBlock)
		}
		return source.URL, nil
	default:
		return "", fmt.Errorf("%w: unsupported image source type %q", errInvalidBlock, source.Type)
	}
}

func parseAnthropicSystem(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single), nil
	}

	var blocks []anthropicBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", errInvalidSystem
	}

	texts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		if block.Type != "text" {
			return "", fmt.Errorf("%w: unsupported block type %q", errInvalidSystem, block.Type)
		}
		if text := strings.TrimSpace(block.Text); text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n"), nil
}

// AnthropicResponse is the Anthropic message envelope returned on the
// /v1/messages route.
type AnthropicResponse struct {
	ID         string               `json:"id"`
	Type       string               `json:"type"`
	Role       string               `json:"role"`
	Model      string               `json:"model"`
	Content    []AnthropicTextBlock `json:"content"`
	StopReason string               `json:"stop_reason,omitempty"`
	Usage      AnthropicUsage       `json:"usage"`
}

// AnthropicTextBlock is a text content block in the response.
type AnthropicTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AnthropicUsage mirrors the Anthropic token accounting block.
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// FromUpstreamAnthropic renders an upstream chat response in the Anthropic
// wire shape for callers on the /v1/messages route.
func FromUpstreamAnthropic(modelID string, resp *upstream.ChatResponse) AnthropicResponse {
	role := "assistant"
	text := ""
	stop := ""
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if choice.Message.Role != "" {
			role = choice.Message.Role
		}
		text = choice.Message.Content
		stop = anthropicStopReason(choice.FinishReason)
	}

	return AnthropicResponse{
		ID:    resp.ID,
		Type:  "message",
		Role:  role,
		Model: modelID,
		Content: []AnthropicTextBlock{
			{Type: "text", Text: text},
		},
		StopReason: stop,
		Usage: AnthropicUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
}

func anthropicStopReason(finishReason string) string {
	switch finishReason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return finishReason
	}
}
