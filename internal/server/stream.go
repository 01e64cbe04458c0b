package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"modelrelay/internal/apierr"
	"modelrelay/internal/protocol"
)

// writeAnthropicStream replays a completed response as the canonical
// Anthropic SSE event sequence for callers that requested streaming.
func writeAnthropicStream(c echo.Context, resp protocol.AnthropicResponse) error {
	writer := c.Response().Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		slog.Error("http writer does not support flushing")
		return apierr.API(http.StatusInternalServerError, "server does not support streaming responses")
	}

	header := c.Response().Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")

	c.Response().WriteHeader(http.StatusOK)

	usage := map[string]int{
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
	}

	text := ""
	if len(resp.Content) > 0 {
		text = resp.Content[0].Text
	}

	events := []struct {
		name    string
		payload any
	}{
		{
			name: "message_start",
			payload: map[string]any{
				"type": "message_start",
				"message": map[string]any{
					"id":            resp.ID,
					"type":          "message",
					"role":          resp.Role,
					"model":         resp.Model,
					"content":       []any{},
					"stop_reason":   nil,
					"stop_sequence": nil,
					"usage":         usage,
				},
			},
		},
		{
			name: "content_block_start",
			payload: map[string]any{
				"type":  "content_block_start",
				"index": 0,
				"content_block": map[string]any{
					"type": "text",
					"text": "",
				},
			},
		},
		{
			name: "content_block_delta",
			payload: map[string]any{
				"type":  "content_block_delta",
				"index": 0,
				"delta": map[string]any{
					"type": "text_delta",
					"text": text,
				},
			},
		},
		{
			name: "content_block_stop",
			payload: map[string]any{
				"type":  "content_block_stop",
				"index": 0,
			},
		},
		{
			name: "message_delta",
			payload: map[string]any{
				"type": "message_delta",
				"delta": map[string]any{
					"stop_reason":   resp.StopReason,
					"stop_sequence": nil,
				},
				"usage": usage,
			},
		},
		{
			name: "message_stop",
			payload: map[string]any{
				"type": "message_stop",
			},
		},
	}

	for _, event := range events {
		if err := writeSSEEvent(writer, event.name, event.payload); err != nil {
			slog.Error("failed to write SSE event", "event", event.name, "err", err)
			return err
		}
		flusher.Flush()
	}

	return nil
}

func writeSSEEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return fmt.Errorf("write SSE event name: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write SSE data: %w", err)
	}
	return nil
}
