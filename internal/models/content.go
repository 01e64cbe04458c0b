package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Content is either a plain string or an ordered sequence of typed parts.
// Exactly one branch is populated. The shape is validated once here at the
// decoding boundary so downstream code never re-checks it.
type Content struct {
	Plain *string
	Parts []Part
}

// Text wraps a plain string as message content.
func Text(s string) Content {
	return Content{Plain: &s}
}

// Blocks wraps an ordered part sequence as message content.
func Blocks(parts ...Part) Content {
	return Content{Parts: parts}
}

// IsPlain reports whether the content is a bare string.
func (c Content) IsPlain() bool {
	return c.Plain != nil
}

// IsZero reports whether neither branch is populated, i.e. the content field
// was absent from the payload.
func (c Content) IsZero() bool {
	return c.Plain == nil && c.Parts == nil
}

// UnmarshalJSON accepts a JSON string or an array of typed content parts.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return errors.New("message content is required")
	}

	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return fmt.Errorf("decode text content: %w", err)
		}
		c.Plain = &text
		c.Parts = nil
		return nil
	}

	var parts []Part
	if err := json.Unmarshal(trimmed, &parts); err != nil {
		return errors.New("message content must be a string or an array of content parts")
	}
	for i, part := range parts {
		switch part.Type {
		case PartText, PartImage:
		default:
			return fmt.Errorf("content part %d: unsupported type %q", i, part.Type)
		}
	}
	c.Plain = nil
	c.Parts = parts
	return nil
}

// MarshalJSON renders the branch that is populated.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.Plain != nil {
		return json.Marshal(*c.Plain)
	}
	if c.Parts == nil {
		return json.Marshal([]Part{})
	}
	return json.Marshal(c.Parts)
}
