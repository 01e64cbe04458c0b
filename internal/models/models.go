package models

// Recognised content part types.
const (
	PartText  = "text"
	PartImage = "image_url"
)

// ImageRef holds the location of an image content part. The URL may be an
// HTTP(S) location or a data: URI carrying a base64 payload.
type ImageRef struct {
	URL string `json:"url"`
}

// Part is one element of multi-part message content.
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// Message is a single conversational message in the canonical schema.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// WebSearchConfig is the optional web-search feature bundle extracted from
// the model string. It travels alongside the clean model id, never inside it.
type WebSearchConfig struct {
	Enabled     bool
	ContextSize string
}

// ValidatedModel is the sole output of request validation: a catalog-checked
// model id plus the normalised message sequence.
type ValidatedModel struct {
	CleanModel        string
	WebSearch         *WebSearchConfig
	ProcessedMessages []Message
}

// ImageData carries raw image bytes between resolve and upload. It exists
// only for the duration of that round trip.
type ImageData struct {
	Data     []byte
	MimeType string
}

// CatalogSnapshot is a read-only classification of model ids, valid for a
// single validation call. A vision model is always also a chat model; image
// models are never chat models.
type CatalogSnapshot struct {
	ChatModels   map[string]struct{}
	ImageModels  map[string]struct{}
	VisionModels map[string]struct{}
}

func (s CatalogSnapshot) IsChatModel(id string) bool {
	_, ok := s.ChatModels[id]
	return ok
}

func (s CatalogSnapshot) IsImageModel(id string) bool {
	_, ok := s.ImageModels[id]
	return ok
}

func (s CatalogSnapshot) IsVisionModel(id string) bool {
	_, ok := s.VisionModels[id]
	return ok
}
