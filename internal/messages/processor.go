// Package messages normalises inbound chat messages and detects image
// content for vision-capability gating.
package messages

import (
	"context"
	"strings"

	"modelrelay/internal/imagepipe"
	"modelrelay/internal/models"
)

// ImageStore persists an inbound image reference and returns the stored
// asset path it should be rewritten to.
type ImageStore interface {
	Persist(ctx context.Context, url string) (string, error)
}

// Processor walks message sequences in order, rewriting image references
// through the configured store. A nil store disables rewriting; image
// detection still runs.
type Processor struct {
	store ImageStore
}

// NewProcessor constructs a processor backed by the given store.
func NewProcessor(store ImageStore) *Processor {
	return &Processor{store: store}
}

// Result carries the normalised messages and whether any image was present.
type Result struct {
	Messages  []models.Message
	HasImages bool
}

// Process normalises the messages in a single pass. Input is never mutated;
// output ordering matches input ordering.
func (p *Processor) Process(ctx context.Context, msgs []models.Message) (Result, error) {
	out := make([]models.Message, 0, len(msgs))
	hasImages := false

	for _, msg := range msgs {
		if msg.Content.IsPlain() {
			out = append(out, msg)
			continue
		}

		parts := make([]models.Part, 0, len(msg.Content.Parts))
		for _, part := range msg.Content.Parts {
			if part.Type != models.PartImage || part.ImageURL == nil || part.ImageURL.URL == "" {
				parts = append(parts, part)
				continue
			}

			hasImages = true
			// The extension check is only a pre-filter; references that do
			// not look like images are forwarded untouched and the provider
			// decides what to do with them.
			if p.store == nil || !imagepipe.IsImageURL(part.ImageURL.URL) {
				parts = append(parts, part)
				continue
			}

			path, err := p.store.Persist(ctx, part.ImageURL.URL)
			if err != nil {
				return Result{}, err
			}
			parts = append(parts, models.Part{
				Type:     models.PartImage,
				ImageURL: &models.ImageRef{URL: path},
			})
		}

		out = append(out, models.Message{Role: msg.Role, Content: models.Blocks(parts...)})
	}

	return Result{Messages: out, HasImages: hasImages}, nil
}

// ExtractText flattens a part sequence into a single string: text parts in
// input order joined by newline, everything else ignored.
func ExtractText(parts []models.Part) string {
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		if part.Type != models.PartText {
			continue
		}
		texts = append(texts, part.Text)
	}
	return strings.Join(texts, "\n")
}
