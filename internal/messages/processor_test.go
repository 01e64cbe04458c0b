package messages

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelrelay/internal/models"
)

type fakeStore struct {
	calls []string
	path  string
	err   error
}

func (s *fakeStore) Persist(_ context.Context, url string) (string, error) {
	s.calls = append(s.calls, url)
	if s.err != nil {
		return "", s.err
	}
	return s.path, nil
}

func TestProcessPlainStringPassthrough(t *testing.T) {
	proc := NewProcessor(nil)
	msgs := []models.Message{
		{Role: "user", Content: models.Text("hello")},
		{Role: "assistant", Content: models.Text("hi there")},
	}

	result, err := proc.Process(context.Background(), msgs)
	require.NoError(t, err)
	assert.False(t, result.HasImages)
	require.Len(t, result.Messages, 2)
	assert.Equal(t, msgs, result.Messages)
}

func TestProcessDetectsImages(t *testing.T) {
	proc := NewProcessor(nil)
	msgs := []models.Message{
		{Role: "user", Content: models.Blocks(
			models.Part{Type: models.PartText, Text: "look at this"},
			models.Part{Type: models.PartImage, ImageURL: &models.ImageRef{URL: "https://example.com/cat.png"}},
		)},
	}

	result, err := proc.Process(context.Background(), msgs)
	require.NoError(t, err)
	assert.True(t, result.HasImages)
}

func TestProcessIgnoresImagePartsWithoutURL(t *testing.T) {
	proc := NewProcessor(nil)
	msgs := []models.Message{
		{Role: "user", Content: models.Blocks(
			models.Part{Type: models.PartImage},
			models.Part{Type: models.PartImage, ImageURL: &models.ImageRef{}},
		)},
	}

	result, err := proc.Process(context.Background(), msgs)
	require.NoError(t, err)
	assert.False(t, result.HasImages)
}

func TestProcessRewritesImagesThroughStore(t *testing.T) {
	store := &fakeStore{path: "assets/abc.png"}
	proc := NewProcessor(store)
	msgs := []models.Message{
		{Role: "user", Content: models.Blocks(
			models.Part{Type: models.PartText, Text: "before"},
			models.Part{Type: models.PartImage, ImageURL: &models.ImageRef{URL: "https://example.com/cat.png"}},
			models.Part{Type: models.PartText, Text: "after"},
		)},
	}

	result, err := proc.Process(context.Background(), msgs)
	require.NoError(t, err)
	assert.True(t, result.HasImages)
	assert.Equal(t, []string{"https://example.com/cat.png"}, store.calls)

	parts := result.Messages[0].Content.Parts
	require.Len(t, parts, 3)
	assert.Equal(t, "before", parts[0].Text)
	assert.Equal(t, "assets/abc.png", parts[1].ImageURL.URL)
	assert.Equal(t, "after", parts[2].Text)

	// The input must not have been mutated.
	assert.Equal(t, "https://example.com/cat.png", msgs[0].Content.Parts[1].ImageURL.URL)
}

func TestProcessSkipsNonImageLookingURLs(t *testing.T) {
	store := &fakeStore{path: "assets/abc.png"}
	proc := NewProcessor(store)
	msgs := []models.Message{
		{Role: "user", Content: models.Blocks(
			models.Part{Type: models.PartImage, ImageURL: &models.ImageRef{URL: "https://example.com/dynamic-render"}},
		)},
	}

	result, err := proc.Process(context.Background(), msgs)
	require.NoError(t, err)
	assert.True(t, result.HasImages)
	assert.Empty(t, store.calls)
	assert.Equal(t, "https://example.com/dynamic-render", result.Messages[0].Content.Parts[0].ImageURL.URL)
}

func TestProcessPropagatesStoreFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("upload exploded")}
	proc := NewProcessor(store)
	msgs := []models.Message{
		{Role: "user", Content: models.Blocks(
			models.Part{Type: models.PartImage, ImageURL: &models.ImageRef{URL: "https://example.com/cat.png"}},
		)},
	}

	_, err := proc.Process(context.Background(), msgs)
	assert.ErrorContains(t, err, "upload exploded")
}

func TestProcessPreservesMessageOrder(t *testing.T) {
	store := &fakeStore{path: "assets/x.png"}
	proc := NewProcessor(store)
	msgs := []models.Message{
		{Role: "system", Content: models.Text("sys")},
		{Role: "user", Content: models.Blocks(
			models.Part{Type: models.PartImage, ImageURL: &models.ImageRef{URL: "https://a.example/1.png"}},
		)},
		{Role: "user", Content: models.Text("tail")},
	}

	result, err := proc.Process(context.Background(), msgs)
	require.NoError(t, err)
	require.Len(t, result.Messages, 3)
	assert.Equal(t, "system", result.Messages[0].Role)
	assert.Equal(t, "user", result.Messages[1].Role)
	assert.Equal(t, "tail", *result.Messages[2].Content.Plain)
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name  string
		parts []models.Part
		want  string
	}{
		{
			name:  "no text parts",
			parts: []models.Part{{Type: models.PartImage, ImageURL: &models.ImageRef{URL: "u"}}},
			want:  "",
		},
		{
			name:  "empty sequence",
			parts: nil,
			want:  "",
		},
		{
			name: "order preserved joined by newline",
			parts: []models.Part{
				{Type: models.PartText, Text: "first"},
				{Type: models.PartImage, ImageURL: &models.ImageRef{URL: "u"}},
				{Type: models.PartText, Text: "second"},
			},
			want: "first\nsecond",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractText(tt.parts))
		})
	}
}
