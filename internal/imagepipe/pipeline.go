// Package imagepipe resolves inbound image references (HTTP URLs or data:
// URIs) to raw bytes and re-uploads them to the external asset store. It
// performs MIME sniffing and base64 decoding only, never resizing or
// re-encoding.
package imagepipe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"modelrelay/internal/apierr"
	"modelrelay/internal/models"
)

// DefaultMimeType is the fallback applied when a declared content type is
// absent or untrusted.
const DefaultMimeType = "image/png"

const (
	dataURIPrefix    = "data:image"
	base64Token      = ";base64"
	maxErrorBodySize = 8 * 1024
)

var mimeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

var imageURLExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}

// MimeToExtension maps a MIME type to the file extension used for upload.
// The second return reports whether the type is one of the supported image
// types; unsupported types map to ".png". The lookup is pure so callers own
// any warning they want to emit on fallback.
func MimeToExtension(mimeType string) (string, bool) {
	if ext, ok := mimeExtensions[strings.ToLower(strings.TrimSpace(mimeType))]; ok {
		return ext, true
	}
	return ".png", false
}

// SupportedMimeType reports whether the declared type is in the trusted set.
func SupportedMimeType(mimeType string) bool {
	_, ok := mimeExtensions[strings.ToLower(strings.TrimSpace(mimeType))]
	return ok
}

// IsImageURL is a heuristic pre-filter for image references: a known image
// extension, an embedded image data URI marker, or an inline base64 token.
// MIME sniffing during resolve remains the source of truth.
func IsImageURL(url string) bool {
	lower := strings.ToLower(url)
	for _, ext := range imageURLExtensions {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return strings.Contains(lower, dataURIPrefix) || strings.Contains(lower, "base64")
}

// Options tunes outbound image fetching.
type Options struct {
	UserAgent string
	MaxBytes  int64
}

// Pipeline fetches, decodes and re-uploads image payloads.
type Pipeline struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	logger    *slog.Logger
}

// New constructs a pipeline using the provided HTTP client.
func New(client *http.Client, opts Options) *Pipeline {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "modelrelay/0.1"
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 20 << 20
	}
	return &Pipeline{
		client:    client,
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
		logger:    slog.Default(),
	}
}

// Resolve turns an image reference into raw bytes plus a MIME type. Data
// URIs are decoded in place; anything else is fetched over HTTP.
func (p *Pipeline) Resolve(ctx context.Context, imageURL string) (models.ImageData, error) {
	if strings.HasPrefix(imageURL, dataURIPrefix) {
		return decodeDataURI(imageURL)
	}
	return p.fetch(ctx, imageURL)
}

// A data URI's declared media type is honoured when it is a known image
// type and defaulted otherwise, but a missing payload segment is a hard
// error rather than empty data.
func decodeDataURI(uri string) (models.ImageData, error) {
	meta, payload, found := strings.Cut(uri, ",")
	if !found {
		return models.ImageData{}, apierr.Validation("image data URI has no payload segment")
	}

	mimeType := DefaultMimeType
	declared := strings.TrimPrefix(meta, "data:")
	declared = strings.TrimSuffix(declared, base64Token)
	if SupportedMimeType(declared) {
		mimeType = strings.ToLower(declared)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return models.ImageData{}, apierr.Validation(fmt.Sprintf("invalid base64 image payload: %v", err))
	}

	return models.ImageData{Data: data, MimeType: mimeType}, nil
}

func (p *Pipeline) fetch(ctx context.Context, imageURL string) (models.ImageData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return models.ImageData{}, apierr.Validation(fmt.Sprintf("invalid image url %q: %v", imageURL, err))
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return models.ImageData{}, apierr.API(http.StatusBadGateway, fmt.Sprintf("image fetch failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.ImageData{}, apierr.API(resp.StatusCode, fmt.Sprintf("image fetch returned %s", resp.Status))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return models.ImageData{}, apierr.API(http.StatusBadGateway, fmt.Sprintf("read image body: %v", err))
	}
	if int64(len(data)) > p.maxBytes {
		return models.ImageData{}, apierr.Validation(fmt.Sprintf("image exceeds the %d byte limit", p.maxBytes))
	}

	// A remote server's declared type is only trusted when it is in the
	// supported set; it drives the re-upload extension.
	mimeType := DefaultMimeType
	if declared, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && SupportedMimeType(declared) {
		mimeType = strings.ToLower(declared)
	}

	return models.ImageData{Data: data, MimeType: mimeType}, nil
}

// Upload posts the image bytes to the asset endpoint as a multipart form and
// returns the stored asset path.
func (p *Pipeline) Upload(ctx context.Context, img models.ImageData, apiKey, endpoint string) (string, error) {
	ext, known := MimeToExtension(img.MimeType)
	if !known {
		p.logger.Warn("unsupported image mime type, defaulting extension",
			"mime_type", img.MimeType,
			"extension", ext,
		)
	}
	filename := uuid.NewString() + ext

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("asset", filename)
	if err != nil {
		return "", fmt.Errorf("create multipart field: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return "", fmt.Errorf("write multipart payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalise multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("construct upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("API-KEY", apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", apierr.API(http.StatusBadGateway, fmt.Sprintf("asset upload failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return "", apierr.API(resp.StatusCode, fmt.Sprintf("asset upload returned %s: %s", resp.Status, strings.TrimSpace(string(body))))
	}

	var uploaded struct {
		FileContent struct {
			Path string `json:"path"`
		} `json:"fileContent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", apierr.API(http.StatusBadGateway, fmt.Sprintf("decode upload response: %v", err))
	}
	if uploaded.FileContent.Path == "" {
		return "", apierr.API(http.StatusBadGateway, "asset upload succeeded but no path returned")
	}

	return uploaded.FileContent.Path, nil
}
