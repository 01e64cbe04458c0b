package imagepipe

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelrelay/internal/apierr"
	"modelrelay/internal/models"
)

func TestMimeToExtension(t *testing.T) {
	tests := []struct {
		mimeType string
		want     string
		known    bool
	}{
		{"image/jpeg", ".jpg", true},
		{"image/png", ".png", true},
		{"image/webp", ".webp", true},
		{"image/gif", ".gif", true},
		{"IMAGE/PNG", ".png", true},
		{"application/octet-stream", ".png", false},
		{"", ".png", false},
		{"not a mime type at all", ".png", false},
	}

	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			var ext string
			var known bool
			assert.NotPanics(t, func() {
				ext, known = MimeToExtension(tt.mimeType)
			})
			assert.Equal(t, tt.want, ext)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestIsImageURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/cat.PNG", true},
		{"https://example.com/photo.jpeg?size=large", true},
		{"data:image/png;base64,AAAA", true},
		{"https://example.com/raw?encoding=base64", true},
		{"https://example.com/page.html", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsImageURL(tt.url), "url %q", tt.url)
	}
}

func TestResolveDataURIRoundTrip(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x01, 0x02, 0x03}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)

	pipe := New(nil, Options{})
	img, err := pipe.Resolve(context.Background(), uri)
	require.NoError(t, err)
	assert.Equal(t, payload, img.Data)
	assert.Len(t, img.Data, len(payload))
	assert.Equal(t, "image/png", img.MimeType)
}

func TestResolveDataURIDeclaredTypes(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("bytes"))

	pipe := New(nil, Options{})

	img, err := pipe.Resolve(context.Background(), "data:image/webp;base64,"+payload)
	require.NoError(t, err)
	assert.Equal(t, "image/webp", img.MimeType)

	// An unrecognised declared type silently defaults.
	img, err = pipe.Resolve(context.Background(), "data:image/x-exotic;base64,"+payload)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)
}

func TestResolveDataURIMissingPayloadIsHardError(t *testing.T) {
	pipe := New(nil, Options{})

	_, err := pipe.Resolve(context.Background(), "data:image/png;base64")
	require.Error(t, err)
	f, ok := apierr.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindValidation, f.Kind)
}

func TestResolveDataURIInvalidBase64(t *testing.T) {
	pipe := New(nil, Options{})

	_, err := pipe.Resolve(context.Background(), "data:image/png;base64,!!!not-base64!!!")
	require.Error(t, err)
	f, ok := apierr.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindValidation, f.Kind)
}

func TestResolveHTTPContentTypeTrust(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        string
	}{
		{"untrusted type defaulted", "application/octet-stream", "image/png"},
		{"supported type passed through", "image/webp", "image/webp"},
		{"parameters stripped", "image/jpeg; charset=binary", "image/jpeg"},
		{"missing header defaulted", "", "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Contains(t, r.Header.Get("User-Agent"), "modelrelay")
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				_, _ = w.Write([]byte("imagebytes"))
			}))
			defer ts.Close()

			pipe := New(ts.Client(), Options{})
			img, err := pipe.Resolve(context.Background(), ts.URL)
			require.NoError(t, err)
			assert.Equal(t, tt.want, img.MimeType)
			assert.Equal(t, []byte("imagebytes"), img.Data)
		})
	}
}

func TestResolveHTTPFetchFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	pipe := New(ts.Client(), Options{})
	_, err := pipe.Resolve(context.Background(), ts.URL)
	require.Error(t, err)
	f, ok := apierr.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindAPI, f.Kind)
	assert.Equal(t, http.StatusNotFound, f.Status)
}

func TestResolveHTTPRespectsSizeLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer ts.Close()

	pipe := New(ts.Client(), Options{MaxBytes: 16})
	_, err := pipe.Resolve(context.Background(), ts.URL)
	require.Error(t, err)
	f, ok := apierr.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindValidation, f.Kind)
}

func TestUploadSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret-key", r.Header.Get("API-KEY"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("asset")
		require.NoError(t, err)
		defer file.Close()

		assert.True(t, strings.HasSuffix(header.Filename, ".webp"), "filename %q", header.Filename)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, []byte("webp-bytes"), data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fileContent":{"path":"assets/stored.webp"}}`))
	}))
	defer ts.Close()

	pipe := New(ts.Client(), Options{})
	path, err := pipe.Upload(context.Background(), models.ImageData{
		Data:     []byte("webp-bytes"),
		MimeType: "image/webp",
	}, "secret-key", ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "assets/stored.webp", path)
}

func TestUploadUnknownMimeDefaultsExtension(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("asset")
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(header.Filename, ".png"), "filename %q", header.Filename)
		_, _ = w.Write([]byte(`{"fileContent":{"path":"assets/stored.png"}}`))
	}))
	defer ts.Close()

	pipe := New(ts.Client(), Options{})
	path, err := pipe.Upload(context.Background(), models.ImageData{
		Data:     []byte("mystery"),
		MimeType: "application/octet-stream",
	}, "k", ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "assets/stored.png", path)
}

func TestUploadFailureIncludesBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exhausted for bucket", http.StatusForbidden)
	}))
	defer ts.Close()

	pipe := New(ts.Client(), Options{})
	_, err := pipe.Upload(context.Background(), models.ImageData{Data: []byte("x"), MimeType: "image/png"}, "k", ts.URL)
	require.Error(t, err)
	f, ok := apierr.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindAPI, f.Kind)
	assert.Equal(t, http.StatusForbidden, f.Status)
	assert.Contains(t, f.Message, "quota exhausted for bucket")
}

func TestUploadMissingPathIsFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"fileContent":{}}`))
	}))
	defer ts.Close()

	pipe := New(ts.Client(), Options{})
	_, err := pipe.Upload(context.Background(), models.ImageData{Data: []byte("x"), MimeType: "image/png"}, "k", ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no path returned")
}

func TestStorePersistRoundTrip(t *testing.T) {
	uploads := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploads++
		_, _ = w.Write([]byte(`{"fileContent":{"path":"assets/via-store.png"}}`))
	}))
	defer ts.Close()

	pipe := New(ts.Client(), Options{})
	store := NewStore(pipe, ts.URL, "k")

	payload := base64.StdEncoding.EncodeToString([]byte("png"))
	path, err := store.Persist(context.Background(), "data:image/png;base64,"+payload)
	require.NoError(t, err)
	assert.Equal(t, "assets/via-store.png", path)
	assert.Equal(t, 1, uploads)
}
