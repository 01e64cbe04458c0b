// Package catalog fetches the remote model catalog and serves read-only
// snapshots from a time-bounded cache. Refreshes replace the snapshot
// wholesale; a snapshot is never partially mutated.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"modelrelay/internal/apierr"
	"modelrelay/internal/models"
)

// Config locates the catalog endpoint.
type Config struct {
	URL    string
	APIKey string
	TTL    time.Duration
}

// Client caches catalog snapshots for the configured TTL.
type Client struct {
	cfg    Config
	client *http.Client

	mu        sync.RWMutex
	snapshot  *models.CatalogSnapshot
	fetchedAt time.Time
}

// New constructs a catalog client.
func New(cfg Config, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &Client{cfg: cfg, client: client}
}

// Snapshot returns a fresh-enough catalog snapshot, fetching when the cache
// is cold or stale.
func (c *Client) Snapshot(ctx context.Context) (models.CatalogSnapshot, error) {
	if snap, ok := c.cached(); ok {
		return snap, nil
	}
	return c.refresh(ctx)
}

// RefreshDetached warms the cache without the caller waiting on it. Failures
// are logged and swallowed; they never affect the in-flight request.
func (c *Client) RefreshDetached(ctx context.Context) {
	if _, ok := c.cached(); ok {
		return
	}
	go func() {
		if _, err := c.refresh(ctx); err != nil {
			slog.Warn("background catalog refresh failed", "err", err)
		}
	}()
}

func (c *Client) cached() (models.CatalogSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil || time.Since(c.fetchedAt) >= c.cfg.TTL {
		return models.CatalogSnapshot{}, false
	}
	return *c.snapshot, true
}

type catalogPayload struct {
	ChatModels   []string `json:"chat_models"`
	ImageModels  []string `json:"image_models"`
	VisionModels []string `json:"vision_models"`
}

func (c *Client) refresh(ctx context.Context) (models.CatalogSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return models.CatalogSnapshot{}, fmt.Errorf("construct catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return models.CatalogSnapshot{}, apierr.API(http.StatusBadGateway, fmt.Sprintf("model catalog fetch failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return models.CatalogSnapshot{}, apierr.API(resp.StatusCode, fmt.Sprintf("model catalog returned %s: %s", resp.Status, body))
	}

	var payload catalogPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.CatalogSnapshot{}, apierr.API(http.StatusBadGateway, fmt.Sprintf("decode model catalog: %v", err))
	}

	snap := models.CatalogSnapshot{
		ChatModels:   toSet(payload.ChatModels),
		ImageModels:  toSet(payload.ImageModels),
		VisionModels: toSet(payload.VisionModels),
	}

	c.mu.Lock()
	c.snapshot = &snap
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return snap, nil
}

// ChatModelIDs lists the snapshot's chat model ids in stable order.
func ChatModelIDs(snap models.CatalogSnapshot) []string {
	ids := make([]string, 0, len(snap.ChatModels))
	for id := range snap.ChatModels {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
