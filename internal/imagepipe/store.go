package imagepipe

import "context"

// Store binds the pipeline to a configured upload endpoint so message
// processing can persist inbound image references in one call.
type Store struct {
	pipeline *Pipeline
	endpoint string
	apiKey   string
}

// NewStore constructs a store for the given asset endpoint.
func NewStore(pipeline *Pipeline, endpoint, apiKey string) *Store {
	return &Store{pipeline: pipeline, endpoint: endpoint, apiKey: apiKey}
}

// Persist resolves the image reference and uploads it, returning the stored
// asset path.
func (s *Store) Persist(ctx context.Context, url string) (string, error) {
	img, err := s.pipeline.Resolve(ctx, url)
	if err != nil {
		return "", err
	}
	return s.pipeline.Upload(ctx, img, s.apiKey, s.endpoint)
}
