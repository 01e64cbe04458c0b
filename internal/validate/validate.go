// Package validate orchestrates model parsing, catalog membership checks and
// message normalisation. Every API handler runs a request through here
// before doing real work.
package validate

import (
	"context"
	"fmt"

	"modelrelay/internal/apierr"
	"modelrelay/internal/messages"
	"modelrelay/internal/modelparse"
	"modelrelay/internal/models"
)

// CatalogSource supplies a fresh-enough model catalog snapshot.
type CatalogSource interface {
	Snapshot(ctx context.Context) (models.CatalogSnapshot, error)
}

// Validator produces fully validated, normalised requests.
type Validator struct {
	catalog   CatalogSource
	rules     modelparse.Rules
	processor *messages.Processor
}

// New constructs a validator.
func New(catalog CatalogSource, rules modelparse.Rules, processor *messages.Processor) *Validator {
	return &Validator{catalog: catalog, rules: rules, processor: processor}
}

// ValidateModelAndMessages validates the raw model string against the
// catalog and normalises the message sequence. The check order is load
// bearing: syntactic parsing happens before any catalog I/O, existence and
// endpoint checks before per-image work, and vision gating after the message
// pass that detects images.
func (v *Validator) ValidateModelAndMessages(ctx context.Context, rawModel string, msgs []models.Message) (models.ValidatedModel, error) {
	parsed, err := modelparse.Parse(rawModel, v.rules)
	if err != nil {
		return models.ValidatedModel{}, apierr.ValidationField(err.Error(), "model", "model_not_found")
	}

	snap, err := v.catalog.Snapshot(ctx)
	if err != nil {
		return models.ValidatedModel{}, err
	}

	if !snap.IsChatModel(parsed.CleanModel) {
		if snap.IsImageModel(parsed.CleanModel) {
			return models.ValidatedModel{}, apierr.ValidationField(
				fmt.Sprintf("model %q generates images; use the /v1/images/generations endpoint instead", parsed.CleanModel),
				"model",
				"model_not_supported",
			)
		}
		return models.ValidatedModel{}, apierr.ModelNotFound(parsed.CleanModel)
	}

	processed, err := v.processor.Process(ctx, msgs)
	if err != nil {
		return models.ValidatedModel{}, err
	}

	if processed.HasImages && !snap.IsVisionModel(parsed.CleanModel) {
		return models.ValidatedModel{}, apierr.ValidationField(
			fmt.Sprintf("model %q does not support image inputs", parsed.CleanModel),
			"model",
			"model_not_supported",
		)
	}

	return models.ValidatedModel{
		CleanModel:        parsed.CleanModel,
		WebSearch:         parsed.WebSearch,
		ProcessedMessages: processed.Messages,
	}, nil
}
