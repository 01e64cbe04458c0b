// Package modelparse turns a caller-supplied model identifier into a clean
// model id plus an optional web-search configuration. Parsing is purely
// syntactic: no catalog or network access happens here.
package modelparse

import (
	"fmt"
	"slices"
	"strings"

	"modelrelay/internal/models"
)

// Rules supplies the environment-configured modifier syntax.
type Rules struct {
	// OnlineSuffix is the modifier token enabling web search, e.g. "online"
	// in "gpt-4o:online".
	OnlineSuffix string
	// ContextSizes lists the accepted search context sizes for the
	// "<model>:<suffix>/<size>" form.
	ContextSizes []string
}

// DefaultRules returns the stock modifier syntax.
func DefaultRules() Rules {
	return Rules{
		OnlineSuffix: "online",
		ContextSizes: []string{"low", "medium", "high"},
	}
}

// Result is a successfully parsed model identifier.
type Result struct {
	CleanModel string
	WebSearch  *models.WebSearchConfig
}

// Parse splits raw into a clean model id and an optional web-search config.
// It never panics; malformed input is reported as a plain error for the
// caller to wrap into its validation failure.
func Parse(raw string, rules Rules) (Result, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Result{}, fmt.Errorf("model must not be empty")
	}

	base, modifier, found := strings.Cut(raw, ":")
	if !found {
		return Result{CleanModel: raw}, nil
	}
	if base == "" {
		return Result{}, fmt.Errorf("model %q has a modifier but no model id", raw)
	}
	if modifier == "" {
		return Result{}, fmt.Errorf("model %q has an empty modifier", raw)
	}

	name, size, _ := strings.Cut(modifier, "/")
	if !strings.EqualFold(name, rules.OnlineSuffix) {
		return Result{}, fmt.Errorf("unknown model modifier %q", modifier)
	}

	search := &models.WebSearchConfig{Enabled: true}
	if size != "" {
		size = strings.ToLower(size)
		if !slices.Contains(rules.ContextSizes, size) {
			return Result{}, fmt.Errorf("unsupported search context size %q", size)
		}
		search.ContextSize = size
	}

	return Result{CleanModel: base, WebSearch: search}, nil
}
