// Package llm provides semantic job search and extraction on top of a
// language-model completion API.
package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// DefaultMaxHTMLBytes bounds the page text sent for extraction.
const DefaultMaxHTMLBytes = 100_000

// Completer returns the model's text reply to a system and user prompt.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config tunes prompting.
type Config struct {
	MaxHTMLBytes int
}

// Client implements crawler.Searcher and crawler.Extractor.
type Client struct {
	completer    Completer
	maxHTMLBytes int
	logger       *zap.Logger
}

// New builds a Client over completer.
func New(completer Completer, cfg Config, logger *zap.Logger) (*Client, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if cfg.MaxHTMLBytes <= 0 {
		cfg.MaxHTMLBytes = DefaultMaxHTMLBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		completer:    completer,
		maxHTMLBytes: cfg.MaxHTMLBytes,
		logger:       logger.Named("llm"),
	}, nil
}
