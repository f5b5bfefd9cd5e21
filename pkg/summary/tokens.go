package summary

import (
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// Counter measures and trims text in model tokens.
type Counter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// TokenCounter counts with a tiktoken codec.
type TokenCounter struct {
	codec tokenizer.Codec
}

var _ Counter = &TokenCounter{}

// NewTokenCounter loads the cl100k_base codec unless another encoding is named.
func NewTokenCounter(encoding string) (*TokenCounter, error) {
	enc := tokenizer.Cl100kBase
	if encoding != "" {
		enc = tokenizer.Encoding(encoding)
	}
	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, errors.Wrapf(err, "load tokenizer %s", enc)
	}
	return &TokenCounter{codec: codec}, nil
}

func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		// rough fallback, ~4 bytes per token
		return (len(text) + 3) / 4
	}
	return len(ids)
}

func (c *TokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return text
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil || len(ids) <= maxTokens {
		return text
	}
	out, err := c.codec.Decode(ids[:maxTokens])
	if err != nil {
		return text
	}
	return out
}
