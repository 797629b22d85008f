// Package tokenizer estimates prompt token counts for usage costing.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// encodingForModel maps OpenAI model names to tiktoken encodings.
var encodingForModel = map[string]tokenizer.Encoding{
	"gpt-4o":        tokenizer.O200kBase,
	"gpt-4o-mini":   tokenizer.O200kBase,
	"o1":            tokenizer.O200kBase,
	"o1-mini":       tokenizer.O200kBase,
	"o3-mini":       tokenizer.O200kBase,
	"gpt-4-turbo":   tokenizer.Cl100kBase,
	"gpt-4":         tokenizer.Cl100kBase,
	"gpt-3.5-turbo": tokenizer.Cl100kBase,
}

var codecs sync.Map // tokenizer.Encoding -> tokenizer.Codec

func codecFor(enc tokenizer.Encoding) (tokenizer.Codec, error) {
	if c, ok := codecs.Load(enc); ok {
		return c.(tokenizer.Codec), nil
	}
	c, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", enc, err)
	}
	actual, _ := codecs.LoadOrStore(enc, c)
	return actual.(tokenizer.Codec), nil
}

// Count returns the input token count of text for a provider's model.
// OpenAI models are tokenized exactly; other providers are estimated at
// four characters per token.
func Count(text, provider, model string) (int64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}
	if provider != "openai" {
		return Estimate(text), nil
	}

	enc, ok := encodingForModel[model]
	if !ok {
		enc = tokenizer.Cl100kBase
	}
	codec, err := codecFor(enc)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("encode text: %w", err)
	}
	return int64(len(ids)), nil
}

// Estimate is the character based fallback, rounded up.
func Estimate(text string) int64 {
	text = strings.TrimSpace(text)
	return int64((len(text) + 3) / 4)
}
