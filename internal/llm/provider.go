// Package llm defines the language model contract: a Provider turns a
// prompt pair into response text, a TokenCounter sizes text for budget
// enforcement, and ParseAction recovers the structured action from a
// free-form response.
//
// IMPORTANT: This package may import internal/constants, internal/errors,
// and internal/domain. It MUST NOT import internal/state, internal/tools,
// or internal/executor.
package llm

import (
	"context"
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Request is a single completion request.
type Request struct {
	// System is the system message.
	System string `json:"system"`

	// User is the user message.
	User string `json:"user"`

	// MaxTokens caps the response length. Zero means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// TokenUsage is the token accounting a provider reports for one call.
type TokenUsage struct {
	// PromptTokens is the token count of the submitted messages.
	PromptTokens int `json:"prompt_tokens"`

	// ResponseTokens is the token count of the generated text.
	ResponseTokens int `json:"response_tokens"`
}

// Total returns prompt plus response tokens.
func (u TokenUsage) Total() int {
	return u.PromptTokens + u.ResponseTokens
}

// Response is a completed generation. A zero Usage means the provider
// did not report token counts and the caller should estimate them.
type Response struct {
	// Text is the raw response text.
	Text string `json:"text"`

	// Usage is the provider-reported token accounting, when available.
	Usage TokenUsage `json:"usage"`
}

// Provider defines the interface for language model backends.
// Implementations handle the actual invocation (CLI subprocess, API,
// scripted test double) and return the raw response text.
//
// Context should be used to control timeouts and cancellation.
type Provider interface {
	// Generate executes a completion request and returns the response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// TokenCounter sizes text in tokens for budget enforcement.
type TokenCounter interface {
	// Count returns the token count of the text.
	Count(text string) int
}

// EstimateCounter approximates one token per four characters of text.
// It is the default counter: coarse but dependency-free and stable.
type EstimateCounter struct{}

// Count returns len(text)/4.
func (EstimateCounter) Count(text string) int {
	return len(text) / 4
}

// TiktokenCounter counts tokens with a real BPE encoding. Construction
// may fetch the encoding dictionary, so it is opt-in.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter builds a counter for the named encoding,
// e.g. "cl100k_base".
func NewTiktokenCounter(encodingName string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("loading %s encoding: %w", encodingName, err)
	}
	return &TiktokenCounter{encoding: enc}, nil
}

// Count returns the BPE token count of the text.
func (c *TiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// Compile-time checks that both counters implement TokenCounter.
var (
	_ TokenCounter = EstimateCounter{}
	_ TokenCounter = (*TiktokenCounter)(nil)
)
