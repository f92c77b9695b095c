package hosttransport

import (
	"context"
)

// HostInfo describes a discoverable inference host.
type HostInfo struct {
	Address       string   `json:"address"`
	Endpoint      string   `json:"endpoint"`
	Models        []string `json:"models"`
	PricePerToken int64    `json:"price_per_token"`
	Online        bool     `json:"online"`
}

// PromptRequest is one inference call against an open session.
type PromptRequest struct {
	LedgerSessionID uint64
	Model           string
	Prompt          string
	History         []PromptMessage
}

// PromptMessage is one prior exchange carried for context.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PromptResponse carries the completion and the host-reported token count.
// The coordinator prices the host's count; it does not re-tokenize.
type PromptResponse struct {
	Content string
	Tokens  int64
}

// Chunk is one increment of a streamed completion. Tokens is cumulative so
// far; Final marks the last chunk, whose Tokens is the billable total.
type Chunk struct {
	Content string
	Tokens  int64
	Final   bool
}

// Transport talks to inference hosts.
type Transport interface {
	// SendPrompt runs one inference call and blocks for the full completion.
	SendPrompt(ctx context.Context, endpoint string, req PromptRequest) (*PromptResponse, error)

	// StreamPrompt runs one inference call, delivering chunks to onChunk as
	// they arrive. onChunk runs on the transport's goroutine and must not
	// block for long.
	StreamPrompt(ctx context.Context, endpoint string, req PromptRequest, onChunk func(Chunk)) (*PromptResponse, error)

	// DiscoverHosts lists hosts currently advertising the given model.
	// An empty model lists all hosts.
	DiscoverHosts(ctx context.Context, model string) ([]HostInfo, error)
}
