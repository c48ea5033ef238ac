// Package llmprovider defines the Provider interface the core consumes
// (spec.md §6.1) and ships reference adapters wired to real SDKs. The
// core never imports an SDK directly — every component that needs a
// model call accepts this interface, matching pkg/providers' own
// separation between provider.go's interface and its per-vendor
// implementations (claude_provider.go, openai_sdk/provider.go,
// github_copilot_provider.go).
package llmprovider

import "context"

// Message is one turn in a chat request.
type Message struct {
	Role       string // "system" | "user" | "assistant" | "tool"
	Content    string
	ToolCallID string
	ToolCalls  []ToolCall
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolDefinition describes a callable tool offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatOptions configures one Chat call (spec.md §6.1).
type ChatOptions struct {
	Model          string
	MaxTokens      int
	Temperature    float64
	System         string
	ResponseFormat string
	Tools          []ToolDefinition
}

// Usage reports token/cost accounting for one Chat call.
type Usage struct {
	InputTokens        int
	OutputTokens       int
	CacheReadTokens    int
	CacheCreationTokens int
	CostUsd            float64
}

// ChatResponse is the result of one Chat call (spec.md §6.1).
type ChatResponse struct {
	Content    string
	Usage      Usage
	StopReason string
	ToolCalls  []ToolCall
}

// ProviderError is the error shape returned by a failed Chat call
// (spec.md §6.1): Retryable distinguishes transient provider faults
// (rate limits, 5xx) from ones no amount of retrying will fix.
type ProviderError struct {
	Retryable  bool
	StatusCode int
	Reason     string
}

func (e *ProviderError) Error() string { return e.Reason }

// Provider is the interface inbound to the core (spec.md §6.1). The
// core's quality gate and worker pool consume this; they never
// construct a concrete adapter themselves.
type Provider interface {
	Chat(ctx context.Context, messages []Message, options ChatOptions) (ChatResponse, error)
	DefaultModel() string
}
