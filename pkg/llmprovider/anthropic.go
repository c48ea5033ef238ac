package llmprovider

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider wraps anthropic-sdk-go, grounded on
// pkg/providers/claude_provider.go's ClaudeProvider.
type AnthropicProvider struct {
	client *anthropic.Client
}

// NewAnthropicProvider constructs a Provider backed by the Anthropic
// Messages API.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	client := anthropic.NewClient(
		option.WithAuthToken(apiKey),
		option.WithBaseURL("https://api.anthropic.com"),
	)
	return &AnthropicProvider{client: &client}
}

func (p *AnthropicProvider) DefaultModel() string { return "claude-sonnet-4-5-20250929" }

func (p *AnthropicProvider) Chat(ctx context.Context, messages []Message, options ChatOptions) (ChatResponse, error) {
	params, err := buildAnthropicParams(messages, options)
	if err != nil {
		return ChatResponse{}, err
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return ChatResponse{}, &ProviderError{Retryable: isRetryableAnthropicErr(err), Reason: fmt.Sprintf("anthropic: %v", err)}
	}
	return parseAnthropicResponse(resp), nil
}

func buildAnthropicParams(messages []Message, options ChatOptions) (anthropic.MessageNewParams, error) {
	var system []anthropic.TextBlockParam
	var out []anthropic.MessageParam

	if options.System != "" {
		system = append(system, anthropic.TextBlockParam{Text: options.System})
	}

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case "user":
			if msg.ToolCallID != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)))
			} else {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				var blocks []anthropic.ContentBlockParamUnion
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
				}
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			} else {
				out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
			}
		case "tool":
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)))
		}
	}

	maxTokens := int64(4096)
	if options.MaxTokens > 0 {
		maxTokens = int64(options.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(options.Model),
		Messages:  out,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if options.Temperature > 0 {
		params.Temperature = anthropic.Float(options.Temperature)
	}
	if len(options.Tools) > 0 {
		params.Tools = translateAnthropicTools(options.Tools)
	}
	return params, nil
}

func translateAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		tool := anthropic.ToolParam{
			Name:        t.Name,
			InputSchema: anthropic.ToolInputSchemaParam{Properties: t.Parameters["properties"]},
		}
		if t.Description != "" {
			tool.Description = anthropic.String(t.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}

func parseAnthropicResponse(resp *anthropic.Message) ChatResponse {
	var content string
	var calls []ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			content += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			calls = append(calls, ToolCall{ID: tu.ID, Name: tu.Name})
		}
	}

	stopReason := "stop"
	switch resp.StopReason {
	case anthropic.StopReasonToolUse:
		stopReason = "tool_calls"
	case anthropic.StopReasonMaxTokens:
		stopReason = "length"
	}

	return ChatResponse{
		Content:    content,
		StopReason: stopReason,
		ToolCalls:  calls,
		Usage: Usage{
			InputTokens:         int(resp.Usage.InputTokens),
			OutputTokens:        int(resp.Usage.OutputTokens),
			CacheReadTokens:     int(resp.Usage.CacheReadInputTokens),
			CacheCreationTokens: int(resp.Usage.CacheCreationInputTokens),
		},
	}
}

// isRetryableAnthropicErr classifies an SDK error as retryable by
// inspecting its attached HTTP status, the same status-driven rule
// pkg/providers/fallback.go uses for deciding whether to try the next
// provider in its chain.
func isRetryableAnthropicErr(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
