package llmprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAIProvider wraps openai-go/v3's chat-completions client for any
// OpenAI-compatible endpoint, grounded on
// pkg/providers/openai_sdk/provider.go.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider constructs a Provider against apiBase (empty uses
// the SDK's default OpenAI endpoint).
func NewOpenAIProvider(apiKey, apiBase string) *OpenAIProvider {
	opts := []option.RequestOption{}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{client: &client}
}

func (p *OpenAIProvider) DefaultModel() string { return "gpt-4o" }

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, options ChatOptions) (ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(options.Model),
		Messages: buildOpenAIMessages(messages, options.System),
	}
	if options.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Opt(int64(options.MaxTokens))
	}
	if options.Temperature > 0 {
		params.Temperature = openai.Opt(options.Temperature)
	}
	if len(options.Tools) > 0 {
		params.Tools = buildOpenAITools(options.Tools)
		params.ToolChoice.OfAuto = openai.String(string(openai.ChatCompletionToolChoiceOptionAutoAuto))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return ChatResponse{}, &ProviderError{
				Retryable:  apiErr.StatusCode == 429 || apiErr.StatusCode >= 500,
				StatusCode: apiErr.StatusCode,
				Reason:     fmt.Sprintf("openai: %s", apiErr.Message),
			}
		}
		return ChatResponse{}, &ProviderError{Reason: fmt.Sprintf("openai: %v", err)}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return ChatResponse{}, &ProviderError{Reason: "openai: no choices returned"}
	}

	choice := resp.Choices[0]
	return ChatResponse{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
		ToolCalls:  parseOpenAIToolCalls(choice.Message.ToolCalls),
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

func buildOpenAIMessages(messages []Message, system string) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			out = append(out, openai.SystemMessage(msg.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(msg.Content))
		case "tool":
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func buildOpenAITools(tools []ToolDefinition) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  shared.FunctionParameters(t.Parameters),
		}))
	}
	return out
}

func parseOpenAIToolCalls(calls []openai.ChatCompletionMessageToolCallUnion) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, 0, len(calls))
	for _, call := range calls {
		fc, ok := call.AsAny().(openai.ChatCompletionMessageFunctionToolCall)
		if !ok {
			continue
		}
		args := map[string]any{}
		_ = json.Unmarshal([]byte(fc.Function.Arguments), &args)
		out = append(out, ToolCall{ID: fc.ID, Name: fc.Function.Name, Arguments: args})
	}
	return out
}
