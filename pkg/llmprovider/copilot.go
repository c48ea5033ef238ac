package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	copilot "github.com/github/copilot-sdk/go"
)

// CopilotProvider wraps the GitHub Copilot CLI's gRPC session API,
// grounded on pkg/providers/github_copilot_provider.go.
type CopilotProvider struct {
	uri     string
	model   string
	client  *copilot.Client
	session *copilot.Session
}

// NewCopilotProvider starts a Copilot CLI session at uri. Only the
// gRPC connect mode is implemented, matching the teacher adapter's
// stdio TODO.
func NewCopilotProvider(uri, model string) (*CopilotProvider, error) {
	client := copilot.NewClient(&copilot.ClientOptions{CLIUrl: uri})

	connectCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := client.Start(connectCtx); err != nil {
		return nil, fmt.Errorf("connect to copilot: %w", err)
	}

	session, err := client.CreateSession(connectCtx, &copilot.SessionConfig{
		Model: model,
		Hooks: &copilot.SessionHooks{},
	})
	if err != nil {
		client.Stop()
		return nil, fmt.Errorf("create copilot session: %w", err)
	}

	return &CopilotProvider{uri: uri, model: model, client: client, session: session}, nil
}

func (p *CopilotProvider) DefaultModel() string { return "gpt-4.1" }

func (p *CopilotProvider) Chat(ctx context.Context, messages []Message, options ChatOptions) (ChatResponse, error) {
	if p.session == nil {
		return ChatResponse{}, &ProviderError{Reason: "copilot: session is not initialized"}
	}

	type wireMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	out := make([]wireMessage, 0, len(messages)+1)
	if options.System != "" {
		out = append(out, wireMessage{Role: "system", Content: options.System})
	}
	for _, msg := range messages {
		out = append(out, wireMessage{Role: msg.Role, Content: msg.Content})
	}

	prompt, err := json.Marshal(out)
	if err != nil {
		return ChatResponse{}, &ProviderError{Reason: fmt.Sprintf("copilot: marshal messages: %v", err)}
	}

	event, err := p.session.SendAndWait(ctx, copilot.MessageOptions{Prompt: string(prompt)})
	if err != nil {
		return ChatResponse{}, &ProviderError{Retryable: true, Reason: fmt.Sprintf("copilot: %v", err)}
	}
	if event == nil || event.Data.Content == nil {
		return ChatResponse{}, &ProviderError{Reason: "copilot: empty response"}
	}

	return ChatResponse{Content: *event.Data.Content, StopReason: "stop"}, nil
}

// Close tears down the underlying Copilot session and CLI connection.
func (p *CopilotProvider) Close() {
	if p.client != nil {
		p.client.Stop()
	}
}
