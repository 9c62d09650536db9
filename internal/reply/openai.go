package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"survey-dialer/internal/conversation"
)

// OpenAIProvider talks to any OpenAI-compatible chat-completions endpoint.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  strings.TrimSpace(cfg.Model),
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, messages []conversation.Turn, maxTokens int, temperature float64) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.model),
		Messages:    toMessages(messages),
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("reply: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}

func toMessages(turns []conversation.Turn) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case conversation.RoleSystem:
			out = append(out, openai.SystemMessage(t.Content))
		case conversation.RoleAssistant:
			out = append(out, openai.AssistantMessage(t.Content))
		default:
			out = append(out, openai.UserMessage(t.Content))
		}
	}
	return out
}
