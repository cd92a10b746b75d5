package nlu

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAICompleter backs the Completer contract with any OpenAI-compatible
// chat completion endpoint (Groq in the default deployment).
type OpenAICompleter struct {
	client openai.Client
	model  string
}

func NewOpenAICompleter(apiKey, baseURL, model string) (*OpenAICompleter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAICompleter{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
