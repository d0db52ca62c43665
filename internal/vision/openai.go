package vision

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIConfig selects the chat completions endpoint and model.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	ModelName string
}

// OpenAIModel calls an OpenAI compatible chat completions API.
type OpenAIModel struct {
	client    *openai.Client
	modelName string
	logger    *zap.Logger
}

// NewOpenAIModel never fails on a missing key; Complete reports it instead so
// the analyze endpoint answers 500 while the rest of the server keeps working.
func NewOpenAIModel(cfg OpenAIConfig, logger *zap.Logger) *OpenAIModel {
	m := &OpenAIModel{modelName: cfg.ModelName, logger: logger.Named("openai_vision")}
	if cfg.APIKey == "" {
		return m
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	m.client = openai.NewClientWithConfig(clientConfig)
	return m
}

func (m *OpenAIModel) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if m.client == nil {
		return "", ErrMissingCredential
	}

	// go-openai drops a zero temperature from the payload, which the API
	// reads as its default of 1.
	temperature := prompt.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt.Text},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: prompt.ImageURL},
					},
				},
			},
		},
		MaxTokens:   prompt.MaxTokens,
		Temperature: temperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			m.logger.Warn("chat completion rejected",
				zap.Int("status", apiErr.HTTPStatusCode),
				zap.Any("code", apiErr.Code))
		}
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
