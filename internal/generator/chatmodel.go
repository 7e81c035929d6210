package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/leadflow/internal/domain"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModel rephrases the scripted prompt with any eino chat model.
type ChatModel struct {
	model  model.BaseChatModel
	script Generator
}

// NewChatModel wraps an existing eino chat model.
func NewChatModel(m model.BaseChatModel, script Generator) *ChatModel {
	return &ChatModel{model: m, script: script}
}

// NewOpenAI builds a ChatModel against an OpenAI-compatible endpoint.
func NewOpenAI(ctx context.Context, apiKey, modelName, baseURL string, script Generator) (*ChatModel, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  apiKey,
		Model:   modelName,
		BaseURL: baseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create openai chat model: %w", err)
	}
	return NewChatModel(cm, script), nil
}

// Generate implements Generator.
func (c *ChatModel) Generate(ctx context.Context, step domain.Step, answers domain.Answers) (string, error) {
	script, err := c.script.Generate(ctx, step, answers)
	if err != nil {
		return "", err
	}
	msg, err := c.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(instruction(step)),
		schema.UserMessage(userMessage(script, answers)),
	})
	if err != nil {
		return "", fmt.Errorf("chat model generate: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(msg.Content), nil
}

// Ping checks the model answers a trivial request.
func (c *ChatModel) Ping(ctx context.Context) error {
	_, err := c.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		return fmt.Errorf("chat model health: %w", err)
	}
	return nil
}
