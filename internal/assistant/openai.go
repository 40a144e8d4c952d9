// Package assistant talks to the LLM that powers the premium cooking features.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrEmptyCompletion is returned when the model answers with no choices.
var ErrEmptyCompletion = errors.New("model returned no choices")

const systemPrompt = "You are MealMuse, a friendly cooking assistant. " +
	"Answer concisely and keep recipes practical for a home kitchen."

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=8000"`
}

// OpenAIClient is a thin wrapper over go-openai's chat completion endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a client. baseURL may be empty to use the public API.
func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Chat continues a conversation.
func (c *OpenAIClient) Chat(ctx context.Context, history []Message) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return c.complete(ctx, msgs)
}

// GenerateRecipe asks for a recipe built around the given ingredients.
func (c *OpenAIClient) GenerateRecipe(ctx context.Context, ingredients []string, preferences string) (string, error) {
	var b strings.Builder
	b.WriteString("Create one recipe using these ingredients: ")
	b.WriteString(strings.Join(ingredients, ", "))
	b.WriteString(".")
	if preferences != "" {
		b.WriteString(" Preferences: ")
		b.WriteString(preferences)
		b.WriteString(".")
	}
	b.WriteString(" Reply with a title, an ingredient list and numbered steps.")
	return c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: b.String()},
	})
}

// ExplainIngredient describes an ingredient and common substitutes.
func (c *OpenAIClient) ExplainIngredient(ctx context.Context, ingredient string) (string, error) {
	prompt := fmt.Sprintf("Explain what %q is, how it is used in cooking, and suggest two substitutes.", ingredient)
	return c.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	})
}

func (c *OpenAIClient) complete(ctx context.Context, msgs []openai.ChatCompletionMessage) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
	})
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
