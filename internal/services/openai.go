package services

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// defaultPromptPrefix is prepended to the raw scene description when no
// enhancer is configured or the enhancer call fails.
const defaultPromptPrefix = "Cinematic, photorealistic, "

// OpenAIService refines raw scene descriptions into richer generation
// prompts. Optional — when nil, callers fall back to BuildBasicPrompt.
type OpenAIService struct {
	client *openai.Client
}

func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
	}
}

// BuildBasicPrompt is the static fallback: the scene description behind a
// fixed cinematic prefix.
func BuildBasicPrompt(description string) string {
	return defaultPromptPrefix + description
}

const enhanceSystemPrompt = `You refine scene descriptions into prompts for a video generation model that animates an avatar image using a reference motion video. Rewrite the description into one vivid sentence covering subject, action, camera framing, and lighting. Keep every concrete detail from the input, especially product names. Output the prompt text only, no quotes or commentary.`

// EnhancePrompt rewrites a scene description into a generation prompt.
// Failure is non-critical — callers degrade to BuildBasicPrompt.
func (s *OpenAIService) EnhancePrompt(ctx context.Context, description string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: "gpt-5-mini",
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: enhanceSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: description,
			},
		},
		Temperature: 1.0,
	})

	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	enhanced := strings.TrimSpace(resp.Choices[0].Message.Content)
	if enhanced == "" {
		return "", fmt.Errorf("empty prompt from openai")
	}

	return enhanced, nil
}
